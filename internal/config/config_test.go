package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-report-etl/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"CONFIG_DIR", "LOG_DIR", "SQL_DIR", "API_PORT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reports", cfg.ConfigDir)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, "querys", cfg.SQLDir)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONFIG_DIR", "/etc/etl/jobs")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_PRETTY", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/etc/etl/jobs", cfg.ConfigDir)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.False(t, cfg.LogPretty)
}

func TestConfig_RequireEndpoints(t *testing.T) {
	cfg := &Config{}

	var cfgErr *model.ConfigError
	_, err := cfg.RequireInternalDashURL()
	require.Error(t, err)
	assert.True(t, errors.As(err, &cfgErr))

	_, err = cfg.RequireSQLEngineString()
	require.Error(t, err)
	assert.True(t, errors.As(err, &cfgErr))

	cfg.QualtricsURL = "https://example.qualtrics.com"
	url, err := cfg.RequireQualtricsURL()
	require.NoError(t, err)
	assert.Equal(t, "https://example.qualtrics.com", url)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{ConfigDir: "reports", APIPort: 0}
	assert.Error(t, cfg.Validate())

	cfg.APIPort = 8080
	assert.NoError(t, cfg.Validate())
}
