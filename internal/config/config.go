package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"go-report-etl/internal/model"
)

// Config holds application configuration. It is resolved once at startup
// and injected; capabilities check the endpoint they need at job start,
// before any session opens, so a missing value fails only the jobs that
// depend on it.
type Config struct {
	ConfigDir string // job descriptor files (*.yaml)
	LogDir    string // traceback artifacts
	SQLDir    string // protected SQL script directory
	RunDBPath string // sqlite run history

	SQLEngineString string // connection-string prefix, database name appended
	InternalDashURL string
	QualtricsURL    string
	IntranetBaseURL string

	LogLevel  string
	LogPretty bool
	APIPort   int
	CronSpec  string // optional cron schedule for the api binary
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ConfigDir:       getEnv("CONFIG_DIR", "reports"),
		LogDir:          getEnv("LOG_DIR", "logs"),
		SQLDir:          getEnv("SQL_DIR", "querys"),
		RunDBPath:       getEnv("RUN_DB_PATH", "./etl_runs.db"),
		SQLEngineString: getEnv("SQL_ENGINE_STRING", ""),
		InternalDashURL: getEnv("INTERNALDASH_URL", ""),
		QualtricsURL:    getEnv("QUALTRICS_URL", ""),
		IntranetBaseURL: getEnv("INTRANET_BASE_URL", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", true),
		APIPort:         getEnvAsInt("API_PORT", 8080),
		CronSpec:        getEnv("CRON_SPEC", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return fmt.Errorf("CONFIG_DIR is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be a valid port, got %d", c.APIPort)
	}
	return nil
}

// RequireInternalDashURL fails with a ConfigError when the dashboard
// endpoint is not configured.
func (c *Config) RequireInternalDashURL() (string, error) {
	if c.InternalDashURL == "" {
		return "", model.Configf("INTERNALDASH_URL must be provided")
	}
	return c.InternalDashURL, nil
}

// RequireQualtricsURL fails with a ConfigError when the dashboard endpoint
// is not configured.
func (c *Config) RequireQualtricsURL() (string, error) {
	if c.QualtricsURL == "" {
		return "", model.Configf("QUALTRICS_URL must be provided")
	}
	return c.QualtricsURL, nil
}

// RequireIntranetBaseURL fails with a ConfigError when the portal endpoint
// is not configured.
func (c *Config) RequireIntranetBaseURL() (string, error) {
	if c.IntranetBaseURL == "" {
		return "", model.Configf("INTRANET_BASE_URL must be provided")
	}
	return c.IntranetBaseURL, nil
}

// RequireSQLEngineString fails with a ConfigError when the relational
// engine prefix is not configured.
func (c *Config) RequireSQLEngineString() (string, error) {
	if c.SQLEngineString == "" {
		return "", model.Configf("SQL_ENGINE_STRING must be provided")
	}
	return c.SQLEngineString, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
