package model

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Timestamp layouts for generated file names: minute precision by default,
// second precision when the full-timestamp flag is set.
const (
	stampLayout     = "20060102_1504"
	fullStampLayout = "20060102_150405"
)

// NamingPolicy produces deterministic destination paths for acquired
// files. The destination directory is always {root}/{service}/{sub}.
type NamingPolicy struct {
	RootDir        string
	Service        string
	SubService     string
	CapabilityName string

	IncludeCapability bool
	IncludeStem       bool
	Timestamp         bool
	FullTimestamp     bool
}

// Dir is the destination directory for every file this policy names.
func (p NamingPolicy) Dir() string {
	return filepath.Join(p.RootDir, p.Service, p.SubService)
}

// EnsureDir creates the destination directory, tolerating an existing one.
func (p NamingPolicy) EnsureDir() error {
	return os.MkdirAll(p.Dir(), 0o755)
}

// BuildPath names one file: capability name, original stem and timestamp
// (second precision wins when both flags are set), joined by underscores.
// When every component is empty the base name is the literal "download".
func (p NamingPolicy) BuildPath(originalStem, ext string, now time.Time) string {
	var parts []string
	if p.IncludeCapability && p.CapabilityName != "" {
		parts = append(parts, p.CapabilityName)
	}
	if p.IncludeStem && originalStem != "" {
		parts = append(parts, originalStem)
	}
	switch {
	case p.FullTimestamp:
		parts = append(parts, now.Format(fullStampLayout))
	case p.Timestamp:
		parts = append(parts, now.Format(stampLayout))
	}

	name := strings.Join(parts, "_")
	if name == "" {
		name = "download"
	}
	return filepath.Join(p.Dir(), name+"."+ext)
}
