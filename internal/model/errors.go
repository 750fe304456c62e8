package model

import (
	"fmt"
	"time"
)

// ConfigError reports missing or invalid job or environment configuration.
// It is raised before any external session opens.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent local or remote resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Resource }

// DateParseError reports unparseable date input.
type DateParseError struct {
	Input string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("cannot parse date %q", e.Input)
}

// UnsupportedStepError reports an unknown cleaning-operation name. It is
// always fatal for the job, even mid-sequence.
type UnsupportedStepError struct {
	Step string
}

func (e *UnsupportedStepError) Error() string {
	return "unsupported cleaning step: " + e.Step
}

// TimeoutError reports a bounded wait that expired on a remote interaction.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Limit)
}
