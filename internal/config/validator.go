package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "runtime.timeout_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// branchPrefixRegex validates branch prefix characters
// Branch names should start with alphanumeric and can contain alphanumeric, hyphen, underscore
var branchPrefixRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRuntime()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateBranch()...)
	errors = append(errors, c.validatePersistence()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateWatcher()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateRuntime validates the RuntimeConfig
func (c *Config) validateRuntime() []ValidationError {
	var errors []ValidationError

	if c.Runtime.Mode != "" && !IsValidRuntimeMode(c.Runtime.Mode) {
		errors = append(errors, ValidationError{
			Field:   "runtime.mode",
			Value:   c.Runtime.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRuntimeModes(), ", ")),
		})
	}

	if c.Runtime.Command == "" {
		errors = append(errors, ValidationError{
			Field:   "runtime.command",
			Value:   c.Runtime.Command,
			Message: "must not be empty",
		})
	}

	if c.Runtime.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.timeout_seconds",
			Value:   c.Runtime.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.MaxMessageLength < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.max_message_length",
			Value:   c.Session.MaxMessageLength,
			Message: "must be non-negative",
		})
	}

	if c.Session.MaxDisplayMessages < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.max_display_messages",
			Value:   c.Session.MaxDisplayMessages,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateBranch validates the BranchConfig
func (c *Config) validateBranch() []ValidationError {
	var errors []ValidationError

	if c.Branch.Prefix != "" && !branchPrefixRegex.MatchString(c.Branch.Prefix) {
		errors = append(errors, ValidationError{
			Field:   "branch.prefix",
			Value:   c.Branch.Prefix,
			Message: "must start with a letter and contain only letters, digits, hyphens, and underscores",
		})
	}

	return errors
}

// validatePersistence validates the PersistenceConfig
func (c *Config) validatePersistence() []ValidationError {
	var errors []ValidationError

	if c.Persistence.AutosaveIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "persistence.autosave_interval_seconds",
			Value:   c.Persistence.AutosaveIntervalSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateWatcher validates the WatcherConfig
func (c *Config) validateWatcher() []ValidationError {
	var errors []ValidationError

	if c.Watcher.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "watcher.debounce_ms",
			Value:   c.Watcher.DebounceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
