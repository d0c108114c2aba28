package config

import (
	"strings"
	"testing"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := Default()

	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should validate cleanly, got %d errors: %v", len(errs), ValidationErrors(errs))
	}
}

func TestValidate_Runtime(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "invalid mode",
			mutate:    func(c *Config) { c.Runtime.Mode = "interactive" },
			wantField: "runtime.mode",
		},
		{
			name:      "empty command",
			mutate:    func(c *Config) { c.Runtime.Command = "" },
			wantField: "runtime.command",
		},
		{
			name:      "negative timeout",
			mutate:    func(c *Config) { c.Runtime.TimeoutSeconds = -1 },
			wantField: "runtime.timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if !hasErrorForField(errs, tt.wantField) {
				t.Errorf("Expected validation error for %q, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidate_Session(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "negative message length",
			mutate:    func(c *Config) { c.Session.MaxMessageLength = -1 },
			wantField: "session.max_message_length",
		},
		{
			name:      "negative display cap",
			mutate:    func(c *Config) { c.Session.MaxDisplayMessages = -10 },
			wantField: "session.max_display_messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if !hasErrorForField(errs, tt.wantField) {
				t.Errorf("Expected validation error for %q, got %v", tt.wantField, errs)
			}
		})
	}

	// Zero means "use the default" and is valid.
	cfg := Default()
	cfg.Session.MaxMessageLength = 0
	cfg.Session.MaxDisplayMessages = 0
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("zero session bounds should be valid, got %v", errs)
	}
}

func TestValidate_BranchPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		valid  bool
	}{
		{"ensemble", true},
		{"my-prefix", true},
		{"feature_x", true},
		{"a1", true},
		{"", true}, // Empty falls back to default at wiring time
		{"1prefix", false},
		{"-prefix", false},
		{"pre fix", false},
		{"pre/fix", false},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			cfg := Default()
			cfg.Branch.Prefix = tt.prefix

			errs := cfg.Validate()
			hasErr := hasErrorForField(errs, "branch.prefix")
			if tt.valid && hasErr {
				t.Errorf("Prefix %q should be valid, got error", tt.prefix)
			}
			if !tt.valid && !hasErr {
				t.Errorf("Prefix %q should be invalid", tt.prefix)
			}
		})
	}
}

func TestValidate_Persistence(t *testing.T) {
	cfg := Default()
	cfg.Persistence.AutosaveIntervalSeconds = -5

	errs := cfg.Validate()
	if !hasErrorForField(errs, "persistence.autosave_interval_seconds") {
		t.Errorf("Expected validation error for negative autosave interval, got %v", errs)
	}
}

func TestValidate_Server(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""

	errs := cfg.Validate()
	if !hasErrorForField(errs, "server.addr") {
		t.Errorf("Expected validation error for empty server addr, got %v", errs)
	}
}

func TestValidate_Watcher(t *testing.T) {
	cfg := Default()
	cfg.Watcher.DebounceMs = -100

	errs := cfg.Validate()
	if !hasErrorForField(errs, "watcher.debounce_ms") {
		t.Errorf("Expected validation error for negative debounce, got %v", errs)
	}
}

func TestValidate_LoggingLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"INFO", true}, // Case insensitive
		{"", true},     // Empty falls back to default
		{"verbose", false},
		{"trace", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level

			errs := cfg.Validate()
			hasErr := hasErrorForField(errs, "logging.level")
			if tt.valid && hasErr {
				t.Errorf("Level %q should be valid, got error", tt.level)
			}
			if !tt.valid && !hasErr {
				t.Errorf("Level %q should be invalid", tt.level)
			}
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Runtime.Mode = "bogus"
	cfg.Runtime.Command = ""
	cfg.Server.Addr = ""

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Expected 3 validation errors, got %d: %v", len(errs), ValidationErrors(errs))
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "runtime.mode",
		Value:   "bogus",
		Message: "must be one of: streaming, batch",
	}

	expected := "runtime.mode: must be one of: streaming, batch (got: bogus)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "server.addr", Value: "", Message: "must not be empty"},
		}
		msg := errs.Error()
		if strings.Contains(msg, "validation errors") {
			t.Errorf("Single error should not use the multi-error header, got %q", msg)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "server.addr", Value: "", Message: "must not be empty"},
			{Field: "runtime.mode", Value: "bogus", Message: "must be one of: streaming, batch"},
		}
		msg := errs.Error()
		if !strings.Contains(msg, "2 validation errors") {
			t.Errorf("Expected multi-error header, got %q", msg)
		}
	})
}

func hasErrorForField(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}
