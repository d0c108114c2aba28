package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default runtime config
	if cfg.Runtime.Mode != "streaming" {
		t.Errorf("Runtime.Mode = %q, want %q", cfg.Runtime.Mode, "streaming")
	}
	if cfg.Runtime.Command != "claude" {
		t.Errorf("Runtime.Command = %q, want %q", cfg.Runtime.Command, "claude")
	}
	if cfg.Runtime.TimeoutSeconds != 0 {
		t.Errorf("Runtime.TimeoutSeconds = %d, want 0", cfg.Runtime.TimeoutSeconds)
	}

	// Verify default session config
	if cfg.Session.MaxMessageLength != 4000 {
		t.Errorf("Session.MaxMessageLength = %d, want 4000", cfg.Session.MaxMessageLength)
	}
	if cfg.Session.MaxDisplayMessages != 200 {
		t.Errorf("Session.MaxDisplayMessages = %d, want 200", cfg.Session.MaxDisplayMessages)
	}

	// Verify default branch config
	if cfg.Branch.Prefix != "ensemble" {
		t.Errorf("Branch.Prefix = %q, want %q", cfg.Branch.Prefix, "ensemble")
	}

	// Verify default persistence config
	if cfg.Persistence.AutosaveIntervalSeconds != 30 {
		t.Errorf("Persistence.AutosaveIntervalSeconds = %d, want 30", cfg.Persistence.AutosaveIntervalSeconds)
	}
	if cfg.Persistence.StateFile != "" {
		t.Errorf("Persistence.StateFile should be empty by default, got %q", cfg.Persistence.StateFile)
	}

	// Verify default server config
	if cfg.Server.Addr != "127.0.0.1:7433" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:7433")
	}

	// Verify default watcher config
	if !cfg.Watcher.Enabled {
		t.Error("Watcher.Enabled should be true by default")
	}
	if cfg.Watcher.DebounceMs != 500 {
		t.Errorf("Watcher.DebounceMs = %d, want 500", cfg.Watcher.DebounceMs)
	}

	// Verify default logging config
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestRuntimeConfig_Timeout(t *testing.T) {
	tests := []struct {
		seconds  int
		expected time.Duration
	}{
		{30, 30 * time.Second},
		{120, 2 * time.Minute},
		{0, 0},
	}

	for _, tt := range tests {
		cfg := RuntimeConfig{TimeoutSeconds: tt.seconds}
		result := cfg.Timeout()
		if result != tt.expected {
			t.Errorf("Timeout() with %ds = %v, want %v", tt.seconds, result, tt.expected)
		}
	}
}

func TestPersistenceConfig_AutosaveInterval(t *testing.T) {
	cfg := PersistenceConfig{AutosaveIntervalSeconds: 30}
	if got := cfg.AutosaveInterval(); got != 30*time.Second {
		t.Errorf("AutosaveInterval() = %v, want 30s", got)
	}

	cfg = PersistenceConfig{AutosaveIntervalSeconds: 0}
	if got := cfg.AutosaveInterval(); got != 0 {
		t.Errorf("AutosaveInterval() = %v, want 0", got)
	}
}

func TestWatcherConfig_Debounce(t *testing.T) {
	cfg := WatcherConfig{DebounceMs: 500}
	if got := cfg.Debounce(); got != 500*time.Millisecond {
		t.Errorf("Debounce() = %v, want 500ms", got)
	}
}

func TestIsValidRuntimeMode(t *testing.T) {
	tests := []struct {
		mode  string
		valid bool
	}{
		{"streaming", true},
		{"batch", true},
		{"invalid", false},
		{"", false},
		{"STREAMING", false}, // Case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			result := IsValidRuntimeMode(tt.mode)
			if result != tt.valid {
				t.Errorf("IsValidRuntimeMode(%q) = %v, want %v", tt.mode, result, tt.valid)
			}
		})
	}
}

func TestPathsConfig_ResolveWorktreeDir(t *testing.T) {
	tests := []struct {
		name     string
		dir      string
		baseDir  string
		expected string
	}{
		{
			name:     "empty uses default",
			dir:      "",
			baseDir:  "/repo",
			expected: filepath.Join("/repo", ".ensemble", "worktrees"),
		},
		{
			name:     "absolute path used as-is",
			dir:      "/fast/worktrees",
			baseDir:  "/repo",
			expected: "/fast/worktrees",
		},
		{
			name:     "relative path resolved against base",
			dir:      "wt",
			baseDir:  "/repo",
			expected: filepath.Join("/repo", "wt"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := PathsConfig{WorktreeDir: tt.dir}
			result := cfg.ResolveWorktreeDir(tt.baseDir)
			if result != tt.expected {
				t.Errorf("ResolveWorktreeDir(%q) = %q, want %q", tt.baseDir, result, tt.expected)
			}
		})
	}
}

func TestPathsConfig_ResolveWorktreeDir_HomeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	cfg := PathsConfig{WorktreeDir: "~/worktrees"}
	result := cfg.ResolveWorktreeDir("/repo")
	expected := filepath.Join(home, "worktrees")
	if result != expected {
		t.Errorf("ResolveWorktreeDir() = %q, want %q", result, expected)
	}
}

func TestPersistenceConfig_ResolveStateFile(t *testing.T) {
	cfg := PersistenceConfig{}
	if got := cfg.ResolveStateFile("/repo"); got != filepath.Join("/repo", ".ensemble", "state.json") {
		t.Errorf("ResolveStateFile() = %q, want default under /repo/.ensemble", got)
	}

	cfg = PersistenceConfig{StateFile: "/var/lib/ensemble/state.json"}
	if got := cfg.ResolveStateFile("/repo"); got != "/var/lib/ensemble/state.json" {
		t.Errorf("ResolveStateFile() = %q, want absolute path unchanged", got)
	}
}

func TestLoggingConfig_ResolveDir(t *testing.T) {
	cfg := LoggingConfig{}
	if got := cfg.ResolveDir("/repo"); got != filepath.Join("/repo", ".ensemble", "logs") {
		t.Errorf("ResolveDir() = %q, want default under /repo/.ensemble", got)
	}
}

func TestConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		original := os.Getenv("XDG_CONFIG_HOME")
		defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()

		_ = os.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/ensemble"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	// Test without XDG_CONFIG_HOME
	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		original := os.Getenv("XDG_CONFIG_HOME")
		defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()

		_ = os.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "ensemble")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	original := os.Getenv("XDG_CONFIG_HOME")
	defer func() { _ = os.Setenv("XDG_CONFIG_HOME", original) }()

	_ = os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/ensemble/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}

	// Should have default values
	if cfg.Runtime.Mode != "streaming" {
		t.Errorf("Get().Runtime.Mode = %q, want %q", cfg.Runtime.Mode, "streaming")
	}
}
