package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Ensemble configuration
type Config struct {
	Runtime     RuntimeConfig     `mapstructure:"runtime"`
	Session     SessionConfig     `mapstructure:"session"`
	Branch      BranchConfig      `mapstructure:"branch"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Server      ServerConfig      `mapstructure:"server"`
	Watcher     WatcherConfig     `mapstructure:"watcher"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Paths       PathsConfig       `mapstructure:"paths"`
}

// RuntimeConfig controls how the external agent runtime is invoked
type RuntimeConfig struct {
	// Mode selects the invocation strategy: "streaming" parses messages as
	// they arrive, "batch" waits for the full JSON output (default: "streaming")
	Mode string `mapstructure:"mode"`
	// Command is the runtime executable to invoke (default: "claude")
	Command string `mapstructure:"command"`
	// TimeoutSeconds bounds a single batch invocation, 0 = no limit (default: 0).
	// Streaming invocations are bounded by explicit pause/stop instead.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SessionConfig controls transcript bounds
type SessionConfig struct {
	// MaxMessageLength caps the length of an assistant transcript entry;
	// longer content is truncated with an ellipsis. 0 = default (default: 4000)
	MaxMessageLength int `mapstructure:"max_message_length"`
	// MaxDisplayMessages caps how many transcript entries the display
	// surfaces return. The full history is always persisted.
	// 0 = default (default: 200)
	MaxDisplayMessages int `mapstructure:"max_display_messages"`
}

// BranchConfig controls branch naming conventions
type BranchConfig struct {
	// Prefix is the branch name prefix for session worktrees (default: "ensemble")
	Prefix string `mapstructure:"prefix"`
}

// PersistenceConfig controls snapshot persistence behavior
type PersistenceConfig struct {
	// StateFile is the session snapshot path.
	// If empty, defaults to ".ensemble/state.json" relative to the repository root.
	StateFile string `mapstructure:"state_file"`
	// CatalogFile is the workspace/project catalog path.
	// If empty, defaults to ".ensemble/catalog.json" relative to the repository root.
	CatalogFile string `mapstructure:"catalog_file"`
	// AutosaveIntervalSeconds is how often the session snapshot is written
	// while the server runs, 0 = disabled (default: 30)
	AutosaveIntervalSeconds int `mapstructure:"autosave_interval_seconds"`
}

// ServerConfig controls the websocket server
type ServerConfig struct {
	// Addr is the listen address (default: "127.0.0.1:7433")
	Addr string `mapstructure:"addr"`
}

// WatcherConfig controls worktree file watching
type WatcherConfig struct {
	// Enabled controls whether worktree file changes are watched and
	// broadcast as events (default: true)
	Enabled bool `mapstructure:"enabled"`
	// DebounceMs is how long to coalesce filesystem events before
	// publishing a change notification (default: 500)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory.
	// If empty, defaults to ".ensemble/logs" relative to the repository root.
	Dir string `mapstructure:"dir"`
}

// PathsConfig controls where Ensemble stores data
type PathsConfig struct {
	// WorktreeDir is the directory where git worktrees are created.
	// If empty, defaults to ".ensemble/worktrees" relative to the repository
	// root. Can be an absolute path to store worktrees outside the repository.
	// Supports ~ for home directory expansion.
	WorktreeDir string `mapstructure:"worktree_dir"`
}

// Timeout returns the batch invocation timeout as a time.Duration (0 means no limit)
func (r *RuntimeConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// AutosaveInterval returns the autosave interval as a time.Duration (0 means disabled)
func (p *PersistenceConfig) AutosaveInterval() time.Duration {
	return time.Duration(p.AutosaveIntervalSeconds) * time.Second
}

// Debounce returns the watcher debounce window as a time.Duration
func (w *WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// ResolveWorktreeDir returns the resolved worktree directory path.
// If WorktreeDir is empty, it returns the default path relative to baseDir.
// If WorktreeDir starts with ~, it expands to the user's home directory.
// If WorktreeDir is a relative path, it's resolved relative to baseDir.
func (p *PathsConfig) ResolveWorktreeDir(baseDir string) string {
	if p.WorktreeDir == "" {
		return filepath.Join(baseDir, ".ensemble", "worktrees")
	}
	return resolvePath(p.WorktreeDir, baseDir)
}

// ResolveStateFile returns the resolved session snapshot path.
func (p *PersistenceConfig) ResolveStateFile(baseDir string) string {
	if p.StateFile == "" {
		return filepath.Join(baseDir, ".ensemble", "state.json")
	}
	return resolvePath(p.StateFile, baseDir)
}

// ResolveCatalogFile returns the resolved catalog path.
func (p *PersistenceConfig) ResolveCatalogFile(baseDir string) string {
	if p.CatalogFile == "" {
		return filepath.Join(baseDir, ".ensemble", "catalog.json")
	}
	return resolvePath(p.CatalogFile, baseDir)
}

// ResolveDir returns the resolved log directory.
func (l *LoggingConfig) ResolveDir(baseDir string) string {
	if l.Dir == "" {
		return filepath.Join(baseDir, ".ensemble", "logs")
	}
	return resolvePath(l.Dir, baseDir)
}

// resolvePath expands ~ and resolves relative paths against baseDir.
func resolvePath(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Mode:           "streaming",
			Command:        "claude",
			TimeoutSeconds: 0, // No limit by default
		},
		Session: SessionConfig{
			MaxMessageLength:   4000,
			MaxDisplayMessages: 200,
		},
		Branch: BranchConfig{
			Prefix: "ensemble",
		},
		Persistence: PersistenceConfig{
			StateFile:               "", // Empty means use default: .ensemble/state.json
			CatalogFile:             "", // Empty means use default: .ensemble/catalog.json
			AutosaveIntervalSeconds: 30,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7433",
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 500,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "", // Empty means use default: .ensemble/logs
		},
		Paths: PathsConfig{
			WorktreeDir: "", // Empty means use default: .ensemble/worktrees
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Runtime defaults
	viper.SetDefault("runtime.mode", defaults.Runtime.Mode)
	viper.SetDefault("runtime.command", defaults.Runtime.Command)
	viper.SetDefault("runtime.timeout_seconds", defaults.Runtime.TimeoutSeconds)

	// Session defaults
	viper.SetDefault("session.max_message_length", defaults.Session.MaxMessageLength)
	viper.SetDefault("session.max_display_messages", defaults.Session.MaxDisplayMessages)

	// Branch defaults
	viper.SetDefault("branch.prefix", defaults.Branch.Prefix)

	// Persistence defaults
	viper.SetDefault("persistence.state_file", defaults.Persistence.StateFile)
	viper.SetDefault("persistence.catalog_file", defaults.Persistence.CatalogFile)
	viper.SetDefault("persistence.autosave_interval_seconds", defaults.Persistence.AutosaveIntervalSeconds)

	// Server defaults
	viper.SetDefault("server.addr", defaults.Server.Addr)

	// Watcher defaults
	viper.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	viper.SetDefault("watcher.debounce_ms", defaults.Watcher.DebounceMs)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Paths defaults
	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ensemble")
	}
	// Fall back to ~/.config/ensemble
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ensemble"
	}
	return filepath.Join(home, ".config", "ensemble")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidRuntimeModes returns the list of valid runtime invocation modes
func ValidRuntimeModes() []string {
	return []string{"streaming", "batch"}
}

// IsValidRuntimeMode checks if the given mode is valid
func IsValidRuntimeMode(mode string) bool {
	for _, valid := range ValidRuntimeModes() {
		if mode == valid {
			return true
		}
	}
	return false
}
