package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Store   StoreConfig       `yaml:"store"`
	Index   IndexConfig       `yaml:"index"`
	Watcher WatcherConfig     `yaml:"watcher"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Watcher.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// IndexPath returns the index database file, defaulting to a hidden file in
// the store root.
func (c *Config) IndexPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.Store.Path, index.FileName)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives a size-rotated copy of the log.
	LogFile LogFileConfig `yaml:"log_file"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig configures the rotated log file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the path to the note tree.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds SQLite index configuration. An empty path places the
// index inside the store root.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// WatcherConfig controls the change watcher.
type WatcherConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Debounce    time.Duration `yaml:"debounce"`
	Incremental bool          `yaml:"incremental"`
	QueueSize   int           `yaml:"queue_size"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.QueueSize, validation.Min(1)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./notes",
		},
		Watcher: WatcherConfig{
			Enabled:   true,
			Debounce:  watcher.DefaultDebounce,
			QueueSize: watcher.DefaultQueueSize,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
