package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Browser BrowserConfig `yaml:"browser"`
	Audit   AuditConfig   `yaml:"audit"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // listen address, default 127.0.0.1:9222
}

// AuthConfig holds connection authentication settings.
type AuthConfig struct {
	Token     string `yaml:"token"`      // shared secret for the WebSocket endpoint
	TokenFile string `yaml:"token_file"` // file holding the secret; takes effect when Token is empty, hot-reloaded
	JWTSecret string `yaml:"jwt_secret"` // HS256 key for the admin status route; empty disables the route
}

// BrowserConfig holds backend launch settings.
type BrowserConfig struct {
	Headless       bool     `yaml:"headless"`        // default true
	ExecPath       string   `yaml:"exec_path"`       // optional browser binary override
	Args           []string `yaml:"args"`            // extra launch arguments
	ViewportWidth  int      `yaml:"viewport_width"`  // default 1280
	ViewportHeight int      `yaml:"viewport_height"` // default 720
	TimeoutMS      int      `yaml:"timeout_ms"`      // default navigation/evaluation timeout, default 30000
}

// AuditConfig holds the command audit trail settings.
// The SQLite store is enabled only when DBPath is set; slog auditing is
// always on.
type AuditConfig struct {
	DBPath        string `yaml:"db_path"`        // e.g. ~/.browserd/audit.db
	RetentionDays int    `yaml:"retention_days"` // prune rows older than this, default 30
	PruneSchedule string `yaml:"prune_schedule"` // cron expression, default "@daily"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:9222",
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 720,
			TimeoutMS:      30000,
		},
		Audit: AuditConfig{
			RetentionDays: 30,
			PruneSchedule: "@daily",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultDataDir returns the default data directory (~/.browserd).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".browserd"
	}
	return filepath.Join(home, ".browserd")
}

// Load loads config from ~/.browserd/config.yaml. A missing file is not an
// error; defaults plus environment overrides apply.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(DefaultDataDir(), "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	cfg.expand()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFrom loads config from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.expand()
	cfg.applyEnv()
	return cfg, nil
}

// expand applies ${VAR} expansion to path and secret fields.
func (c *Config) expand() {
	c.Auth.Token = os.ExpandEnv(c.Auth.Token)
	c.Auth.TokenFile = os.ExpandEnv(c.Auth.TokenFile)
	c.Auth.JWTSecret = os.ExpandEnv(c.Auth.JWTSecret)
	c.Browser.ExecPath = os.ExpandEnv(c.Browser.ExecPath)
	c.Audit.DBPath = os.ExpandEnv(c.Audit.DBPath)
}

// applyEnv lets BROWSERD_* variables override file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("BROWSERD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BROWSERD_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("BROWSERD_TOKEN_FILE"); v != "" {
		c.Auth.TokenFile = v
	}
	if v := os.Getenv("BROWSERD_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("BROWSERD_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}
