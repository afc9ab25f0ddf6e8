package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override variable so host environment leakage
// cannot skew a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BROWSERD_ADDR",
		"BROWSERD_TOKEN",
		"BROWSERD_TOKEN_FILE",
		"BROWSERD_JWT_SECRET",
		"BROWSERD_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:9222", cfg.Server.Addr)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 720, cfg.Browser.ViewportHeight)
	assert.Equal(t, 30000, cfg.Browser.TimeoutMS)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "@daily", cfg.Audit.PruneSchedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Auth.Token)
	assert.Empty(t, cfg.Audit.DBPath)
}

func TestLoadFrom(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: 0.0.0.0:9333
auth:
  token: sekrit
browser:
  headless: false
  viewport_width: 1920
audit:
  db_path: /var/lib/browserd/audit.db
  retention_days: 7
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9333", cfg.Server.Addr)
	assert.Equal(t, "sekrit", cfg.Auth.Token)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, "/var/lib/browserd/audit.db", cfg.Audit.DBPath)
	assert.Equal(t, 7, cfg.Audit.RetentionDays)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Fields the file does not mention keep their defaults.
	assert.Equal(t, 720, cfg.Browser.ViewportHeight)
	assert.Equal(t, 30000, cfg.Browser.TimeoutMS)
	assert.Equal(t, "@daily", cfg.Audit.PruneSchedule)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:1111\nauth:\n  token: from-file\n"), 0o600))

	t.Setenv("BROWSERD_ADDR", "127.0.0.1:2222")
	t.Setenv("BROWSERD_TOKEN", "from-env")
	t.Setenv("BROWSERD_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2222", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Auth.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestExpandsVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_DIR", "/run/secrets")
	t.Setenv("DATA_DIR", "/srv/browserd")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
auth:
  token_file: ${SECRET_DIR}/token
audit:
  db_path: ${DATA_DIR}/audit.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/secrets/token", cfg.Auth.TokenFile)
	assert.Equal(t, "/srv/browserd/audit.db", cfg.Audit.DBPath)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9222", cfg.Server.Addr)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadReadsDataDir(t *testing.T) {
	clearEnv(t)

	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".browserd")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  addr: 127.0.0.1:4444\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4444", cfg.Server.Addr)
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("HOME", "/home/gopher")
	assert.Equal(t, filepath.Join("/home/gopher", ".browserd"), DefaultDataDir())
}
