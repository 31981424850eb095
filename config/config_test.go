package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRESENCE_CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, 5*time.Second, cfg.Holidays.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Holidays.CacheTTL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A YAML file and an env override on top of it
	path := filepath.Join(t.TempDir(), "presence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
db:
  driver: memory
log:
  level: debug
holidays:
  base_url: http://holidays.local
  timeout: 2s
cors:
  allowed_origins: ["https://app.example.com"]
`), 0o600))
	t.Setenv("PRESENCE_SERVER_PORT", "9191")
	t.Setenv("PRESENCE_HOLIDAYS_TIMEOUT", "750ms")

	// WHEN: Loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: Env wins over the file, the file wins over defaults
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.DB.Driver)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "http://holidays.local", cfg.Holidays.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.Holidays.Timeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "read config file")
	})

	t.Run("bad port env", func(t *testing.T) {
		t.Setenv("PRESENCE_CONFIG_PATH", "")
		t.Setenv("PRESENCE_SERVER_PORT", "eighty")
		_, err := Load("")
		assert.ErrorContains(t, err, "PRESENCE_SERVER_PORT")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("PRESENCE_CONFIG_PATH", "")
		t.Setenv("PRESENCE_DB_DRIVER", "postgres")
		_, err := Load("")
		assert.ErrorContains(t, err, "db.driver")
	})

	t.Run("bad level", func(t *testing.T) {
		cfg := Default()
		cfg.Log.Level = "loud"
		assert.Error(t, cfg.Validate())
		assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	})
}
