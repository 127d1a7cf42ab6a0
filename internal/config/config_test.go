package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, "./plugins", cfg.Plugins.Dir)
	assert.Equal(t, 2, cfg.Plugins.MaxBackups)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pluginhostd.yaml")
	yaml := `
server:
  host: 127.0.0.1
  port: 9090
plugins:
  dir: /var/lib/pluginhostd/plugins
  max_backups: 4
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	m := NewManager()
	require.NoError(t, m.LoadConfig(path))

	cfg := m.GetConfig()
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/pluginhostd/plugins", cfg.Plugins.Dir)
	assert.Equal(t, 4, cfg.Plugins.MaxBackups)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml")))

	cfg := m.GetConfig()
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pluginhostd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("PLUGINHOSTD_PORT", "7070")

	m := NewManager()
	require.NoError(t, m.LoadConfig(path))

	assert.Equal(t, 7070, m.GetConfig().Server.Port)
}

func TestLoadConfigRejectsInvalidPort(t *testing.T) {
	t.Setenv("PLUGINHOSTD_PORT", "99999")

	m := NewManager()
	err := m.LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigNotifiesWatchers(t *testing.T) {
	m := NewManager()

	done := make(chan *Config, 1)
	m.AddWatcher(func(oldConfig, newConfig *Config) {
		done <- newConfig
	})

	t.Setenv("PLUGINHOSTD_PORT", "6060")
	require.NoError(t, m.LoadConfig(""))

	select {
	case newConfig := <-done:
		assert.Equal(t, 6060, newConfig.Server.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher was never notified")
	}
}

func TestGetConfigReturnsACopy(t *testing.T) {
	m := NewManager()
	first := m.GetConfig()
	first.Server.Port = 1

	second := m.GetConfig()
	assert.NotEqual(t, 1, second.Server.Port)
}
