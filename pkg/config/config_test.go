package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "gm-123")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
providers:
  gemini:
    api_key: ${TEST_GEMINI_KEY}
    model: gemini-2.5-pro
store:
  backend: sqlite
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "gm-123", cfg.Providers.Gemini.APIKey)
	require.Equal(t, "gemini-2.5-pro", cfg.Providers.Gemini.Model)
	require.Equal(t, "./audio", cfg.Server.AudioDir)
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "./voxaura.db", cfg.Store.Path)
	require.Equal(t, 30*time.Second, cfg.ProviderTimeout())
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadWithoutFileUsesEnvKeys(t *testing.T) {
	t.Setenv("MURF_API_KEY", "murf-123")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, "murf-123", cfg.Providers.Murf.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
