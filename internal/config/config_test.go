package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	data := []byte(`
scan:
  radius: 128
  progress_interval: 2s
storage:
  backend: memory
index:
  max_cache_entries: 50
  optimize_interval: 30s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.Scan.GetRadius())
	assert.Equal(t, 2*time.Second, cfg.Scan.ProgressInterval)
	assert.Equal(t, 4, cfg.Scan.GetWorkers(), "воркеры должны остаться по умолчанию")
	assert.Equal(t, "memory", cfg.Storage.GetBackend())
	assert.Equal(t, 50, cfg.Index.GetMaxCacheEntries())
	assert.Equal(t, 30*time.Second, cfg.Index.GetOptimizeInterval())
	assert.Equal(t, "ZONES", cfg.EventBus.Stream)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("ZONES_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Scan.GetRadius())
	assert.Equal(t, "badger", cfg.Storage.GetBackend())
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("ZONES_REST_PORT", "9090")
	s := ServerConfig{}
	assert.Equal(t, 9090, s.GetRESTPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort(), "значение из конфига имеет приоритет")
}

func TestOptimizeInterval(t *testing.T) {
	assert.Equal(t, 10*time.Minute, (&IndexConfig{}).GetOptimizeInterval())
	assert.Zero(t, (&IndexConfig{OptimizeInterval: -1}).GetOptimizeInterval(), "отрицательное значение отключает чистку")
	assert.Equal(t, time.Minute, (&IndexConfig{OptimizeInterval: time.Minute}).GetOptimizeInterval())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Operators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	data := []byte(`
server:
  jwt_secret: c2VjcmV0
  token_ttl: 30m
  operators:
    - name: alice
      password_hash: "$2a$10$abc"
      role: admin
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Server.Operators, 1)
	assert.Equal(t, "alice", cfg.Server.Operators[0].Name)
	assert.Equal(t, "$2a$10$abc", cfg.Server.Operators[0].PasswordHash)
	assert.Equal(t, 30*time.Minute, cfg.Server.GetTokenTTL())
	assert.Equal(t, "c2VjcmV0", cfg.Server.GetJWTSecret())

	assert.Equal(t, 12*time.Hour, (&ServerConfig{}).GetTokenTTL())
}
