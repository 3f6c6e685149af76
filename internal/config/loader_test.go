package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, Default().Database, cfg.Database)
	assert.Equal(t, int64(3000000), cfg.Indexer.UserIDOffset)
	assert.Equal(t, int64(400000), cfg.Indexer.PlaylistIDOffset)
	assert.Empty(t, cfg.Source)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  host: db.internal
  port: 6543
  max_conns: 12
log:
  level: debug
  format: console
indexer:
  playlist_id_offset: 10
events:
  enabled: true
  redis_addr: localhost:6379
ops:
  allowed_origins: ["https://ops.example.com"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("INDEXER_DATABASE_PASSWORD", "s3cret")
	t.Setenv("INDEXER_DATABASE_HOST", "override.internal")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, int32(12), cfg.Database.MaxConns)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, int64(10), cfg.Indexer.PlaylistIDOffset)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Events.RedisAddr)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Ops.AllowedOrigins)
	assert.NotEmpty(t, cfg.Source)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  format: xml\n"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
}
