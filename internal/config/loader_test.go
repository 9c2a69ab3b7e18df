package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.EqualValues(t, 52428800, cfg.Ingestion.MaxFileSize)
	assert.Equal(t, 200, cfg.Ingestion.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Ingestion.PendingTimeout)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte(`
storage:
  driver: sqlite
  sqlite_path: data.db
ingestion:
  batch_size: 100
  pending_timeout: 10m
log:
  format: json
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("UNIDATA_INGESTION_WORKERS", "2")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "data.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 100, cfg.Ingestion.BatchSize)
	assert.Equal(t, 2, cfg.Ingestion.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Ingestion.PendingTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsOversizedBatch(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UNIDATA_INGESTION_BATCH_SIZE", "5000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("UNIDATA_SERVER_ADDR=:9090\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("UNIDATA_SERVER_ADDR") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}
