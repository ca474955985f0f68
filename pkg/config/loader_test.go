package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitializeAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
database:
  host: localhost
  port: 5432
  user: postgres
  database: vectorizer
`)

	cfg, err := Initialize(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Queue.BatchSize)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, "anthropic", cfg.Agent.DefaultProvider)
	assert.Equal(t, cfg.Queue.HeartbeatInterval*3, cfg.Queue.OrphanThreshold)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestInitializeExpandsEnv(t *testing.T) {
	t.Setenv("VECTORIZER_DB_HOST", "db.internal")
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
database:
  host: ${VECTORIZER_DB_HOST}
  port: 5432
  user: postgres
  database: vectorizer
`)

	cfg, err := Initialize(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
database:
  port: 5432
`)

	_, err := Initialize(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitializeAcceptsDirectoryPath(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
database:
  host: localhost
  port: 5432
  user: postgres
  database: vectorizer
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
}
