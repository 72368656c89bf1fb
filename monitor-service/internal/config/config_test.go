package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(body), 0o600))
	t.Setenv("CONFIG_PATH", dir)
	t.Setenv("CONFIG_ENV", "test")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, `
jwt:
  secret: s3cret
db:
  host: localhost
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Monitor.Server.Port)
	assert.Equal(t, 5, cfg.Monitor.Outbox.MaxRetries)
	assert.Equal(t, "s3cret", cfg.Monitor.Blob.Secret, "blob secret falls back to the jwt secret")
	assert.Equal(t, "http://localhost:8080", cfg.Monitor.Blob.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Workflow.URLTTL)
	assert.False(t, cfg.Monitor.Workflow.AllowApproveQueried)
	assert.Equal(t, 5432, cfg.DB.Port)
}

func TestLoadWorkflowSection(t *testing.T) {
	writeConfig(t, `
jwt:
  secret: s3cret
monitor:
  workflow:
    allow_approve_queried: true
    max_evidence_files: 3
  blob:
    url_ttl: 5m
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Monitor.Workflow.AllowApproveQueried)
	assert.Equal(t, 3, cfg.Monitor.Workflow.MaxEvidenceFiles)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Workflow.URLTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	writeConfig(t, "jwt:\n  secret: s3cret\n")
	t.Setenv("BLOB_ROOT", "/srv/evidence")
	t.Setenv("WORKFLOW_ALLOW_APPROVE_QUERIED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/evidence", cfg.Monitor.Blob.Root)
	assert.True(t, cfg.Monitor.Workflow.AllowApproveQueried)
}

func TestLoadRequiresSecret(t *testing.T) {
	writeConfig(t, "db:\n  host: localhost\n")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
