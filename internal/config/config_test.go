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
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: "9090"
storage:
  type: minio
jwt:
  secret: short
  expire_hours: 2
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 5*time.Second, cfg.Assessment.DeadlineGrace())
	assert.Equal(t, time.Minute, cfg.Assessment.SweepInterval())
	assert.Equal(t, 10*time.Second, cfg.Assessment.LockTTL())
	assert.Equal(t, 1000, cfg.Client.TickIntervalMs)
	assert.Equal(t, "http://localhost:8080/api", cfg.Client.BaseURL)
}

func TestLoadConfig_AssessmentOverrides(t *testing.T) {
	dir := writeConfig(t, `
storage:
  type: minio
assessment:
  deadline_grace_seconds: 30
  sweep_interval_seconds: 15
client:
  flush_timeout_seconds: 2
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Assessment.DeadlineGrace())
	assert.Equal(t, 15*time.Second, cfg.Assessment.SweepInterval())
	assert.Equal(t, 2, cfg.Client.FlushTimeoutSeconds)
}

func TestLoadConfig_RejectsWeakSecretInRelease(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: release
storage:
  type: minio
jwt:
  secret: too-short
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret is too short")
}

func TestLoadConfig_RejectsNegativeGrace(t *testing.T) {
	dir := writeConfig(t, `
storage:
  type: minio
assessment:
  deadline_grace_seconds: -1
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}
