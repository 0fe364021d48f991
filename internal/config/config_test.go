package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.local")
	t.Setenv("POSTGRES_USER", "worker")
	t.Setenv("POSTGRES_NAME", "renders")
	t.Setenv("STORAGE_ACCESS_KEY", "key")
	t.Setenv("STORAGE_SECRET_KEY", "secret")
}

func TestParseConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	v, err := LoadConfig("")
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, QueueDriverPostgres, cfg.Queue.Driver)
	assert.Equal(t, "render_jobs", cfg.Queue.Table)
	assert.Equal(t, "claim_render_job", cfg.Queue.ClaimFunction)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.IdleHeartbeat)
	assert.Equal(t, 30*time.Second, cfg.Worker.MaxBackoff)
	assert.Equal(t, 25*time.Minute, cfg.Worker.MaxJobRuntime)
	assert.Equal(t, 1500*time.Millisecond, cfg.Worker.MinProgressInterval)
	assert.Equal(t, 45*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2, cfg.Fetch.Retries)
	assert.Equal(t, "ffmpeg", cfg.Media.FFmpegBin)
	assert.Equal(t, "queued", cfg.Statuses.Queued)
	assert.Equal(t, "failed", cfg.Statuses.Failed)
}

func TestParseConfigEnvOverridesAndFloors(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_POLL_INTERVAL", "10ms")
	t.Setenv("WORKER_MAX_BACKOFF", "1m")
	t.Setenv("FETCH_RETRIES", "5")
	t.Setenv("STATUSES_COMPLETED", "done")
	t.Setenv("WORKER_ID", "worker-a")

	v, err := LoadConfig("")
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, time.Minute, cfg.Worker.MaxBackoff)
	assert.Equal(t, 5, cfg.Fetch.Retries)
	assert.Equal(t, "done", cfg.Statuses.Completed)
	assert.Equal(t, "worker-a", cfg.Worker.ID)
}

func TestParseConfigMissingRequired(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_KEY", "key")
	t.Setenv("STORAGE_SECRET_KEY", "secret")

	v, err := LoadConfig("")
	require.NoError(t, err)
	_, err = ParseConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.host")
}

func TestParseConfigRedisDriver(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "redis")
	t.Setenv("STORAGE_ACCESS_KEY", "key")
	t.Setenv("STORAGE_SECRET_KEY", "secret")

	v, err := LoadConfig("")
	require.NoError(t, err)
	_, err = ParseConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	v, err = LoadConfig("")
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, QueueDriverRedis, cfg.Queue.Driver)
}

func TestLoadConfigFromFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "worker:\n  max_job_runtime: 40m\nmedia:\n  font_name: Inter\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v, err := LoadConfig(path)
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Minute, cfg.Worker.MaxJobRuntime)
	assert.Equal(t, "Inter", cfg.Media.FontName)
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	setRequiredEnv(t)
	v, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	_, err = ParseConfig(v)
	require.NoError(t, err)
}
