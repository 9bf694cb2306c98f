package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMasterKey = base64.StdEncoding.EncodeToString(make([]byte, 32))

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUOTAWATCH_MASTER_KEY", testMasterKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "quotawatch.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.CheckInterval)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.RetryBackoffInitial)
	assert.Equal(t, 10*time.Minute, cfg.RetryBackoffMax)
	assert.Equal(t, 2*time.Second, cfg.ProviderSpacing)
	assert.Equal(t, 30*time.Second, cfg.CheckTimeout)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.PruneSchedule)
	assert.Len(t, cfg.MasterKey, 32)
}

func TestLoadRequiresMasterKey(t *testing.T) {
	t.Setenv("QUOTAWATCH_MASTER_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUOTAWATCH_MASTER_KEY")
}

func TestLoadRejectsShortMasterKey(t *testing.T) {
	t.Setenv("QUOTAWATCH_MASTER_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoadRejectsBadBase64(t *testing.T) {
	t.Setenv("QUOTAWATCH_MASTER_KEY", "not base64!!")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotawatch.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "0.0.0.0:9090"
check_interval: 5m
worker_count: 8
smtp:
  host: smtp.example.com
  from: alerts@example.com
`), 0o600))

	t.Setenv("QUOTAWATCH_MASTER_KEY", testMasterKey)
	t.Setenv("QUOTAWATCH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, "alerts@example.com", cfg.SMTP.From)
	assert.Equal(t, 587, cfg.SMTP.Port, "file without port keeps the default")
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotawatch.yml")
	require.NoError(t, os.WriteFile(path, []byte("worker_count: 8\n"), 0o600))

	t.Setenv("QUOTAWATCH_MASTER_KEY", testMasterKey)
	t.Setenv("QUOTAWATCH_CONFIG", path)
	t.Setenv("QUOTAWATCH_WORKER_COUNT", "2")
	t.Setenv("QUOTAWATCH_CHECK_INTERVAL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, time.Hour, cfg.CheckInterval)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("QUOTAWATCH_MASTER_KEY", testMasterKey)
	t.Setenv("QUOTAWATCH_CHECK_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUOTAWATCH_CHECK_INTERVAL")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("QUOTAWATCH_MASTER_KEY", testMasterKey)
	t.Setenv("QUOTAWATCH_WORKER_COUNT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker count")
}
