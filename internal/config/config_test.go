package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.DatabaseDriver)
	assert.Equal(t, 2*time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 8, cfg.ClaimRetries)
	assert.Equal(t, 30*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, 20, cfg.AssetPrepBatchSize)
	assert.Equal(t, int64(26214400), cfg.ImageMaxBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_DSN", ":memory:")
	t.Setenv("WORKER_POLL_INTERVAL", "500ms")
	t.Setenv("ASSET_PREP_BATCH_SIZE", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, ":memory:", cfg.DatabaseDSN)
	assert.Equal(t, 500*time.Millisecond, cfg.WorkerPollInterval)
	assert.Equal(t, 5, cfg.AssetPrepBatchSize)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")
}

func TestLoadRejectsZeroAttempts(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ATTEMPTS")
}
