package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LFW_DATA_DB_CONNECTION", "postgres://localhost/flood")
	t.Setenv("IMTD_API_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/flood", cfg.DatabaseURL)
	assert.Equal(t, 500, cfg.IMTDBatchSize)
	assert.Equal(t, 16, cfg.IMTDConcurrency)
	assert.Equal(t, 3, cfg.RLOIConcurrency)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "8080", cfg.Port)
	assert.NoError(t, cfg.RequireDatabase())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("IMTD_API_URL", "http://imtd.local/")
	t.Setenv("IMTD_BATCH_SIZE", "50")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("RLOI_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://imtd.local", cfg.IMTDURL)
	assert.Equal(t, 50, cfg.IMTDBatchSize)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 8, cfg.RLOIConcurrency)
}

func TestLoadInvalidTimeout(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT")
}

func TestRequireDatabase(t *testing.T) {
	assert.ErrorIs(t, Config{}.RequireDatabase(), ErrMissingDatabaseURL)
}

func TestLoadBatchSize(t *testing.T) {
	t.Setenv("IMTD_BATCH_SIZE", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.IMTDBatchSize)

	t.Setenv("IMTD_BATCH_SIZE", "-1")
	_, err = Load()
	assert.Error(t, err)
}
