package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriva/eventsync/pkg/config"
)

type workerConfig struct {
	MaxRetries  int           `env:"TEST_WORKER_MAX_RETRIES" envDefault:"5"`
	BackoffBase time.Duration `env:"TEST_WORKER_BACKOFF_BASE" envDefault:"1s"`
	Concurrency int           `env:"TEST_WORKER_CONCURRENCY" envDefault:"10"`
}

type overrideConfig struct {
	Interval time.Duration `env:"TEST_OVERRIDE_INTERVAL" envDefault:"30s"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg workerConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 10, cfg.Concurrency)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TEST_OVERRIDE_INTERVAL", "5m")

	var cfg overrideConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 5*time.Minute, cfg.Interval)
}

func TestLoad_CachedAcrossCalls(t *testing.T) {
	var first workerConfig
	require.NoError(t, config.Load(&first))

	// Changing the environment after the first load must not change the
	// cached result for the same type.
	t.Setenv("TEST_WORKER_MAX_RETRIES", "99")

	var second workerConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, first, second)
}

func TestLoad_NilPointer(t *testing.T) {
	t.Parallel()

	err := config.Load[workerConfig](nil)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}
