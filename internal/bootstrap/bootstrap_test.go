package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/platform/config"
	"beacon/internal/platform/metrics"
	"beacon/internal/sink"
	"beacon/internal/sink/breaker"
	"beacon/internal/storage/memory"
	"beacon/internal/storage/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Config{Storage: config.StorageConfig{
			Driver:     config.StorageSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "beacon.db"),
		}}
		s, cleanup, err := OpenStorage(ctx, cfg)
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &sqlite.Store{}, s)
		require.NoError(t, s.Set(ctx, "k", "v"))
	})

	t.Run("memory", func(t *testing.T) {
		s, cleanup, err := OpenStorage(ctx, config.Config{Storage: config.StorageConfig{Driver: config.StorageMemory}})
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &memory.InMemoryStore{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, cleanup, err := OpenStorage(ctx, config.Config{Storage: config.StorageConfig{Driver: "etcd"}})
		assert.Error(t, err)
		cleanup()
	})

	t.Run("redis without url", func(t *testing.T) {
		_, _, err := OpenStorage(ctx, config.Config{Storage: config.StorageConfig{Driver: config.StorageRedis}})
		assert.Error(t, err)
	})
}

func TestNewSink(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())

	t.Run("log sink is wrapped in a breaker", func(t *testing.T) {
		cfg := config.Config{Sink: config.SinkConfig{Kind: config.SinkLog}}
		s, cleanup, err := NewSink(ctx, cfg, discardLogger(), m)
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &breaker.Sink{}, s)
		assert.NoError(t, s.Deliver(ctx, "app_started", nil))
	})

	t.Run("posthog sink identifies", func(t *testing.T) {
		cfg := config.Config{Sink: config.SinkConfig{
			Kind:          config.SinkPostHog,
			PostHogAPIKey: "phc_test",
			PostHogHost:   "http://127.0.0.1:1",
		}}
		s, cleanup, err := NewSink(ctx, cfg, discardLogger(), nil)
		require.NoError(t, err)
		defer cleanup()
		_, ok := s.(sink.Identifier)
		assert.True(t, ok)
	})

	t.Run("unknown sink", func(t *testing.T) {
		_, _, err := NewSink(ctx, config.Config{Sink: config.SinkConfig{Kind: "stdout"}}, discardLogger(), nil)
		assert.Error(t, err)
	})
}
