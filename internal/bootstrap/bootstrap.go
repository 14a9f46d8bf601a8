// Package bootstrap builds the configured storage backend and sink. Both
// binaries share it so the agent and the CLI always read the same queue.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"beacon/internal/platform/config"
	"beacon/internal/platform/metrics"
	platformredis "beacon/internal/platform/redis"
	"beacon/internal/sink"
	"beacon/internal/sink/breaker"
	"beacon/internal/sink/kafka"
	"beacon/internal/sink/posthog"
	"beacon/internal/storage"
	"beacon/internal/storage/memory"
	"beacon/internal/storage/postgres"
	redisstore "beacon/internal/storage/redis"
	"beacon/internal/storage/sqlite"
)

// Cleanup releases resources acquired while building a component.
type Cleanup func()

func noop() {}

// OpenStorage opens the backend selected by cfg.Storage.Driver.
func OpenStorage(ctx context.Context, cfg config.Config) (storage.Storage, Cleanup, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorageRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return redisstore.New(client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix)), func() { _ = client.Close() }, nil
	case config.StoragePostgres:
		s, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StorageMemory:
		return memory.New(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// NewSink builds the configured sink guarded by a circuit breaker. m may be
// nil.
func NewSink(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (sink.Sink, Cleanup, error) {
	var (
		inner   sink.Sink
		cleanup Cleanup = noop
	)
	switch cfg.Sink.Kind {
	case config.SinkPostHog:
		c, err := posthog.New(cfg.Sink.PostHogAPIKey,
			posthog.WithHost(cfg.Sink.PostHogHost),
			posthog.WithTimeout(cfg.Sink.PostHogTimeout),
		)
		if err != nil {
			return nil, noop, err
		}
		inner = c
	case config.SinkKafka:
		client, err := kafka.NewClient(cfg.Sink.KafkaBrokers)
		if err != nil {
			return nil, noop, err
		}
		if err := kafka.EnsureTopic(ctx, client, cfg.Sink.KafkaTopic, 1); err != nil {
			logger.WarnContext(ctx, "could not ensure kafka topic", "topic", cfg.Sink.KafkaTopic, "error", err)
		}
		s, err := kafka.New(client, cfg.Sink.KafkaTopic)
		if err != nil {
			client.Close()
			return nil, noop, err
		}
		inner, cleanup = s, client.Close
	case config.SinkLog:
		inner = sink.NewLogSink(logger)
	default:
		return nil, noop, fmt.Errorf("unknown sink %q", cfg.Sink.Kind)
	}

	var opts []breaker.Option
	if m != nil {
		opts = append(opts, breaker.WithStateHook(m.SetBreakerOpen))
	}
	cb := breaker.NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
	return breaker.Wrap(inner, cb, opts...), cleanup, nil
}
