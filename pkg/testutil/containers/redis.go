//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"beacon/internal/platform/config"
	platformredis "beacon/internal/platform/redis"
)

// RedisContainer is a disposable Redis server with a connected client built
// the same way the agent builds its own.
type RedisContainer struct {
	Container testcontainers.Container
	Config    config.RedisConfig
	Client    *platformredis.Client
}

// NewRedisContainer starts Redis and registers cleanup with t.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err, "redis connection string")

	cfg := config.RedisConfig{URL: url, KeyPrefix: "beacon:"}
	client, err := platformredis.New(ctx, cfg)
	require.NoError(t, err, "connect to redis container")
	t.Cleanup(func() { _ = client.Close() })

	return &RedisContainer{Container: container, Config: cfg, Client: client}
}

// FlushAll empties the database between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
