//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	redisstore "beacon/internal/storage/redis"
	"beacon/pkg/platform/sentinel"
	"beacon/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *redisstore.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = redisstore.New(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestMissingKeyIsNotFound() {
	_, err := s.store.Get(context.Background(), "cq_event_queue")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestSetThenGet() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "cq_event_queue", `[{"eventName":"a"}]`))

	v, err := s.store.Get(ctx, "cq_event_queue")
	s.Require().NoError(err)
	s.Equal(`[{"eventName":"a"}]`, v)
}

func (s *RedisStoreSuite) TestKeysAreNamespaced() {
	ctx := context.Background()
	other := redisstore.New(s.redis.Client, redisstore.WithKeyPrefix("other:"))

	s.Require().NoError(s.store.Set(ctx, "cq_user_id", "one"))
	s.Require().NoError(other.Set(ctx, "cq_user_id", "two"))

	v, err := s.store.Get(ctx, "cq_user_id")
	s.Require().NoError(err)
	s.Equal("one", v)

	raw, err := s.redis.Client.Get(ctx, "beacon:cq_user_id").Result()
	s.Require().NoError(err)
	s.Equal("one", raw)
}
