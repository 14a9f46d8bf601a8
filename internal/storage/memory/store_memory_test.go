package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		_, err := New().Get(ctx, "nope")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("set overwrites in full", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Set(ctx, "k", "a"))
		require.NoError(t, s.Set(ctx, "k", "b"))
		v, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "b", v)
	})

	t.Run("clear drops every key", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Set(ctx, "k", "a"))
		s.Clear()
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
