package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/pkg/platform/sentinel"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage path is required")
}

func TestStore_GetMissingKey(t *testing.T) {
	store, _ := openTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestStore_SetOverwrites(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "first"))
	require.NoError(t, store.Set(ctx, "k", "second"))

	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestStore_SurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "cq_user_id", "abc"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, "cq_user_id")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestStore_CloseNil(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
}
