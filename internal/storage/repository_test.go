package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/session"
)

var _ session.IdentityStore = (*SQLiteIdentityStore)(nil)

func TestIdentityStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "carteira.db")

	store, err := NewSQLiteIdentityStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, 7))
	require.NoError(t, store.Save(ctx, 9))

	id, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)

	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdentitySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "carteira.db")

	first, err := NewSQLiteIdentityStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, 42))
	require.NoError(t, first.Close())

	second, err := NewSQLiteIdentityStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	id, ok, err := second.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}
