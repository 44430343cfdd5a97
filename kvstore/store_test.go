package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedis(rdb, "cl", 0), mr
}

func newSQLiteStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]Store {
	r, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemory(),
		"redis":  r,
		"sqlite": newSQLiteStore(t),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "authUser", `{"email":"a@b.c"}`))
			v, ok, err := store.Get(ctx, "authUser")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"email":"a@b.c"}`, v)

			require.NoError(t, store.Set(ctx, "authUser", "second"))
			v, _, err = store.Get(ctx, "authUser")
			require.NoError(t, err)
			assert.Equal(t, "second", v, "last write wins")

			require.NoError(t, store.Set(ctx, "empty", ""))
			v, ok, err = store.Get(ctx, "empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, v)

			assert.ErrorIs(t, store.Set(ctx, "", "x"), ErrEmptyKey)
			_, _, err = store.Get(ctx, "")
			assert.ErrorIs(t, err, ErrEmptyKey)
		})
	}
}

func TestRedisUsesPrefix(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Set(context.Background(), "@user_email", "x@y.z"))

	got, err := mr.Get("cl:@user_email")
	require.NoError(t, err)
	assert.Equal(t, "x@y.z", got)
}

func TestRedisUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	err := store.Set(context.Background(), "k", "v")
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)

	_, _, err = store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", "v"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	assert.ErrorIs(t, m.Set(ctx, "k", "v"), context.Canceled)
	assert.Equal(t, 0, m.Len())
}
