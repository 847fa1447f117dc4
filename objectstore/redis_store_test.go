package objectstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisStoreOptions{
		RedisURL:  "redis://" + mr.Addr(),
		Namespace: "rhema-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_WriteReadDelete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "a", []byte("hello")))
	v, err := s.Read(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Read(ctx, "a")
	assert.Error(t, err)
}

func TestRedisStore_ReadMissingKeyFails(t *testing.T) {
	s := newTestRedisStore(t)
	_, err := s.Read(context.Background(), "missing")
	require.Error(t, err)
}

func TestRedisStore_ListByPrefixStripsNamespace(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "scope-a/file1", []byte("1")))
	require.NoError(t, s.Write(ctx, "scope-a/file2", []byte("2")))
	require.NoError(t, s.Write(ctx, "scope-b/file1", []byte("3")))

	keys, err := s.List(ctx, "scope-a/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scope-a/file1", "scope-a/file2"}, keys)
}

func TestRedisStore_HealthCheckSucceeds(t *testing.T) {
	s := newTestRedisStore(t)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestNewRedisStore_RejectsEmptyURL(t *testing.T) {
	_, err := NewRedisStore(RedisStoreOptions{})
	assert.Error(t, err)
}
