package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_WriteReadDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Read(ctx, "missing")
	require.Error(t, err)

	require.NoError(t, s.Write(ctx, "k1", []byte("v1")))
	v, err := s.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Delete(ctx, "k1"))
	_, err = s.Read(ctx, "k1")
	require.Error(t, err)
}

func TestMemoryStore_ListByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "scope1/a", []byte("1")))
	require.NoError(t, s.Write(ctx, "scope1/b", []byte("2")))
	require.NoError(t, s.Write(ctx, "scope2/a", []byte("3")))

	keys, err := s.List(ctx, "scope1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"scope1/a", "scope1/b"}, keys)
}

func TestMemoryStore_WriteIsolatesCallerSlice(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("original")
	require.NoError(t, s.Write(ctx, "k", buf))
	buf[0] = 'X'

	v, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), v)
}
