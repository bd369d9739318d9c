package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemoryStore()
	mem.Seed("/a.txt", "text/plain", []byte("aaaa"), []byte("bbbb"))
	cached := NewCachedStore(mem, 8, time.Minute)

	for range 3 {
		c, err := cached.GetChunk(ctx, "/a.txt", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("bbbb"), c.Bytes)
	}
	assert.Equal(t, 1, mem.Calls(remote.OpGetChunk))
	assert.Equal(t, 1, cached.Len())

	_, err := cached.SetChunk(ctx, "/a.txt", 1, []byte("BBBB"), "text/plain", remote.RedirectNone)
	require.NoError(t, err)
	assert.Zero(t, cached.Len())

	c, err := cached.GetChunk(ctx, "/a.txt", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("BBBB"), c.Bytes)
	assert.Equal(t, 2, mem.Calls(remote.OpGetChunk))

	require.NoError(t, cached.RemoveResource(ctx, "/a.txt"))
	_, err = cached.GetChunk(ctx, "/a.txt", 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCachedStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemoryStore()
	mem.Seed("/a.txt", "text/plain", []byte("aaaa"))
	cached := NewCachedStore(mem, 8, time.Minute)

	first, err := cached.GetChunk(ctx, "/a.txt", 0)
	require.NoError(t, err)
	first.Bytes[0] = 'X'

	hit, err := cached.GetChunk(ctx, "/a.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaa"), hit.Bytes)
	hit.Bytes[1] = 'Y'

	again, err := cached.GetChunk(ctx, "/a.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("aaaa"), again.Bytes)
	assert.Equal(t, 1, mem.Calls(remote.OpGetChunk))
}

func TestCachedStoreAppendInvalidates(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemoryStore()
	mem.Seed("/a.txt", "text/plain", []byte("aaaa"))
	cached := NewCachedStore(mem, 8, 0)

	_, err := cached.GetChunk(ctx, "/a.txt", 0)
	require.NoError(t, err)
	_, err = cached.AppendChunk(ctx, "/a.txt", []byte("bbbb"), "text/plain")
	require.NoError(t, err)
	assert.Zero(t, cached.Len())

	info, err := cached.ResourceInfo(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalChunks)
}

func TestCachedStoreEvicts(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemoryStore()
	for _, p := range []string{"/a", "/b", "/c"} {
		mem.Seed(p, "text/plain", []byte(p))
	}
	cached := NewCachedStore(mem, 2, time.Minute)

	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := cached.GetChunk(ctx, p, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Len())
}
