package gateway

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/openmined/chunksync/internal/remote"
)

const DefaultCacheTTL = 5 * time.Minute

// CachedStore serves repeated chunk reads from memory. Any write to a
// resource drops its cached chunks.
type CachedStore struct {
	remote.ChunkStore

	// mu orders fills against invalidations
	mu    sync.RWMutex
	cache *expirable.LRU[string, *cachedResource]
}

type cachedResource struct {
	mu     sync.Mutex
	chunks map[int]*remote.Chunk
}

func NewCachedStore(store remote.ChunkStore, size int, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		ChunkStore: store,
		cache:      expirable.NewLRU[string, *cachedResource](size, nil, ttl),
	}
}

func (c *CachedStore) GetChunk(ctx context.Context, path string, index int) (*remote.Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res, ok := c.cache.Get(path)
	if ok {
		res.mu.Lock()
		chunk, hit := res.chunks[index]
		res.mu.Unlock()
		if hit {
			return cloneChunk(chunk), nil
		}
	}

	chunk, err := c.ChunkStore.GetChunk(ctx, path, index)
	if err != nil {
		return nil, err
	}

	if !ok {
		res = &cachedResource{chunks: make(map[int]*remote.Chunk)}
		if prev, found := c.cache.Peek(path); found {
			res = prev
		} else {
			c.cache.Add(path, res)
		}
	}
	res.mu.Lock()
	res.chunks[index] = cloneChunk(chunk)
	res.mu.Unlock()
	return chunk, nil
}

// cloneChunk keeps callers from mutating cached bytes.
func cloneChunk(c *remote.Chunk) *remote.Chunk {
	return &remote.Chunk{Bytes: bytes.Clone(c.Bytes), ContentType: c.ContentType}
}

func (c *CachedStore) SetChunk(ctx context.Context, path string, index int, data []byte, contentType string, redirectCode int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(path)
	return c.ChunkStore.SetChunk(ctx, path, index, data, contentType, redirectCode)
}

func (c *CachedStore) AppendChunk(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(path)
	return c.ChunkStore.AppendChunk(ctx, path, data, contentType)
}

func (c *CachedStore) RemoveResource(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(path)
	return c.ChunkStore.RemoveResource(ctx, path)
}

func (c *CachedStore) Len() int {
	return c.cache.Len()
}
