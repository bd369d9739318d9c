package remote

import (
	"context"

	"github.com/openmined/chunksync/internal/retry"
)

// Retrying applies one retry policy around every call of a ChunkStore.
type Retrying struct {
	store  ChunkStore
	policy retry.Policy
}

var _ ChunkStore = (*Retrying)(nil)

func WithRetry(store ChunkStore, policy retry.Policy) *Retrying {
	return &Retrying{store: store, policy: policy}
}

func (r *Retrying) ResourceInfo(ctx context.Context, path string) (*ResourceInfo, error) {
	return retry.DoValue(ctx, r.policy, "resource info", func(ctx context.Context) (*ResourceInfo, error) {
		return r.store.ResourceInfo(ctx, path)
	})
}

func (r *Retrying) GetChunk(ctx context.Context, path string, index int) (*Chunk, error) {
	return retry.DoValue(ctx, r.policy, "get chunk", func(ctx context.Context) (*Chunk, error) {
		return r.store.GetChunk(ctx, path, index)
	})
}

func (r *Retrying) SetChunk(ctx context.Context, path string, index int, data []byte, contentType string, redirectCode int) (string, error) {
	return retry.DoValue(ctx, r.policy, "set chunk", func(ctx context.Context) (string, error) {
		return r.store.SetChunk(ctx, path, index, data, contentType, redirectCode)
	})
}

func (r *Retrying) AppendChunk(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	return retry.DoValue(ctx, r.policy, "append chunk", func(ctx context.Context) (string, error) {
		return r.store.AppendChunk(ctx, path, data, contentType)
	})
}

func (r *Retrying) RemoveResource(ctx context.Context, path string) error {
	return r.policy.Do(ctx, "remove resource", func(ctx context.Context) error {
		return r.store.RemoveResource(ctx, path)
	})
}
