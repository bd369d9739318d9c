package blob

import (
	"context"

	"github.com/openmined/chunksync/internal/retry"
)

// Retrying applies a retry policy around uploads.
type Retrying struct {
	store  Store
	policy retry.Policy
}

var _ Store = (*Retrying)(nil)

func WithRetry(store Store, policy retry.Policy) *Retrying {
	return &Retrying{store: store, policy: policy}
}

func (r *Retrying) Upload(ctx context.Context, name string, data []byte) (string, error) {
	return retry.DoValue(ctx, r.policy, "blob upload", func(ctx context.Context) (string, error) {
		return r.store.Upload(ctx, name, data)
	})
}
