// Package remote defines the chunk store capability the sync engine writes
// to, plus an in-memory double and an HTTP gateway adapter.
package remote

import (
	"context"
)

// RedirectNone marks a resource whose chunks hold the content itself.
const RedirectNone = 0

// ResourceInfo describes a live resource.
type ResourceInfo struct {
	TotalChunks  int    `json:"totalChunks"`
	ContentType  string `json:"contentType"`
	RedirectCode int    `json:"redirectCode"`
}

// Chunk is one stored slot of a resource.
type Chunk struct {
	Bytes       []byte
	ContentType string
}

// ChunkStore is a size-limited store of resources addressed by path and
// chunk index. Every call is remote and may fail.
//
// ResourceInfo and GetChunk fail with errs.ErrNotFound for a missing resource
// or an index at or past TotalChunks. SetChunk and AppendChunk return only
// once the write is confirmed. RemoveResource is idempotent.
type ChunkStore interface {
	ResourceInfo(ctx context.Context, path string) (*ResourceInfo, error)
	GetChunk(ctx context.Context, path string, index int) (*Chunk, error)
	SetChunk(ctx context.Context, path string, index int, data []byte, contentType string, redirectCode int) (receiptID string, err error)
	AppendChunk(ctx context.Context, path string, data []byte, contentType string) (receiptID string, err error)
	RemoveResource(ctx context.Context, path string) error
}
