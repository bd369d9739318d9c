package blob

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps blobs in memory keyed by their digest.
type MemoryStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	uploads map[string]int
	failFn  func(name string) error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string][]byte),
		uploads: make(map[string]int),
	}
}

// FailWith makes uploads fail whenever fn returns an error.
func (m *MemoryStore) FailWith(fn func(name string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

func (m *MemoryStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.failFn != nil {
		if err := m.failFn(name); err != nil {
			return "", err
		}
	}

	id := Digest(data)
	m.blobs[id] = bytes.Clone(data)
	m.uploads[name]++
	return id, nil
}

// Get returns a stored blob.
func (m *MemoryStore) Get(blobID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[blobID]
	return data, ok
}

// Uploads is how many successful uploads were made for name.
func (m *MemoryStore) Uploads(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads[name]
}

// TotalUploads counts successful uploads across all names.
func (m *MemoryStore) TotalUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.uploads {
		n += c
	}
	return n
}
