package remote

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openmined/chunksync/internal/errs"
)

// Op names a chunk store call in the write log and in failure rules.
type Op string

const (
	OpResourceInfo   Op = "resourceInfo"
	OpGetChunk       Op = "getChunk"
	OpSetChunk       Op = "setChunk"
	OpAppendChunk    Op = "appendChunk"
	OpRemoveResource Op = "removeResource"
)

// Write is one confirmed mutation recorded by MemoryStore.
type Write struct {
	Op        Op
	Path      string
	Index     int
	ReceiptID string
}

// FailFunc decides whether a call should fail. Returning nil lets it through.
type FailFunc func(op Op, path string, index int) error

type memResource struct {
	chunks       []Chunk
	redirectCode int
}

// MemoryStore is a ChunkStore held in memory. It records every confirmed
// write and can be told to fail calls, which makes it the test double for
// the driver and reconciler.
type MemoryStore struct {
	mu        sync.Mutex
	resources map[string]*memResource
	writes    []Write
	calls     map[Op]int
	failFn    FailFunc
}

var _ ChunkStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[string]*memResource),
		calls:     make(map[Op]int),
	}
}

// FailWith installs fn as the failure rule for every following call.
func (m *MemoryStore) FailWith(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

// Seed stores chunks for path without logging writes.
func (m *MemoryStore) Seed(path string, contentType string, chunks ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &memResource{}
	for _, c := range chunks {
		res.chunks = append(res.chunks, Chunk{Bytes: bytes.Clone(c), ContentType: contentType})
	}
	m.resources[path] = res
}

// Writes returns a copy of the write log.
func (m *MemoryStore) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writes)
}

// WritesFor returns the logged writes against path.
func (m *MemoryStore) WritesFor(path string) []Write {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Write
	for _, w := range m.writes {
		if w.Path == path {
			out = append(out, w)
		}
	}
	return out
}

// Calls returns how many times op was invoked, failed calls included.
func (m *MemoryStore) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ResetLog clears the write log and call counters.
func (m *MemoryStore) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
	m.calls = make(map[Op]int)
}

func (m *MemoryStore) ResourceInfo(ctx context.Context, path string) (*ResourceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, OpResourceInfo, path, -1); err != nil {
		return nil, err
	}

	res, ok := m.resources[path]
	if !ok || len(res.chunks) == 0 {
		return nil, fmt.Errorf("resource %q: %w", path, errs.ErrNotFound)
	}
	return &ResourceInfo{
		TotalChunks:  len(res.chunks),
		ContentType:  res.chunks[0].ContentType,
		RedirectCode: res.redirectCode,
	}, nil
}

func (m *MemoryStore) GetChunk(ctx context.Context, path string, index int) (*Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, OpGetChunk, path, index); err != nil {
		return nil, err
	}

	res, ok := m.resources[path]
	if !ok || index < 0 || index >= len(res.chunks) {
		return nil, fmt.Errorf("chunk %d of %q: %w", index, path, errs.ErrNotFound)
	}
	c := res.chunks[index]
	return &Chunk{Bytes: bytes.Clone(c.Bytes), ContentType: c.ContentType}, nil
}

func (m *MemoryStore) SetChunk(ctx context.Context, path string, index int, data []byte, contentType string, redirectCode int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, OpSetChunk, path, index); err != nil {
		return "", err
	}

	res := m.resources[path]
	if res == nil {
		res = &memResource{}
		m.resources[path] = res
	}
	// a set may extend the resource by exactly one slot
	if index < 0 || index > len(res.chunks) {
		return "", fmt.Errorf("set chunk %d of %q with %d chunks: %w", index, path, len(res.chunks), errs.ErrRejected)
	}

	c := Chunk{Bytes: bytes.Clone(data), ContentType: contentType}
	if index == len(res.chunks) {
		res.chunks = append(res.chunks, c)
	} else {
		res.chunks[index] = c
	}
	res.redirectCode = redirectCode

	return m.record(OpSetChunk, path, index), nil
}

func (m *MemoryStore) AppendChunk(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.resources[path]
	index := 0
	if res != nil {
		index = len(res.chunks)
	}
	if err := m.enter(ctx, OpAppendChunk, path, index); err != nil {
		return "", err
	}

	if res == nil {
		res = &memResource{}
		m.resources[path] = res
	}
	res.chunks = append(res.chunks, Chunk{Bytes: bytes.Clone(data), ContentType: contentType})

	return m.record(OpAppendChunk, path, index), nil
}

func (m *MemoryStore) RemoveResource(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, OpRemoveResource, path, -1); err != nil {
		return err
	}

	delete(m.resources, path)
	m.record(OpRemoveResource, path, -1)
	return nil
}

// enter counts the call and applies the failure rule. Caller holds mu.
func (m *MemoryStore) enter(ctx context.Context, op Op, path string, index int) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failFn != nil {
		if err := m.failFn(op, path, index); err != nil {
			return err
		}
	}
	return nil
}

// record logs a confirmed write. Caller holds mu.
func (m *MemoryStore) record(op Op, path string, index int) string {
	receipt := "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	m.writes = append(m.writes, Write{Op: op, Path: path, Index: index, ReceiptID: receipt})
	return receipt
}
