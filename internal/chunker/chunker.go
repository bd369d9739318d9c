// Package chunker splits file contents into the bounded-size chunks accepted
// by the remote chunk store.
package chunker

import (
	"bytes"
	"fmt"

	"github.com/openmined/chunksync/internal/errs"
)

// DefaultMaxChunkSize is the largest payload a single remote write accepts.
const DefaultMaxChunkSize = 16 * 1024

// Chunk is one slice of a resource. Bytes aliases the buffer that was split.
type Chunk struct {
	Index       int
	Bytes       []byte
	ContentType string
}

// Chunker splits with a fixed maximum chunk size.
type Chunker struct {
	maxChunkSize int
}

func New(maxChunkSize int) (*Chunker, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be > 0, got %d", errs.ErrInvalidConfiguration, maxChunkSize)
	}
	return &Chunker{maxChunkSize: maxChunkSize}, nil
}

func (c *Chunker) MaxChunkSize() int {
	return c.maxChunkSize
}

// Split slices data into chunks and stamps each one with contentType.
func (c *Chunker) Split(data []byte, contentType string) []Chunk {
	chunks := split(data, c.maxChunkSize)
	for i := range chunks {
		chunks[i].ContentType = contentType
	}
	return chunks
}

// Count returns the number of chunks a payload of size bytes splits into.
func (c *Chunker) Count(size int) int {
	if size <= 0 {
		return 1
	}
	return (size + c.maxChunkSize - 1) / c.maxChunkSize
}

// Split slices data into ordered chunks of at most maxChunkSize bytes. Chunk i
// holds data[i*max : min((i+1)*max, len)]. Empty input yields a single empty
// chunk so that an empty file is still representable remotely.
func Split(data []byte, maxChunkSize int) ([]Chunk, error) {
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("%w: max chunk size must be > 0, got %d", errs.ErrInvalidConfiguration, maxChunkSize)
	}
	return split(data, maxChunkSize), nil
}

func split(data []byte, maxChunkSize int) []Chunk {
	if len(data) == 0 {
		return []Chunk{{Index: 0, Bytes: []byte{}}}
	}

	chunks := make([]Chunk, 0, (len(data)+maxChunkSize-1)/maxChunkSize)
	for start, index := 0, 0; start < len(data); start, index = start+maxChunkSize, index+1 {
		end := min(start+maxChunkSize, len(data))
		// cap the slice so appends by a consumer can't bleed into the next chunk
		chunks = append(chunks, Chunk{Index: index, Bytes: data[start:end:end]})
	}
	return chunks
}

// Join concatenates chunks in index order. The chunks must be contiguous from 0.
func Join(chunks []Chunk) ([]byte, error) {
	var buf bytes.Buffer
	for i, c := range chunks {
		if c.Index != i {
			return nil, fmt.Errorf("chunk %d out of order: have index %d", i, c.Index)
		}
		buf.Write(c.Bytes)
	}
	return buf.Bytes(), nil
}
