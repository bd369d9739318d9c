package remote

import (
	"bytes"
	"context"
	"fmt"
)

// Resource is a reassembled remote resource.
type Resource struct {
	Path         string
	Content      []byte
	ContentType  string
	RedirectCode int
	TotalChunks  int
}

// ReadResource fetches every chunk of path in index order and joins them.
// The content type of chunk 0 is reported for the whole resource.
func ReadResource(ctx context.Context, store ChunkStore, path string) (*Resource, error) {
	info, err := store.ResourceInfo(ctx, path)
	if err != nil {
		return nil, err
	}

	res := &Resource{
		Path:         path,
		ContentType:  info.ContentType,
		RedirectCode: info.RedirectCode,
		TotalChunks:  info.TotalChunks,
	}

	var buf bytes.Buffer
	for i := range info.TotalChunks {
		chunk, err := store.GetChunk(ctx, path, i)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d of %q: %w", i, path, err)
		}
		if i == 0 && chunk.ContentType != "" {
			res.ContentType = chunk.ContentType
		}
		buf.Write(chunk.Bytes)
	}
	res.Content = buf.Bytes()

	return res, nil
}
