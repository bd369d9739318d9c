package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/db"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/openmined/chunksync/internal/router"
	"github.com/openmined/chunksync/internal/utils"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenChunkStore connects to the configured chunk store. The closer releases
// whatever the store holds open.
func (c *Config) OpenChunkStore(ctx context.Context) (remote.ChunkStore, io.Closer, error) {
	switch c.Remote.Backend {
	case RemoteSQLite:
		conn, err := db.NewSqliteDB(db.WithPath(c.Remote.DBPath))
		if err != nil {
			return nil, nil, err
		}
		store, err := remote.NewSQLStore(ctx, conn, c.MaxChunkSize)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		slog.Debug("chunk store", "backend", RemoteSQLite, "path", c.Remote.DBPath)
		return store, conn, nil

	case RemoteHTTP:
		store, err := remote.NewHTTPStore(c.Remote.URL, c.Remote.Token, c.Remote.Timeout)
		if err != nil {
			return nil, nil, err
		}
		slog.Debug("chunk store", "backend", RemoteHTTP, "url", c.Remote.URL)
		return store, nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown remote backend %q", errs.ErrInvalidConfiguration, c.Remote.Backend)
	}
}

func (c *Config) OpenBlobStore(ctx context.Context) (blob.Store, error) {
	switch c.Blob.Backend {
	case blob.BackendPinata:
		return blob.NewPinataStore(&c.Blob.Pinata, c.Remote.Timeout)
	case blob.BackendS3:
		return blob.NewS3Store(ctx, &c.Blob.S3)
	case blob.BackendMemory:
		return blob.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown blob backend %q", errs.ErrInvalidConfiguration, c.Blob.Backend)
	}
}

func (c *Config) Router() (*router.Router, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}
	return router.New(policy, utils.ContentTypeForExt)
}

func (c *Config) Chunker() (*chunker.Chunker, error) {
	return chunker.New(c.MaxChunkSize)
}

// IgnoreMatcher loads the ignore file. A missing file leaves the defaults.
func (c *Config) IgnoreMatcher() (*ignore.Matcher, error) {
	if c.IgnoreFile == "" {
		return ignore.New(), nil
	}
	return ignore.Load(c.IgnoreFile)
}
