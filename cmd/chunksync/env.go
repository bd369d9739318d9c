package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/journal"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/openmined/chunksync/internal/syncer"
)

// syncEnv is everything a sync pass needs, opened from the config.
type syncEnv struct {
	cfg     *config.Config
	chunks  remote.ChunkStore
	blobs   blob.Store
	journal *journal.Journal
	driver  *syncer.Driver

	closers []io.Closer
}

func openSyncEnv(ctx context.Context, cfg *config.Config, opts syncer.Options) (*syncEnv, error) {
	env := &syncEnv{cfg: cfg}
	opened := false
	defer func() {
		if !opened {
			env.Close()
		}
	}()

	chunks, closer, err := cfg.OpenChunkStore(ctx)
	if err != nil {
		return nil, err
	}
	env.chunks = chunks
	env.closers = append(env.closers, closer)

	if env.blobs, err = cfg.OpenBlobStore(ctx); err != nil {
		return nil, err
	}

	r, err := cfg.Router()
	if err != nil {
		return nil, err
	}
	c, err := cfg.Chunker()
	if err != nil {
		return nil, err
	}
	m, err := cfg.IgnoreMatcher()
	if err != nil {
		return nil, err
	}

	if cfg.JournalPath != "" && !opts.DryRun {
		if env.journal, err = journal.Open(ctx, cfg.JournalPath); err != nil {
			return nil, err
		}
		env.closers = append(env.closers, env.journal)
	}

	env.driver, err = syncer.NewDriver(&syncer.DriverConfig{
		Options: opts,
		Router:  r,
		Chunker: c,
		Ignore:  m,
		Chunks:  chunks,
		Blobs:   env.blobs,
		Journal: env.journal,
		Retry:   cfg.RetryPolicy(),
	})
	if err != nil {
		return nil, err
	}
	opened = true
	return env, nil
}

func (e *syncEnv) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("close", "error", err)
		return err
	}
	return nil
}
