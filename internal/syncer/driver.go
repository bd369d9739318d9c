package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/journal"
	"github.com/openmined/chunksync/internal/manifest"
	"github.com/openmined/chunksync/internal/reconcile"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/openmined/chunksync/internal/retry"
	"github.com/openmined/chunksync/internal/router"
	"github.com/openmined/chunksync/internal/utils"
	"golang.org/x/sync/errgroup"
)

type DriverConfig struct {
	Options

	Router  *router.Router
	Chunker *chunker.Chunker
	// Ignore defaults to the built-in rules.
	Ignore *ignore.Matcher
	Chunks remote.ChunkStore
	Blobs  blob.Store
	// Manifest is loaded from ManifestPath when nil.
	Manifest *manifest.Manifest
	// Journal is optional.
	Journal *journal.Journal
	// Retry wraps every chunk and blob store call. The zero value means
	// retry.DefaultPolicy.
	Retry  retry.Policy
	Status *StatusTracker
}

func (c *DriverConfig) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return err
	}
	if c.Router == nil {
		return fmt.Errorf("%w: router missing", errs.ErrInvalidConfiguration)
	}
	if c.Chunker == nil {
		return fmt.Errorf("%w: chunker missing", errs.ErrInvalidConfiguration)
	}
	if c.Chunks == nil {
		return fmt.Errorf("%w: chunk store missing", errs.ErrInvalidConfiguration)
	}
	if c.Blobs == nil {
		return fmt.Errorf("%w: blob store missing", errs.ErrInvalidConfiguration)
	}
	return nil
}

// Driver reconciles a build folder against the chunk store, one pass at a
// time.
type Driver struct {
	opts     Options
	router   *router.Router
	chunker  *chunker.Chunker
	ignore   *ignore.Matcher
	chunks   remote.ChunkStore
	blobs    blob.Store
	manifest *manifest.Manifest
	journal  *journal.Journal
	status   *StatusTracker

	passMu sync.Mutex
	saveMu sync.Mutex
}

func NewDriver(cfg *DriverConfig) (*Driver, error) {
	cfg.Options.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	matcher := cfg.Ignore
	if matcher == nil {
		matcher = ignore.New()
	}

	status := cfg.Status
	if status == nil {
		status = NewStatusTracker()
	}

	m := cfg.Manifest
	if m == nil {
		var err error
		if m, err = loadManifest(cfg.ManifestPath); err != nil {
			return nil, err
		}
	}

	return &Driver{
		opts:     cfg.Options,
		router:   cfg.Router,
		chunker:  cfg.Chunker,
		ignore:   matcher,
		chunks:   remote.WithRetry(cfg.Chunks, policy),
		blobs:    blob.WithRetry(cfg.Blobs, policy),
		manifest: m,
		journal:  cfg.Journal,
		status:   status,
	}, nil
}

// loadManifest treats a corrupt manifest as empty after a warning.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return manifest.New(), nil
	}
	m, err := manifest.Load(path)
	if errors.Is(err, errs.ErrManifestCorrupt) {
		slog.Warn("manifest unreadable, starting from an empty one", "path", path, "error", err)
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Driver) Manifest() *manifest.Manifest {
	return d.manifest
}

func (d *Driver) Status() *StatusTracker {
	return d.status
}

func (d *Driver) Options() Options {
	return d.opts
}

// Run makes one pass over the build folder. Failures of single files are
// reported in the result and never end the pass early; the returned error is
// reserved for conditions that prevent the pass as a whole.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	release, err := d.lock()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result := newResult(uuid.NewString())
	d.status.Reset()
	slog.Info("sync pass started", "run", result.RunID, "root", d.opts.BuildFolder, "workers", d.opts.Workers, "dryRun", d.opts.DryRun)

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)

	for asset, err := range Walk(d.opts.BuildFolder, d.ignore) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if asset == nil {
				g.Wait()
				return nil, err
			}
			d.status.SetFailed(asset.RelativePath, err)
			result.fail(asset.RelativePath, err)
			slog.Error("traverse", "path", asset.RelativePath, "error", err)
			continue
		}

		d.status.Set(asset.RelativePath, StateDiscovered)
		if asset.Ignored || asset.IsDir || !d.opts.included(asset.RelativePath) {
			d.status.Set(asset.RelativePath, StateSkipped)
			result.skip(asset.RelativePath)
			slog.Debug("skip", "path", asset.RelativePath)
			continue
		}

		g.Go(func() error {
			d.syncOne(ctx, result, asset, asset.RelativePath)
			return nil
		})
	}
	g.Wait()

	if err := d.saveManifest(); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)
	result.sort()
	d.logSummary(result)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// SyncFile syncs one file of the build folder, ignoring the ignore rules and
// include globs. key overrides the remote resource key; empty uses relPath.
func (d *Driver) SyncFile(ctx context.Context, relPath, key string) (*Result, error) {
	d.passMu.Lock()
	defer d.passMu.Unlock()

	release, err := d.lock()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result := newResult(uuid.NewString())

	asset, err := NewLocalAsset(d.opts.BuildFolder, relPath)
	if err != nil {
		norm := utils.NormPath(relPath)
		d.status.SetFailed(norm, err)
		result.fail(norm, err)
	} else {
		if key == "" {
			key = asset.RelativePath
		}
		d.status.Set(asset.RelativePath, StateDiscovered)
		d.syncOne(ctx, result, asset, utils.NormPath(key))
	}

	if err := d.saveManifest(); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)
	d.logSummary(result)
	return result, nil
}

func (d *Driver) lock() (func(), error) {
	if d.opts.DryRun || d.opts.ManifestPath == "" {
		return func() {}, nil
	}
	lock, err := manifest.AcquireLock(d.opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(); err != nil {
			slog.Warn("release manifest lock", "path", lock.Path(), "error", err)
		}
	}, nil
}

func (d *Driver) saveManifest() error {
	if d.opts.DryRun || d.opts.ManifestPath == "" {
		return nil
	}
	d.saveMu.Lock()
	defer d.saveMu.Unlock()
	return d.manifest.Save(d.opts.ManifestPath)
}

func (d *Driver) syncOne(ctx context.Context, result *Result, asset *LocalAsset, key string) {
	unchanged, err := d.syncAsset(ctx, result, asset, key)
	if err != nil {
		f := result.fail(asset.RelativePath, err)
		d.status.SetFailed(asset.RelativePath, err)
		slog.Error("sync file", "path", asset.RelativePath, "kind", f.Kind, "error", err)
		return
	}

	result.succeed(asset.RelativePath, unchanged)
	if d.opts.IncrementalManifest {
		if err := d.saveManifest(); err != nil {
			slog.Warn("save manifest", "path", d.opts.ManifestPath, "error", err)
		}
	}
}

func (d *Driver) syncAsset(ctx context.Context, result *Result, asset *LocalAsset, key string) (bool, error) {
	data, err := asset.Read()
	if err != nil {
		return false, err
	}

	decision := d.router.Route(router.Asset{
		RelativePath: asset.RelativePath,
		Extension:    asset.Extension,
		Size:         int64(len(data)),
	})
	d.status.Set(asset.RelativePath, StateRouted)
	slog.Debug("routed", "path", asset.RelativePath, "destination", decision.Destination, "contentType", decision.ContentType, "size", len(data))

	if decision.IsExternal() {
		return d.syncExternal(ctx, result, asset.RelativePath, key, data, decision.ContentType)
	}

	receipt, unchanged, err := d.reconcile(ctx, result, asset.RelativePath, key, data, decision.ContentType, remote.RedirectNone)
	if err != nil {
		return false, err
	}
	if !d.opts.DryRun && receipt != "" {
		d.manifest.AddReceipt(receipt, asset.RelativePath)
	}
	d.status.Set(asset.RelativePath, StateManifestUpdated)
	return unchanged, nil
}

func (d *Driver) syncExternal(ctx context.Context, result *Result, relPath, key string, data []byte, contentType string) (bool, error) {
	var digest string
	if d.opts.BlobIdempotence == BlobByDigest {
		digest = blob.Digest(data)
	}

	blobID, known := d.manifest.ExternalBlob(relPath)
	current := known
	if known && d.opts.BlobIdempotence == BlobByDigest {
		recorded, ok := d.manifest.ExternalDigest(relPath)
		current = ok && recorded == digest
	}

	switch {
	case current:
		slog.Debug("blob already uploaded", "path", relPath, "blob", blobID)
	case d.opts.DryRun:
		slog.Info("would upload", "path", relPath, "size", len(data))
		d.status.Set(relPath, StateUploaded)
		return false, nil
	default:
		id, err := d.blobs.Upload(ctx, relPath, data)
		if err != nil {
			return false, fmt.Errorf("upload %q: %w", relPath, err)
		}
		blobID = id
		result.addUpload()
		slog.Info("uploaded", "path", relPath, "blob", blobID, "size", len(data))
	}
	d.status.Set(relPath, StateUploaded)

	unchanged := current
	var receipt string
	if d.opts.WriteRedirects {
		target := blob.URL(d.opts.BlobURLTemplate, blobID)
		var err error
		var same bool
		receipt, same, err = d.reconcile(ctx, result, relPath, key, []byte(target), contentType, d.opts.RedirectCode)
		if err != nil {
			return false, err
		}
		unchanged = unchanged && same
	}

	if !d.opts.DryRun {
		d.manifest.SetExternal(relPath, blobID, digest)
		if receipt != "" {
			d.manifest.AddReceipt(receipt, relPath)
		}
	}
	d.status.Set(relPath, StateManifestUpdated)
	return unchanged, nil
}

// reconcile brings the resource at key in line with data and returns the
// receipt of its last write, empty when nothing was written.
func (d *Driver) reconcile(ctx context.Context, result *Result, relPath, key string, data []byte, contentType string, redirectCode int) (string, bool, error) {
	local := d.chunker.Split(data, contentType)
	d.status.Set(relPath, StateChunked)

	total, err := reconcile.Probe(ctx, d.chunks, key)
	if err != nil {
		return "", false, err
	}

	// a tail left on the remote means the resource still differs
	tailLeft := false
	if tail := reconcile.StaleTail(len(local), total); len(tail) > 0 {
		switch d.opts.StaleTail {
		case StaleTailError:
			return "", false, fmt.Errorf("%w: %q has %d remote chunks past local chunk %d", errs.ErrStaleTail, key, len(tail), len(local)-1)
		case StaleTailTruncate:
			if !d.opts.DryRun {
				if err := d.chunks.RemoveResource(ctx, key); err != nil {
					return "", false, fmt.Errorf("truncate %q: %w", key, err)
				}
			}
			slog.Info("truncated remote resource", "path", relPath, "key", key, "staleChunks", len(tail))
			total = 0
		default:
			result.staleTail(relPath, tail)
			tailLeft = true
			slog.Warn("stale chunks left on remote", "path", relPath, "key", key, "indices", tail)
		}
	}
	d.status.Set(relPath, StateDiffed)

	if d.opts.DryRun {
		state := &reconcile.RemoteState{Path: key}
		if total > 0 {
			if state, err = reconcile.Fetch(ctx, d.chunks, key, len(local)); err != nil {
				return "", false, err
			}
		}
		plan := reconcile.Plan(local, state)
		result.plan(relPath, plan)
		return "", plan.IsNoOp() && !tailLeft, nil
	}

	var receipt string
	plan, err := reconcile.Walk(ctx, d.chunks, key, total, local, func(ctx context.Context, step reconcile.Step, c chunker.Chunk) error {
		id, err := d.write(ctx, key, step, c, redirectCode)
		if err != nil {
			return err
		}
		receipt = id
		result.addWrites(1)
		d.record(ctx, result.RunID, id, relPath, step)
		return nil
	})
	result.plan(relPath, plan)
	if err != nil {
		return "", false, err
	}

	switch {
	case plan.IsNoOp() && tailLeft:
		slog.Debug("prefix unchanged, stale tail left", "path", relPath, "chunks", len(local))
	case plan.IsNoOp():
		d.status.Set(relPath, StateUnchanged)
		slog.Debug("unchanged", "path", relPath, "chunks", len(local))
	default:
		d.status.Set(relPath, StateWritten)
		slog.Info("written", "path", relPath, "key", key,
			"created", plan.Count(reconcile.Create), "overwritten", plan.Count(reconcile.Overwrite), "chunks", len(local))
	}
	return receipt, plan.IsNoOp() && !tailLeft, nil
}

// write issues one confirmed chunk write. Creates target their index too, so
// a retry after a lost confirmation rewrites the same slot instead of
// appending a second copy.
func (d *Driver) write(ctx context.Context, key string, step reconcile.Step, c chunker.Chunk, redirectCode int) (string, error) {
	return d.chunks.SetChunk(ctx, key, step.Index, c.Bytes, c.ContentType, redirectCode)
}

func (d *Driver) record(ctx context.Context, runID, receipt, relPath string, step reconcile.Step) {
	if d.journal == nil {
		return
	}
	err := d.journal.Record(ctx, &journal.Entry{
		RunID:      runID,
		ReceiptID:  receipt,
		Path:       relPath,
		ChunkIndex: step.Index,
		Action:     string(step.Action),
	})
	if err != nil {
		slog.Warn("journal write", "path", relPath, "receipt", receipt, "error", err)
	}
}

func (d *Driver) logSummary(result *Result) {
	failed := result.FailedList()
	slog.Info("sync pass finished",
		"run", result.RunID,
		"succeeded", len(result.SucceededPaths),
		"unchanged", len(result.Unchanged),
		"skipped", len(result.Skipped),
		"failed", len(failed),
		"writes", result.Writes,
		"uploads", result.Uploads,
		"took", result.Duration,
	)
	for _, path := range failed {
		f := result.FailedPaths[path]
		slog.Error("failed", "path", path, "kind", f.Kind, "error", f.Err)
	}
}
