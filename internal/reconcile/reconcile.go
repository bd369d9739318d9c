// Package reconcile compares local chunks with what the chunk store holds
// and works out the smallest set of writes that makes them equal.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/remote"
)

type Action string

const (
	NoOp      Action = "noop"
	Create    Action = "create"
	Overwrite Action = "overwrite"
)

func (a Action) IsWrite() bool {
	return a == Create || a == Overwrite
}

type Step struct {
	Index  int
	Action Action
}

// WritePlan lists one step per local chunk, in index order. StaleTail holds
// the remote indices past the last local chunk; nothing in the plan touches
// them.
type WritePlan struct {
	Path      string
	Steps     []Step
	StaleTail []int
}

// Writes counts the steps that issue a remote write.
func (p *WritePlan) Writes() int {
	n := 0
	for _, s := range p.Steps {
		if s.Action.IsWrite() {
			n++
		}
	}
	return n
}

func (p *WritePlan) Count(action Action) int {
	n := 0
	for _, s := range p.Steps {
		if s.Action == action {
			n++
		}
	}
	return n
}

// IsNoOp reports whether applying the plan writes nothing.
func (p *WritePlan) IsNoOp() bool {
	return p.Writes() == 0
}

// RemoteState is a snapshot of a resource. Chunks[i] is nil when slot i could
// not be read; Chunks may be shorter than TotalChunks when only a prefix was
// fetched.
type RemoteState struct {
	Path        string
	TotalChunks int
	Chunks      []*remote.Chunk
}

func (s *RemoteState) chunk(i int) *remote.Chunk {
	if s == nil || i < 0 || i >= len(s.Chunks) {
		return nil
	}
	return s.Chunks[i]
}

func (s *RemoteState) total() int {
	if s == nil {
		return 0
	}
	return s.TotalChunks
}

// Source is the read side of a chunk store.
type Source interface {
	ResourceInfo(ctx context.Context, path string) (*remote.ResourceInfo, error)
	GetChunk(ctx context.Context, path string, index int) (*remote.Chunk, error)
}

// decide is the single equality rule: a slot is left alone only when bytes
// and content type both match.
func decide(index int, local chunker.Chunk, total int, existing *remote.Chunk) Action {
	if index >= total {
		return Create
	}
	if existing != nil &&
		existing.ContentType == local.ContentType &&
		bytes.Equal(existing.Bytes, local.Bytes) {
		return NoOp
	}
	return Overwrite
}

// StaleTail lists the remote indices in [localCount, remoteTotal).
func StaleTail(localCount, remoteTotal int) []int {
	if remoteTotal <= localCount {
		return nil
	}
	tail := make([]int, 0, remoteTotal-localCount)
	for i := localCount; i < remoteTotal; i++ {
		tail = append(tail, i)
	}
	return tail
}

// Plan computes the write plan for local against a fetched state. It does no
// I/O.
func Plan(local []chunker.Chunk, state *RemoteState) *WritePlan {
	total := state.total()
	plan := &WritePlan{
		Steps:     make([]Step, len(local)),
		StaleTail: StaleTail(len(local), total),
	}
	if state != nil {
		plan.Path = state.Path
	}
	for i, c := range local {
		plan.Steps[i] = Step{Index: i, Action: decide(i, c, total, state.chunk(i))}
	}
	return plan
}

// Probe returns the live chunk count of path. A missing resource counts as
// zero chunks.
func Probe(ctx context.Context, src Source, path string) (int, error) {
	info, err := src.ResourceInfo(ctx, path)
	if errors.Is(err, errs.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resource info %q: %w", path, err)
	}
	return info.TotalChunks, nil
}

// Fetch snapshots path, reading at most n chunks. Slots the store refuses to
// return are recorded as unreadable rather than failing the fetch.
func Fetch(ctx context.Context, src Source, path string, n int) (*RemoteState, error) {
	total, err := Probe(ctx, src, path)
	if err != nil {
		return nil, err
	}

	state := &RemoteState{Path: path, TotalChunks: total}
	limit := min(n, total)
	state.Chunks = make([]*remote.Chunk, limit)
	for i := range limit {
		c, err := readChunk(ctx, src, path, i)
		if err != nil {
			return nil, err
		}
		state.Chunks[i] = c
	}
	return state, nil
}

// StepFunc applies one write step. It must return only once the write is
// confirmed.
type StepFunc func(ctx context.Context, step Step, chunk chunker.Chunk) error

// Walk is the streaming form of Plan. For each local chunk it reads the
// remote slot, decides, and hands write steps to apply before moving on, so
// chunk i+1 is never considered before chunk i is confirmed. total is the
// remote chunk count observed by Probe. On error the returned plan holds the
// steps decided so far.
func Walk(ctx context.Context, src Source, path string, total int, local []chunker.Chunk, apply StepFunc) (*WritePlan, error) {
	plan := &WritePlan{
		Path:      path,
		Steps:     make([]Step, 0, len(local)),
		StaleTail: StaleTail(len(local), total),
	}

	for i, c := range local {
		var existing *remote.Chunk
		if i < total {
			var err error
			if existing, err = readChunk(ctx, src, path, i); err != nil {
				return plan, err
			}
		}

		step := Step{Index: i, Action: decide(i, c, total, existing)}
		plan.Steps = append(plan.Steps, step)
		if !step.Action.IsWrite() {
			continue
		}
		if err := apply(ctx, step, c); err != nil {
			return plan, fmt.Errorf("%s chunk %d of %q: %w", step.Action, i, path, err)
		}
	}
	return plan, nil
}

// readChunk treats a slot the store will not return as absent. A rejected
// read below total is then planned as Overwrite, not Create, since the write
// targets an index that already exists.
func readChunk(ctx context.Context, src Source, path string, index int) (*remote.Chunk, error) {
	c, err := src.GetChunk(ctx, path, index)
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrRejected) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %d of %q: %w", index, path, err)
	}
	return c, nil
}
