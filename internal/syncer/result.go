package syncer

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/reconcile"
)

// FileFailure is why one path did not complete.
type FileFailure struct {
	Kind errs.Kind
	Err  error
}

func (f *FileFailure) Error() string {
	return string(f.Kind) + ": " + f.Err.Error()
}

func (f *FileFailure) Unwrap() error {
	return f.Err
}

// Result accounts for one pass. Unchanged paths are also listed in
// SucceededPaths.
type Result struct {
	RunID          string
	SucceededPaths []string
	FailedPaths    map[string]*FileFailure
	StaleTails     map[string][]int
	Skipped        []string
	Unchanged      []string
	// Plans holds the write plan of each inline path.
	Plans    map[string]*reconcile.WritePlan
	Writes   int
	Uploads  int
	Duration time.Duration

	mu sync.Mutex
}

func newResult(runID string) *Result {
	return &Result{
		RunID:       runID,
		FailedPaths: make(map[string]*FileFailure),
		StaleTails:  make(map[string][]int),
		Plans:       make(map[string]*reconcile.WritePlan),
	}
}

// OK is true only when no path failed.
func (r *Result) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.FailedPaths) == 0
}

// FailedList returns the failed paths sorted.
func (r *Result) FailedList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.FailedPaths))
}

func (r *Result) succeed(path string, unchanged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SucceededPaths = append(r.SucceededPaths, path)
	if unchanged {
		r.Unchanged = append(r.Unchanged, path)
	}
}

func (r *Result) fail(path string, err error) *FileFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &FileFailure{Kind: errs.Classify(err), Err: err}
	r.FailedPaths[path] = f
	return f
}

func (r *Result) skip(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, path)
}

func (r *Result) staleTail(path string, indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StaleTails[path] = indices
}

func (r *Result) plan(path string, plan *reconcile.WritePlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Plans[path] = plan
}

func (r *Result) addWrites(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes += n
}

func (r *Result) addUpload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Uploads++
}

// sort orders the path lists; workers finish in any order.
func (r *Result) sort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	slices.Sort(r.SucceededPaths)
	slices.Sort(r.Skipped)
	slices.Sort(r.Unchanged)
}
