package syncer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const statusEventBufferSize = 64

// FileState is a step of the per-file state machine:
//
//	Discovered -> Skipped
//	Discovered -> Routed -> Uploaded -> ManifestUpdated            (external)
//	Discovered -> Routed -> Chunked -> Diffed -> Written|Unchanged
//	           -> ManifestUpdated                                  (inline)
//
// Any state may move to Failed.
type FileState string

const (
	StateDiscovered      FileState = "discovered"
	StateSkipped         FileState = "skipped"
	StateRouted          FileState = "routed"
	StateUploaded        FileState = "uploaded"
	StateChunked         FileState = "chunked"
	StateDiffed          FileState = "diffed"
	StateWritten         FileState = "written"
	StateUnchanged       FileState = "unchanged"
	StateManifestUpdated FileState = "manifest_updated"
	StateFailed          FileState = "failed"
)

// Terminal reports whether no further transition follows s in a pass.
func (s FileState) Terminal() bool {
	switch s {
	case StateSkipped, StateUnchanged, StateManifestUpdated, StateFailed:
		return true
	}
	return false
}

type FileStatus struct {
	State       FileState
	Error       error
	LastUpdated time.Time
}

func (s *FileStatus) String() string {
	return fmt.Sprintf("State: %s, Error: %v", s.State, s.Error)
}

type StatusEvent struct {
	Path   string
	Status FileStatus
}

// StatusTracker records the latest state of every file in a pass and fans
// transitions out to subscribers.
type StatusTracker struct {
	files map[string]*FileStatus
	mu    sync.RWMutex
	clock clockwork.Clock

	subs  []chan *StatusEvent
	subMu sync.RWMutex
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		files: make(map[string]*FileStatus),
		clock: clockwork.NewRealClock(),
	}
}

// Subscribe returns a channel of transitions. Slow subscribers miss events
// rather than block the pass.
func (s *StatusTracker) Subscribe() <-chan *StatusEvent {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan *StatusEvent, statusEventBufferSize)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *StatusTracker) Unsubscribe(ch <-chan *StatusEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subs {
		if sub == ch {
			close(sub)
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
}

func (s *StatusTracker) Set(path string, state FileState) {
	s.set(path, state, nil)
}

func (s *StatusTracker) SetFailed(path string, err error) {
	s.set(path, StateFailed, err)
}

func (s *StatusTracker) set(path string, state FileState, err error) {
	s.mu.Lock()
	status, ok := s.files[path]
	if !ok {
		status = &FileStatus{}
		s.files[path] = status
	}
	status.State = state
	status.Error = err
	status.LastUpdated = s.clock.Now()
	snapshot := *status
	s.mu.Unlock()

	s.broadcast(&StatusEvent{Path: path, Status: snapshot})
}

func (s *StatusTracker) broadcast(event *StatusEvent) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, sub := range s.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

func (s *StatusTracker) Get(path string) (FileStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.files[path]
	if !ok {
		return FileStatus{}, false
	}
	return *status, true
}

// Counts tallies files by state.
func (s *StatusTracker) Counts() map[FileState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[FileState]int)
	for _, st := range s.files {
		counts[st.State]++
	}
	return counts
}

// Reset forgets every file, keeping subscribers.
func (s *StatusTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]*FileStatus)
}
