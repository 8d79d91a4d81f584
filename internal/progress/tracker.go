// Package progress aggregates per-chunk results for a single download
// job: bytes received, terminal chunk counts, and the first fatal error.
package progress

import (
	"sync"
	"sync/atomic"
)

// Tracker is the single reader of per-chunk progress. Fetchers report
// byte deltas and terminal outcomes; the coordinator polls Done and Err.
type Tracker struct {
	total       int64
	totalChunks int

	received atomic.Int64
	complete atomic.Int32
	failed   atomic.Int32

	mu       sync.Mutex
	firstErr error
}

func NewTracker(totalSize int64, totalChunks int) *Tracker {
	return &Tracker{
		total:       totalSize,
		totalChunks: totalChunks,
	}
}

// Add records newly received bytes. Negative deltas roll back progress
// when a chunk restarts from its start offset.
func (t *Tracker) Add(n int64) {
	t.received.Add(n)
}

// ChunkComplete marks one chunk as having reached its terminal complete
// state.
func (t *Tracker) ChunkComplete() {
	t.complete.Add(1)
}

// ChunkFailed records a terminal chunk failure. The first error wins;
// later failures (typically cancellation fallout from the first) are
// suppressed. Returns true if this was the first failure.
func (t *Tracker) ChunkFailed(err error) bool {
	t.failed.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstErr == nil {
		t.firstErr = err
		return true
	}
	return false
}

// Received returns bytes received so far.
func (t *Tracker) Received() int64 {
	return t.received.Load()
}

// Total returns the expected total size.
func (t *Tracker) Total() int64 {
	return t.total
}

// Progress returns completion as a fraction in [0, 1].
func (t *Tracker) Progress() float64 {
	if t.total <= 0 {
		return 0
	}
	return float64(t.received.Load()) / float64(t.total)
}

// Done reports whether every chunk has reached a terminal state.
func (t *Tracker) Done() bool {
	return int(t.complete.Load()+t.failed.Load()) >= t.totalChunks
}

// Succeeded reports whether all chunks completed.
func (t *Tracker) Succeeded() bool {
	return int(t.complete.Load()) == t.totalChunks
}

// Err returns the first fatal chunk error, or nil.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstErr
}
