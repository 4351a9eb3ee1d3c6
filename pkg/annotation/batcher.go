package annotation

import (
	"sync"
	"time"
)

// DefaultFlushInterval is the coalescing window for continuous point
// deltas. Discrete actions (stroke end, erase, clear, undo, redo) bypass
// it and flush immediately.
const DefaultFlushInterval = 80 * time.Millisecond

// Batcher coalesces high-frequency delta triggers into at most one flush
// per interval. The flush callback runs on the timer goroutine for
// coalesced flushes and on the caller's goroutine for immediate ones; it
// is never invoked concurrently with itself.
type Batcher struct {
	interval time.Duration
	flush    func()

	mu      sync.Mutex
	flushMu sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// NewBatcher creates a batcher invoking flush at most once per interval.
func NewBatcher(interval time.Duration, flush func()) *Batcher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Batcher{interval: interval, flush: flush}
}

// Coalesce schedules a flush if none is pending. Called on every point
// appended to an in-progress stroke.
func (b *Batcher) Coalesce() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending || b.stopped {
		return
	}
	b.pending = true
	b.timer = time.AfterFunc(b.interval, b.fire)
}

// FlushNow cancels any pending timer and flushes immediately. Called on
// stroke end, erase, clear, undo, and redo.
func (b *Batcher) FlushNow() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = false
	b.mu.Unlock()

	b.runFlush()
}

// Stop cancels any pending flush and rejects further triggers. A pending
// delta is flushed first so a detach never silently drops markup.
func (b *Batcher) Stop() {
	b.mu.Lock()
	hadPending := b.pending
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = false
	b.stopped = true
	b.mu.Unlock()

	if hadPending {
		b.runFlush()
	}
}

func (b *Batcher) fire() {
	b.mu.Lock()
	if b.stopped || !b.pending {
		b.mu.Unlock()
		return
	}
	b.pending = false
	b.timer = nil
	b.mu.Unlock()

	b.runFlush()
}

func (b *Batcher) runFlush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.flush()
}
