package reliable

import (
	"sync"

	"github.com/classboard/classboard/pkg/models/wire"
	"github.com/classboard/classboard/pkg/observability"
)

// SequenceStore persists the last-applied sequence number per session
// code, outside the volatile session itself, so a client restart resumes
// instead of replaying already-applied control events.
type SequenceStore interface {
	LastApplied(sessionCode string) int64
	SetLastApplied(sessionCode string, seq int64)
}

// MemorySequenceStore is the in-process store. It survives reconnects
// within one process, which is the lifetime that matters for a client.
type MemorySequenceStore struct {
	mu   sync.Mutex
	last map[string]int64
}

// NewMemorySequenceStore creates an empty store.
func NewMemorySequenceStore() *MemorySequenceStore {
	return &MemorySequenceStore{last: make(map[string]int64)}
}

func (s *MemorySequenceStore) LastApplied(sessionCode string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[sessionCode]
}

func (s *MemorySequenceStore) SetLastApplied(sessionCode string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.last[sessionCode] {
		s.last[sessionCode] = seq
	}
}

// ReceiveGuard de-duplicates sequence-guarded control events on the
// receiving side. Stale and duplicate deliveries are expected under
// at-least-once transport and are dropped silently.
type ReceiveGuard struct {
	store       SequenceStore
	sessionCode string
	logger      observability.Logger
}

// NewReceiveGuard creates a guard for one session.
func NewReceiveGuard(store SequenceStore, sessionCode string, logger observability.Logger) *ReceiveGuard {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &ReceiveGuard{store: store, sessionCode: sessionCode, logger: logger}
}

// Admit reports whether a message should be applied. Unguarded messages
// and unstamped guarded messages (sequence 0) always pass; a stamped
// sequence passes only if it exceeds the last applied one, and admitting
// it advances the watermark. Applying the same stamped payload twice is
// therefore a no-op the second time.
func (g *ReceiveGuard) Admit(msg wire.Message) bool {
	stamped, guarded := msg.(wire.Sequenced)
	if !guarded || stamped.Sequence() <= 0 {
		return true
	}
	seq := stamped.Sequence()
	last := g.store.LastApplied(g.sessionCode)
	if seq <= last {
		g.logger.Debug("Dropping stale control event", map[string]interface{}{
			"event":        msg.Event(),
			"sequence":     seq,
			"last_applied": last,
		})
		return false
	}
	g.store.SetLastApplied(g.sessionCode, seq)
	return true
}

// LastApplied returns the current watermark, used when requesting
// catch-up (session_state_request.lastSequence).
func (g *ReceiveGuard) LastApplied() int64 {
	return g.store.LastApplied(g.sessionCode)
}

// Advance raises the watermark to at least seq. Used after applying a
// snapshot, whose baseline covers every event at or below its sequence.
func (g *ReceiveGuard) Advance(seq int64) {
	g.store.SetLastApplied(g.sessionCode, seq)
}
