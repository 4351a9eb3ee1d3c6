// Package reliable layers a total order over the best-effort transport:
// a single-writer sequence counter, a bounded replay log, a receive-side
// de-duplication guard, an offline send queue, and a fixed-delay reconnect
// loop. Together they make control events idempotent and recoverable.
package reliable

import (
	"encoding/json"
	"sync"

	"github.com/classboard/classboard/pkg/models/wire"
)

// DefaultLogCapacity bounds the replay log. Anything older must be
// recovered via snapshot, not replay.
const DefaultLogCapacity = 64

// ReplayLog is a bounded ring of sequence-stamped control events.
type ReplayLog struct {
	mu       sync.Mutex
	capacity int
	entries  []wire.LoggedEvent
}

// NewReplayLog creates a log holding at most capacity entries.
func NewReplayLog(capacity int) *ReplayLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ReplayLog{capacity: capacity}
}

// Append records one entry, evicting the oldest beyond capacity.
func (l *ReplayLog) Append(id int64, event string, payload json.RawMessage, timestamp int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, wire.LoggedEvent{
		ID:        id,
		Event:     event,
		Payload:   payload,
		Timestamp: timestamp,
	})
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// EventsSince returns every logged entry with ID > after, oldest first.
func (l *ReplayLog) EventsSince(after int64) []wire.LoggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []wire.LoggedEvent
	for _, e := range l.entries {
		if e.ID > after {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (l *ReplayLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
