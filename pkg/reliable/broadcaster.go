package reliable

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/classboard/classboard/pkg/models/wire"
	"github.com/classboard/classboard/pkg/observability"
	"github.com/classboard/classboard/pkg/transport"
)

// DefaultQueueCapacity bounds the offline send queue.
const DefaultQueueCapacity = 128

type queuedSend struct {
	event   string
	payload []byte
}

// Broadcaster owns the session's sequence counter and the replay log.
// There is exactly one Broadcaster per session, on the teacher side; the
// single writer is what keeps sequence ids strictly increasing without
// coordination.
//
// Sends while detached are queued (bounded, drop oldest) and flushed
// strictly in order on reattach. Send failures are logged and not retried
// per message; snapshot catch-up is the recovery path.
type Broadcaster struct {
	mu      sync.Mutex
	seq     int64
	channel transport.Channel
	ready   bool

	queue    []queuedSend
	queueCap int

	log     *ReplayLog
	logger  observability.Logger
	metrics observability.MetricsClient
	now     func() time.Time
}

// NewBroadcaster creates a detached broadcaster; Attach connects it to a
// live channel.
func NewBroadcaster(logCapacity, queueCapacity int, logger observability.Logger, metrics observability.MetricsClient) *Broadcaster {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Broadcaster{
		queueCap: queueCapacity,
		log:      NewReplayLog(logCapacity),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Broadcast stamps sequence-guarded messages, records them in the replay
// log, and sends. The returned sequence is 0 for unguarded events. ok is
// false when the channel was not ready and the send was queued instead;
// the caller must not assume delivery either way.
func (b *Broadcaster) Broadcast(ctx context.Context, msg wire.Message) (seq int64, ok bool) {
	b.mu.Lock()
	if stamper, guarded := msg.(wire.Sequenced); guarded {
		b.seq++
		seq = b.seq
		stamper.SetSequence(seq)
	}

	event, payload, err := wire.Encode(msg)
	if err != nil {
		b.mu.Unlock()
		b.logger.Error("Broadcast encode failed", map[string]interface{}{
			"event": msg.Event(),
			"error": err.Error(),
		})
		return 0, false
	}

	if seq > 0 {
		b.log.Append(seq, event, json.RawMessage(payload), b.now().UnixMilli())
	}

	if !b.ready || b.channel == nil {
		b.enqueueLocked(queuedSend{event: event, payload: payload})
		b.mu.Unlock()
		return seq, false
	}
	ch := b.channel
	b.mu.Unlock()

	if err := ch.Broadcast(ctx, event, payload); err != nil {
		b.logger.Warn("Broadcast send failed", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		b.metrics.IncrementCounter("broadcast.send_failed", 1)
		return seq, false
	}
	b.metrics.IncrementCounter("broadcast.sent", 1)
	return seq, true
}

// BroadcastRaw sends a pre-encoded payload under an explicit event name,
// with the same queue-while-detached behavior as Broadcast. Canvas pushes
// travel under their alias names (clear/erase/undo/redo) this way.
func (b *Broadcaster) BroadcastRaw(ctx context.Context, event string, payload []byte) bool {
	b.mu.Lock()
	if !b.ready || b.channel == nil {
		b.enqueueLocked(queuedSend{event: event, payload: payload})
		b.mu.Unlock()
		return false
	}
	ch := b.channel
	b.mu.Unlock()

	if err := ch.Broadcast(ctx, event, payload); err != nil {
		b.logger.Warn("Broadcast send failed", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		b.metrics.IncrementCounter("broadcast.send_failed", 1)
		return false
	}
	b.metrics.IncrementCounter("broadcast.sent", 1)
	return true
}

// enqueueLocked appends to the offline queue, dropping the oldest entry
// on overflow.
func (b *Broadcaster) enqueueLocked(s queuedSend) {
	if len(b.queue) >= b.queueCap {
		dropped := b.queue[0]
		b.queue = b.queue[1:]
		b.logger.Warn("Send queue overflow, dropping oldest", map[string]interface{}{
			"event": dropped.event,
		})
		b.metrics.IncrementCounter("broadcast.queue_dropped", 1)
	}
	b.queue = append(b.queue, s)
	b.metrics.RecordGauge("broadcast.queue_depth", float64(len(b.queue)), nil)
}

// Attach connects the broadcaster to a subscribed channel and flushes the
// offline queue in FIFO order. Entries are never reordered; a flush
// failure drops the entry (catch-up recovers it) rather than retrying.
func (b *Broadcaster) Attach(ctx context.Context, ch transport.Channel) {
	b.mu.Lock()
	b.channel = ch
	b.ready = true
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	for _, s := range pending {
		if err := ch.Broadcast(ctx, s.event, s.payload); err != nil {
			b.logger.Warn("Queued send failed after reconnect", map[string]interface{}{
				"event": s.event,
				"error": err.Error(),
			})
		}
	}
	if len(pending) > 0 {
		b.logger.Info("Flushed offline send queue", map[string]interface{}{
			"count": len(pending),
		})
	}
}

// Detach marks the channel unusable; subsequent sends queue until the
// next Attach.
func (b *Broadcaster) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = false
	b.channel = nil
}

// Ready reports whether a live channel is attached.
func (b *Broadcaster) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// LastSequence returns the most recently assigned sequence id.
func (b *Broadcaster) LastSequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// EventsSince exposes the replay log for snapshot catch-up responses.
func (b *Broadcaster) EventsSince(after int64) []wire.LoggedEvent {
	return b.log.EventsSince(after)
}

// QueueDepth returns the number of sends waiting for reattach.
func (b *Broadcaster) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
