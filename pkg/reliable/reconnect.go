package reliable

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/classboard/classboard/pkg/observability"
	"github.com/classboard/classboard/pkg/transport"
)

// DefaultReconnectDelay is the fixed retry interval. Reconnects use a
// constant delay rather than exponential backoff: a classroom session is
// short-lived and a teacher waiting 30 seconds for the next attempt is
// worse than a little retry traffic.
const DefaultReconnectDelay = 2 * time.Second

// Dialer creates and subscribes a fresh channel. It is called once per
// attempt; a returned error schedules the next attempt.
type Dialer func(ctx context.Context) (transport.Channel, error)

// Reconnector drives the reconnect loop. A boolean guard keeps at most
// one attempt loop in flight no matter how many status callbacks fire
// while the transport is down.
type Reconnector struct {
	dial      Dialer
	onChannel func(transport.Channel)
	delay     time.Duration
	logger    observability.Logger

	mu       sync.Mutex
	inFlight bool
	closed   bool
	cancel   context.CancelFunc
}

// NewReconnector wires a dialer to a callback invoked with each freshly
// subscribed channel.
func NewReconnector(dial Dialer, onChannel func(transport.Channel), delay time.Duration, logger observability.Logger) *Reconnector {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Reconnector{dial: dial, onChannel: onChannel, delay: delay, logger: logger}
}

// Trigger starts the reconnect loop unless one is already running. Safe
// to call from any status callback.
func (r *Reconnector) Trigger(ctx context.Context) {
	r.mu.Lock()
	if r.inFlight || r.closed {
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(loopCtx)
}

func (r *Reconnector) loop(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.cancel = nil
		r.mu.Unlock()
	}()

	var ch transport.Channel
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		ch, err = r.dial(ctx)
		if err != nil {
			r.logger.Warn("Reconnect attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
		}
		return err
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(r.delay), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		// only reachable when the context was cancelled
		return
	}

	r.logger.Info("Reconnected", map[string]interface{}{"attempts": attempt})
	r.onChannel(ch)
}

// Close stops any in-flight loop and prevents future triggers.
func (r *Reconnector) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
}
