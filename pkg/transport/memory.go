package transport

import (
	"context"
	"sync"

	"github.com/classboard/classboard/pkg/observability"
)

// MemoryTransport is an in-process hub. It backs the test suites and lets
// teacher and student clients run inside one process (demos, simulations)
// with the exact semantics of the remote transports: fan-out to every
// other subscriber, presence sync on membership change, no self-delivery.
type MemoryTransport struct {
	mu     sync.Mutex
	rooms  map[string]*memoryRoom
	logger observability.Logger
}

// NewMemoryTransport creates an empty hub.
func NewMemoryTransport(logger observability.Logger) *MemoryTransport {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &MemoryTransport{
		rooms:  make(map[string]*memoryRoom),
		logger: logger,
	}
}

// Channel returns a fresh participant handle for the named room.
func (t *MemoryTransport) Channel(name string) Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rooms[name]
	if !ok {
		r = &memoryRoom{
			name:     name,
			members:  make(map[*memoryChannel]struct{}),
			presence: make(map[*memoryChannel]PresenceMeta),
		}
		t.rooms[name] = r
	}
	return &memoryChannel{room: r, logger: t.logger, handlers: make(map[string]BroadcastHandler)}
}

type memoryRoom struct {
	mu       sync.Mutex
	name     string
	members  map[*memoryChannel]struct{}
	presence map[*memoryChannel]PresenceMeta
}

func (r *memoryRoom) join(c *memoryChannel) {
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
}

func (r *memoryRoom) leave(c *memoryChannel) {
	r.mu.Lock()
	delete(r.members, c)
	_, tracked := r.presence[c]
	delete(r.presence, c)
	r.mu.Unlock()
	if tracked {
		r.syncPresence()
	}
}

func (r *memoryRoom) track(c *memoryChannel, meta PresenceMeta) {
	r.mu.Lock()
	r.presence[c] = meta
	r.mu.Unlock()
	r.syncPresence()
}

// broadcast fans out to every member except the sender, on the sender's
// goroutine. Handlers are required not to block.
func (r *memoryRoom) broadcast(from *memoryChannel, event string, payload []byte) {
	for _, m := range r.snapshot() {
		if m == from {
			continue
		}
		m.deliver(event, payload)
	}
}

func (r *memoryRoom) syncPresence() {
	r.mu.Lock()
	roster := make([]PresenceMeta, 0, len(r.presence))
	for _, meta := range r.presence {
		roster = append(roster, meta)
	}
	r.mu.Unlock()
	for _, m := range r.snapshot() {
		m.deliverPresence(roster)
	}
}

func (r *memoryRoom) snapshot() []*memoryChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*memoryChannel, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	return out
}

type memoryChannel struct {
	room   *memoryRoom
	logger observability.Logger

	mu         sync.Mutex
	subscribed bool
	closed     bool
	handlers   map[string]BroadcastHandler
	onPresence PresenceHandler
	onStatus   StatusHandler
}

func (c *memoryChannel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.subscribed = true
	status := c.onStatus
	c.mu.Unlock()

	c.room.join(c)
	if status != nil {
		status(StatusSubscribed, nil)
	}
	return nil
}

func (c *memoryChannel) Broadcast(ctx context.Context, event string, payload []byte) error {
	c.mu.Lock()
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	c.room.broadcast(c, event, payload)
	return nil
}

func (c *memoryChannel) Track(ctx context.Context, meta PresenceMeta) error {
	c.mu.Lock()
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	c.room.track(c, meta)
	return nil
}

func (c *memoryChannel) OnBroadcast(event string, h BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

func (c *memoryChannel) OnPresenceSync(h PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = h
}

func (c *memoryChannel) OnStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = h
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subscribed = false
	status := c.onStatus
	c.mu.Unlock()

	c.room.leave(c)
	if status != nil {
		status(StatusClosed, nil)
	}
	return nil
}

func (c *memoryChannel) deliver(event string, payload []byte) {
	c.mu.Lock()
	h, ok := c.handlers[event]
	if !ok {
		h = c.handlers[""]
	}
	subscribed := c.subscribed
	c.mu.Unlock()
	if !subscribed || h == nil {
		return
	}
	h(event, payload)
}

func (c *memoryChannel) deliverPresence(roster []PresenceMeta) {
	c.mu.Lock()
	h := c.onPresence
	subscribed := c.subscribed
	c.mu.Unlock()
	if !subscribed || h == nil {
		return
	}
	h(roster)
}
