// Package transport defines the pub/sub contract the synchronization core
// consumes, plus three implementations: an in-process hub for tests and
// embedding, a redis-backed hub, and a websocket relay.
//
// The contract is deliberately weak: best-effort, unordered, at-least-once
// broadcast plus a presence registry. Everything stronger (sequencing,
// replay, catch-up) is layered on top by pkg/reliable.
package transport

import (
	"context"
	"errors"
)

// Status is a channel lifecycle notification.
type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed_out"
	StatusClosed     Status = "closed"
)

var (
	// ErrNotSubscribed is returned by Broadcast before Subscribe succeeds
	// or after Close.
	ErrNotSubscribed = errors.New("transport: channel not subscribed")
	// ErrChannelClosed is returned once a channel is closed for good.
	ErrChannelClosed = errors.New("transport: channel closed")
)

// PresenceMeta is the small record each participant tracks into the
// presence registry.
type PresenceMeta struct {
	Key      string `json:"key"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

// Handler signatures. Handlers run on the transport's delivery goroutine
// and must not block.
type (
	BroadcastHandler func(event string, payload []byte)
	PresenceHandler  func(members []PresenceMeta)
	StatusHandler    func(status Status, err error)
)

// Channel is one named broadcast room with a presence registry.
//
// Delivery semantics: Broadcast reaches every other subscriber of the same
// channel name, best effort. A sender never receives its own broadcasts.
// Handlers must be registered before Subscribe.
type Channel interface {
	// Subscribe joins the channel and starts delivery. It is not
	// idempotent; a closed channel cannot be resubscribed and callers
	// reconnect by obtaining a fresh Channel.
	Subscribe(ctx context.Context) error

	// Broadcast publishes an event to every other subscriber.
	Broadcast(ctx context.Context, event string, payload []byte) error

	// Track registers this participant in the presence registry and
	// triggers a presence sync for every subscriber.
	Track(ctx context.Context, meta PresenceMeta) error

	// OnBroadcast registers a handler for one event name. The empty
	// string registers a catch-all invoked for events with no dedicated
	// handler.
	OnBroadcast(event string, h BroadcastHandler)

	// OnPresenceSync registers the presence callback. It fires with the
	// full member list on every join, leave, and initial subscribe.
	OnPresenceSync(h PresenceHandler)

	// OnStatus registers the lifecycle callback.
	OnStatus(h StatusHandler)

	// Close leaves the channel, removing this participant from presence.
	Close() error
}

// Transport hands out channels by name. Two Channel values obtained for
// the same name join the same room.
type Transport interface {
	Channel(name string) Channel
}
