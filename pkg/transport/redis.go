package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/classboard/classboard/pkg/observability"
)

const (
	redisChannelPrefix  = "classboard:chan:"
	redisPresencePrefix = "classboard:presence:"

	// presenceEvent is the internal ping that makes every subscriber
	// re-read the roster.
	presenceEvent = "__presence_sync"
)

// redisEnvelope wraps a broadcast on the redis wire. Sender lets each
// subscriber drop its own messages, since redis pub/sub echoes to every
// subscriber including the publisher.
type redisEnvelope struct {
	Sender  string          `json:"sender"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RedisTransport implements the transport contract over redis pub/sub,
// with the presence registry in a hash per channel. Publishes go through
// a circuit breaker so a struggling redis degrades to dropped best-effort
// sends instead of piling up timeouts.
type RedisTransport struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewRedisTransport wraps an existing redis client.
func NewRedisTransport(client *redis.Client, logger observability.Logger, metrics observability.MetricsClient) *RedisTransport {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-publish",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Publish breaker state change", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return &RedisTransport{client: client, breaker: breaker, logger: logger, metrics: metrics}
}

// Channel returns a fresh participant handle for the named room.
func (t *RedisTransport) Channel(name string) Channel {
	return &redisChannel{
		transport: t,
		name:      name,
		sender:    uuid.NewString(),
		handlers:  make(map[string]BroadcastHandler),
	}
}

type redisChannel struct {
	transport *RedisTransport
	name      string
	sender    string

	mu         sync.Mutex
	subscribed bool
	closed     bool
	tracked    bool
	trackField string
	pubsub     *redis.PubSub
	cancel     context.CancelFunc
	handlers   map[string]BroadcastHandler
	onPresence PresenceHandler
	onStatus   StatusHandler
}

func (c *redisChannel) key() string         { return redisChannelPrefix + c.name }
func (c *redisChannel) presenceKey() string { return redisPresencePrefix + c.name }

func (c *redisChannel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	pubsub := c.transport.client.Subscribe(ctx, c.key())
	// Receive forces the SUBSCRIBE round trip so failures surface here
	// rather than on the first missed message.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.subscribed = true
	c.pubsub = pubsub
	c.cancel = cancel
	status := c.onStatus
	c.mu.Unlock()

	go c.receiveLoop(loopCtx, pubsub)
	if status != nil {
		status(StatusSubscribed, nil)
	}
	return nil
}

func (c *redisChannel) receiveLoop(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				c.mu.Lock()
				wasClosed := c.closed
				status := c.onStatus
				c.mu.Unlock()
				if !wasClosed && status != nil {
					status(StatusError, ErrChannelClosed)
				}
				return
			}
			c.handleMessage(ctx, []byte(msg.Payload))
		}
	}
}

func (c *redisChannel) handleMessage(ctx context.Context, raw []byte) {
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.transport.logger.Warn("Dropping undecodable envelope", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if env.Sender == c.sender {
		return
	}
	if env.Event == presenceEvent {
		c.firePresence(ctx)
		return
	}

	c.mu.Lock()
	h, ok := c.handlers[env.Event]
	if !ok {
		h = c.handlers[""]
	}
	c.mu.Unlock()
	if h != nil {
		h(env.Event, env.Payload)
	}
}

func (c *redisChannel) firePresence(ctx context.Context) {
	c.mu.Lock()
	h := c.onPresence
	c.mu.Unlock()
	if h == nil {
		return
	}
	roster, err := c.roster(ctx)
	if err != nil {
		c.transport.logger.Warn("Presence read failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	h(roster)
}

func (c *redisChannel) roster(ctx context.Context) ([]PresenceMeta, error) {
	fields, err := c.transport.client.HGetAll(ctx, c.presenceKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]PresenceMeta, 0, len(fields))
	for _, raw := range fields {
		var meta PresenceMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (c *redisChannel) Broadcast(ctx context.Context, event string, payload []byte) error {
	c.mu.Lock()
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	return c.publish(ctx, event, payload)
}

func (c *redisChannel) publish(ctx context.Context, event string, payload []byte) error {
	raw, err := json.Marshal(redisEnvelope{Sender: c.sender, Event: event, Payload: payload})
	if err != nil {
		return err
	}
	_, err = c.transport.breaker.Execute(func() (interface{}, error) {
		return nil, c.transport.client.Publish(ctx, c.key(), raw).Err()
	})
	if err != nil {
		c.transport.metrics.IncrementCounter("transport.redis.publish_failed", 1)
		return err
	}
	c.transport.metrics.IncrementCounter("transport.redis.published", 1)
	return nil
}

func (c *redisChannel) Track(ctx context.Context, meta PresenceMeta) error {
	c.mu.Lock()
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	field := meta.Key
	if field == "" {
		field = c.sender
	}
	if err := c.transport.client.HSet(ctx, c.presenceKey(), field, raw).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.tracked = true
	c.trackField = field
	c.mu.Unlock()

	// the publisher does not get its own envelopes back, so fire the
	// local sync directly
	c.firePresence(ctx)
	return c.publish(ctx, presenceEvent, nil)
}

func (c *redisChannel) OnBroadcast(event string, h BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

func (c *redisChannel) OnPresenceSync(h PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = h
}

func (c *redisChannel) OnStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = h
}

func (c *redisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subscribed = false
	pubsub := c.pubsub
	cancel := c.cancel
	tracked := c.tracked
	field := c.trackField
	status := c.onStatus
	c.mu.Unlock()

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if tracked {
		if err := c.transport.client.HDel(ctx, c.presenceKey(), field).Err(); err == nil {
			c.publish(ctx, presenceEvent, nil)
		}
	}
	if cancel != nil {
		cancel()
	}
	if pubsub != nil {
		pubsub.Close()
	}
	if status != nil {
		status(StatusClosed, nil)
	}
	return nil
}
