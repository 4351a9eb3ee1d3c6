package transport

import (
	"context"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/classboard/classboard/pkg/observability"
)

// WebSocketTransport dials a relay server. The base URL points at the
// relay endpoint (ws://host/ws); each channel adds its room name as the
// ?channel query parameter.
type WebSocketTransport struct {
	baseURL string
	logger  observability.Logger
}

// NewWebSocketTransport creates a dialing transport.
func NewWebSocketTransport(baseURL string, logger observability.Logger) *WebSocketTransport {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &WebSocketTransport{baseURL: baseURL, logger: logger}
}

// Channel returns a fresh participant handle for the named room.
func (t *WebSocketTransport) Channel(name string) Channel {
	return &wsChannel{
		transport: t,
		name:      name,
		handlers:  make(map[string]BroadcastHandler),
	}
}

type wsChannel struct {
	transport *WebSocketTransport
	name      string

	mu         sync.Mutex
	subscribed bool
	closed     bool
	conn       *websocket.Conn
	cancel     context.CancelFunc
	handlers   map[string]BroadcastHandler
	onPresence PresenceHandler
	onStatus   StatusHandler
}

func (c *wsChannel) endpoint() (string, error) {
	u, err := url.Parse(c.transport.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("channel", c.name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *wsChannel) Subscribe(ctx context.Context) error {
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

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.subscribed = true
	c.conn = conn
	c.cancel = cancel
	status := c.onStatus
	c.mu.Unlock()

	go c.readLoop(loopCtx, conn)
	if status != nil {
		status(StatusSubscribed, nil)
	}
	return nil
}

func (c *wsChannel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame relayFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.subscribed = false
			status := c.onStatus
			c.mu.Unlock()
			if !wasClosed && status != nil {
				status(StatusError, err)
			}
			return
		}

		switch frame.Type {
		case frameBroadcast:
			c.mu.Lock()
			h, ok := c.handlers[frame.Event]
			if !ok {
				h = c.handlers[""]
			}
			c.mu.Unlock()
			if h != nil {
				h(frame.Event, frame.Payload)
			}
		case framePresence:
			c.mu.Lock()
			h := c.onPresence
			c.mu.Unlock()
			if h != nil {
				h(frame.Members)
			}
		}
	}
}

func (c *wsChannel) Broadcast(ctx context.Context, event string, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	return wsjson.Write(ctx, conn, relayFrame{Type: frameBroadcast, Event: event, Payload: payload})
}

func (c *wsChannel) Track(ctx context.Context, meta PresenceMeta) error {
	c.mu.Lock()
	conn := c.conn
	ok := c.subscribed && !c.closed
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	return wsjson.Write(ctx, conn, relayFrame{Type: frameTrack, Meta: &meta})
}

func (c *wsChannel) OnBroadcast(event string, h BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

func (c *wsChannel) OnPresenceSync(h PresenceHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = h
}

func (c *wsChannel) OnStatus(h StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = h
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subscribed = false
	conn := c.conn
	cancel := c.cancel
	status := c.onStatus
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if status != nil {
		status(StatusClosed, nil)
	}
	return nil
}
