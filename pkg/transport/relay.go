package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/classboard/classboard/pkg/observability"
)

// Frame types on the relay wire.
const (
	frameBroadcast = "broadcast"
	frameTrack     = "track"
	framePresence  = "presence"
)

// relayFrame is the single message shape both directions use.
type relayFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Meta    *PresenceMeta   `json:"meta,omitempty"`
	Members []PresenceMeta  `json:"members,omitempty"`
}

const (
	relaySendBuffer = 256
	relayWriteWait  = 5 * time.Second
)

// RelayServer is the websocket hub: each connection joins one room named
// by the ?channel query parameter, broadcasts fan out to every other
// member, and presence is synced on every track and disconnect. Per
// connection inbound frames are rate limited; a slow reader's send
// buffer drops the oldest frames rather than stalling the room.
type RelayServer struct {
	logger  observability.Logger
	metrics observability.MetricsClient
	limit   rate.Limit
	burst   int

	mu    sync.Mutex
	rooms map[string]*relayRoom
}

// NewRelayServer creates a hub limiting each connection to msgsPerSecond
// inbound frames.
func NewRelayServer(msgsPerSecond float64, burst int, logger observability.Logger, metrics observability.MetricsClient) *RelayServer {
	if msgsPerSecond <= 0 {
		msgsPerSecond = 120
	}
	if burst <= 0 {
		burst = 240
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &RelayServer{
		logger:  logger,
		metrics: metrics,
		limit:   rate.Limit(msgsPerSecond),
		burst:   burst,
		rooms:   make(map[string]*relayRoom),
	}
}

type relayRoom struct {
	mu       sync.Mutex
	name     string
	members  map[*relayConn]bool
	presence map[*relayConn]PresenceMeta
}

type relayConn struct {
	room    *relayRoom
	ws      *websocket.Conn
	send    chan relayFrame
	done    chan struct{}
	limiter *rate.Limiter
	once    sync.Once
}

func (s *RelayServer) room(name string) *relayRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[name]
	if !ok {
		r = &relayRoom{
			name:     name,
			members:  make(map[*relayConn]bool),
			presence: make(map[*relayConn]PresenceMeta),
		}
		s.rooms[name] = r
	}
	return r
}

// ServeHTTP upgrades the connection and runs its read loop until the
// client disconnects.
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "missing channel", http.StatusBadRequest)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // served same-origin behind the asset server
	})
	if err != nil {
		s.logger.Warn("Websocket accept failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	conn := &relayConn{
		room:    s.room(channel),
		ws:      ws,
		send:    make(chan relayFrame, relaySendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(s.limit, s.burst),
	}
	conn.room.join(conn)
	s.metrics.IncrementCounter("relay.connections", 1)

	ctx := r.Context()
	go conn.writeLoop(ctx)
	s.readLoop(ctx, conn)

	conn.room.leave(conn)
	conn.close()
	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *RelayServer) readLoop(ctx context.Context, conn *relayConn) {
	for {
		var frame relayFrame
		if err := wsjson.Read(ctx, conn.ws, &frame); err != nil {
			return
		}
		if !conn.limiter.Allow() {
			s.metrics.IncrementCounter("relay.rate_limited", 1)
			continue
		}
		switch frame.Type {
		case frameBroadcast:
			conn.room.fanOut(conn, frame)
		case frameTrack:
			if frame.Meta != nil {
				conn.room.track(conn, *frame.Meta)
			}
		}
	}
}

func (c *relayConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, relayWriteWait)
			err := wsjson.Write(writeCtx, c.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// close stops the write loop. The send channel itself is never closed:
// room peers can still hold a reference and enqueue concurrently.
func (c *relayConn) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue drops the frame when the connection is gone or the peer cannot
// keep up; canvas pushes and the sync loop repair anything a slow mirror
// missed.
func (c *relayConn) enqueue(frame relayFrame) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
	}
}

func (r *relayRoom) join(c *relayConn) {
	r.mu.Lock()
	r.members[c] = true
	r.mu.Unlock()
}

func (r *relayRoom) leave(c *relayConn) {
	r.mu.Lock()
	delete(r.members, c)
	_, tracked := r.presence[c]
	delete(r.presence, c)
	r.mu.Unlock()
	if tracked {
		r.syncPresence()
	}
}

func (r *relayRoom) track(c *relayConn, meta PresenceMeta) {
	r.mu.Lock()
	r.presence[c] = meta
	r.mu.Unlock()
	r.syncPresence()
}

func (r *relayRoom) fanOut(from *relayConn, frame relayFrame) {
	r.mu.Lock()
	targets := make([]*relayConn, 0, len(r.members))
	for m := range r.members {
		if m != from {
			targets = append(targets, m)
		}
	}
	r.mu.Unlock()
	for _, m := range targets {
		m.enqueue(frame)
	}
}

func (r *relayRoom) syncPresence() {
	r.mu.Lock()
	roster := make([]PresenceMeta, 0, len(r.presence))
	for _, meta := range r.presence {
		roster = append(roster, meta)
	}
	targets := make([]*relayConn, 0, len(r.members))
	for m := range r.members {
		targets = append(targets, m)
	}
	r.mu.Unlock()

	frame := relayFrame{Type: framePresence, Members: roster}
	for _, m := range targets {
		m.enqueue(frame)
	}
}
