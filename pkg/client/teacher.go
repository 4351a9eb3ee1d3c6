package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/classboard/classboard/pkg/annotation"
	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
	"github.com/classboard/classboard/pkg/observability"
	"github.com/classboard/classboard/pkg/reliable"
	"github.com/classboard/classboard/pkg/session"
	"github.com/classboard/classboard/pkg/transport"
)

// DefaultSyncInterval is the watchdog period after which students that
// have not pushed a canvas are asked again.
const DefaultSyncInterval = 4 * time.Second

// ErrUnknownStudent is returned by Attach for a username not in presence.
var ErrUnknownStudent = errors.New("client: unknown student")

// TeacherConfig configures a teacher client.
type TeacherConfig struct {
	// SessionCode is generated when empty.
	SessionCode string
	Params      drawing.Params
	Render      geometry.RenderParams

	SyncInterval   time.Duration
	FlushInterval  time.Duration
	ReconnectDelay time.Duration
	LogCapacity    int
	QueueCapacity  int
}

// TeacherClient owns the session: the single sequence counter, the
// student registry with mirrored canvases, and the annotation channel
// over whichever student's detail view is open.
type TeacherClient struct {
	cfg       TeacherConfig
	transport transport.Transport

	registry    *session.Registry
	broadcaster *reliable.Broadcaster
	reconnector *reliable.Reconnector

	logger  observability.Logger
	metrics observability.MetricsClient

	onStatus   StatusFunc
	onCanvas   func(username string)
	onFragment func(username string, ops []geometry.DrawOp)

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
	syncStop chan struct{}

	// annotation detail view; guarded by mu
	attached string
	markup   *drawing.State
	stream   *annotation.StreamState
	batcher  *annotation.Batcher
}

// NewTeacherClient wires a teacher client over a transport.
func NewTeacherClient(cfg TeacherConfig, tp transport.Transport, logger observability.Logger, metrics observability.MetricsClient) *TeacherClient {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	if cfg.SessionCode == "" {
		cfg.SessionCode = session.GenerateCode()
	}
	if cfg.Params.CanvasWidth == 0 {
		cfg.Params = drawing.DefaultParams()
	}
	if cfg.Render == (geometry.RenderParams{}) {
		cfg.Render = geometry.DefaultRenderParams()
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}

	c := &TeacherClient{
		cfg:         cfg,
		transport:   tp,
		registry:    session.NewRegistry(cfg.SessionCode, cfg.Params, logger, metrics),
		broadcaster: reliable.NewBroadcaster(cfg.LogCapacity, cfg.QueueCapacity, logger, metrics),
		logger:      logger.WithPrefix("teacher"),
		metrics:     metrics,
	}
	c.registry.OnJoin(c.welcome)
	c.registry.OnLeave(c.studentLeft)
	c.reconnector = reliable.NewReconnector(c.dial, c.attachChannel, cfg.ReconnectDelay, c.logger)
	return c
}

// SessionCode returns the join code students use.
func (c *TeacherClient) SessionCode() string { return c.cfg.SessionCode }

// Registry exposes the student map for rendering and review UI.
func (c *TeacherClient) Registry() *session.Registry { return c.registry }

// OnStatus registers the badge callback.
func (c *TeacherClient) OnStatus(f StatusFunc) { c.onStatus = f }

// OnCanvasUpdate registers the callback fired when a student's mirror
// changed.
func (c *TeacherClient) OnCanvasUpdate(f func(username string)) { c.onCanvas = f }

// OnDrawFragment registers the callback for low-latency in-progress
// stroke fragments, rendered directly onto the student's mirror tile.
func (c *TeacherClient) OnDrawFragment(f func(username string, ops []geometry.DrawOp)) {
	c.onFragment = f
}

// Connect subscribes to the session channel and announces the session.
func (c *TeacherClient) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	ch, err := c.dial(runCtx)
	if err != nil {
		cancel()
		return err
	}
	c.attachChannel(ch)
	return nil
}

// Close announces session end to every student and shuts down.
func (c *TeacherClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	syncStop := c.syncStop
	c.syncStop = nil
	batcher := c.batcher
	c.mu.Unlock()

	if batcher != nil {
		batcher.Stop()
	}
	if syncStop != nil {
		close(syncStop)
	}
	c.broadcaster.Broadcast(c.runCtx(), &wire.SessionClosed{Reason: "teacher_left"})
	c.reconnector.Close()
	c.broadcaster.Detach()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *TeacherClient) dial(ctx context.Context) (transport.Channel, error) {
	ch := c.transport.Channel(c.cfg.SessionCode)
	ch.OnBroadcast("", c.handleEvent)
	ch.OnPresenceSync(func(members []transport.PresenceMeta) {
		c.registry.ReconcilePresence(members)
	})
	ch.OnStatus(c.handleStatus)
	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	if err := ch.Track(ctx, transport.PresenceMeta{
		Key:  "teacher",
		Role: session.RoleTeacher,
	}); err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *TeacherClient) attachChannel(ch transport.Channel) {
	ctx := c.runCtx()
	c.broadcaster.Attach(ctx, ch)
	c.setBadge(Badge{State: BadgeConnected, Message: "Connected"})
	c.broadcaster.Broadcast(ctx, &wire.TeacherReady{SessionCode: c.cfg.SessionCode})
}

func (c *TeacherClient) runCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func (c *TeacherClient) handleStatus(status transport.Status, err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.setBadge(badgeForStatus(status))
	switch status {
	case transport.StatusError, transport.StatusTimedOut, transport.StatusClosed:
		if err != nil {
			c.logger.Warn("Channel disrupted", map[string]interface{}{
				"status": string(status),
				"error":  err.Error(),
			})
		}
		c.broadcaster.Detach()
		c.reconnector.Trigger(c.runCtx())
	}
}

func (c *TeacherClient) setBadge(b Badge) {
	if c.onStatus != nil {
		c.onStatus(b)
	}
}

func (c *TeacherClient) handleEvent(event string, payload []byte) {
	msg, err := wire.Decode(event, payload)
	if err != nil {
		c.logger.Warn("Dropping malformed event", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		c.metrics.IncrementCounter("teacher.decode_failed", 1)
		return
	}

	switch m := msg.(type) {
	case *wire.StudentReady:
		// presence sync creates the record; the ready event just makes
		// sure a restarting student gets its state back promptly
		c.welcome(m.Username)

	case *wire.StudentCanvas:
		if c.registry.ApplyCanvas(m) && c.onCanvas != nil {
			c.onCanvas(m.Username)
		}

	case *wire.DrawBatch:
		c.registry.MarkReviewed(m.Username)
		if c.onFragment != nil {
			c.onFragment(m.Username, m.Batch)
		}

	case *wire.SessionStateRequest:
		c.respondSessionState(m)
	}
}

// welcome (re)sends the session-wide background to one student and asks
// for its current canvas. Runs on first presence and on student_ready.
func (c *TeacherClient) welcome(username string) {
	ctx := c.runCtx()
	if bg := c.registry.Background(); bg != nil {
		c.broadcaster.Broadcast(ctx, &wire.SetBackground{
			BackgroundSpec: *bg,
			Target:         username,
		})
	}
	c.broadcaster.Broadcast(ctx, &wire.RequestCanvas{
		Target:      username,
		RequestedBy: "teacher",
	})
}

func (c *TeacherClient) studentLeft(username string) {
	c.mu.Lock()
	wasAttached := c.attached == username
	c.mu.Unlock()
	if wasAttached {
		// the detail view's subject disappeared; nothing left to flush to
		c.Detach()
	}
}

func (c *TeacherClient) respondSessionState(m *wire.SessionStateRequest) {
	reply := &wire.SessionState{
		Target:   m.Username,
		Snapshot: c.registry.Snapshot(c.broadcaster.LastSequence()),
		Events:   c.broadcaster.EventsSince(m.LastSequence),
	}
	c.broadcaster.Broadcast(c.runCtx(), reply)
	c.logger.Debug("Served catch-up", map[string]interface{}{
		"username":      m.Username,
		"last_sequence": m.LastSequence,
		"events":        len(reply.Events),
	})
}

// NextQuestion advances to the next question with an optional new
// background, wiping every canvas on both ends.
func (c *TeacherClient) NextQuestion(mode string, background *wire.BackgroundSpec) int {
	msg := &wire.NextQuestion{
		InitiatedAt:    time.Now().UnixMilli(),
		QuestionNumber: c.registry.QuestionNumber() + 1,
		Mode:           mode,
		Background:     background,
	}
	c.registry.NextQuestion(msg)
	c.broadcaster.Broadcast(c.runCtx(), msg)

	// annotations belong to the wiped question
	c.mu.Lock()
	if c.attached != "" && c.markup != nil {
		c.markup.Reset()
		c.stream = annotation.NewStreamState(c.cfg.Params.CanvasWidth, c.cfg.Params.CanvasHeight)
	}
	c.mu.Unlock()
	return msg.QuestionNumber
}

// SetBackground changes the background for everyone, or for one student
// when target is non-empty.
func (c *TeacherClient) SetBackground(spec wire.BackgroundSpec, target string) {
	msg := &wire.SetBackground{BackgroundSpec: spec, Target: target}
	c.registry.SetBackground(msg)
	c.broadcaster.Broadcast(c.runCtx(), msg)
}

// ForceSync asks every student to re-push full canvas state.
func (c *TeacherClient) ForceSync() {
	c.broadcaster.Broadcast(c.runCtx(), &wire.ForceSync{InitiatedAt: time.Now().UnixMilli()})
}

// StartSyncLoop runs the watchdog: every interval, students that have
// not pushed since the previous tick are asked for their canvas again.
func (c *TeacherClient) StartSyncLoop() {
	c.mu.Lock()
	if c.syncStop != nil || c.closed {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.syncStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				stale := c.registry.MarkAllUnsynced()
				for _, username := range stale {
					c.broadcaster.Broadcast(c.runCtx(), &wire.RequestCanvas{
						Target:      username,
						RequestedBy: "sync_loop",
					})
				}
				if len(stale) > 0 {
					c.metrics.IncrementCounter("teacher.sync_requests", float64(len(stale)))
				}
			}
		}
	}()
}

// StopSyncLoop halts the watchdog.
func (c *TeacherClient) StopSyncLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncStop != nil {
		close(c.syncStop)
		c.syncStop = nil
	}
}
