package client

import (
	"context"
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

// StudentConfig configures a student client.
type StudentConfig struct {
	Username    string
	SessionCode string
	Params      drawing.Params
	Render      geometry.RenderParams

	// FragmentInterval coalesces draw_batch fragments; zero means the
	// annotation default (80ms).
	FragmentInterval time.Duration
	ReconnectDelay   time.Duration
}

// StudentClient owns one student's canvas and its side of the protocol:
// it pushes strokes and history navigation to the teacher, receives
// control events through the sequence guard, and composites the teacher's
// annotation overlay over its own work.
type StudentClient struct {
	cfg       StudentConfig
	transport transport.Transport

	state   *drawing.State
	overlay *annotation.Overlay
	loader  *drawing.ImageLoader

	broadcaster *reliable.Broadcaster
	guard       *reliable.ReceiveGuard
	reconnector *reliable.Reconnector
	fragments   *annotation.Batcher

	logger  observability.Logger
	metrics observability.MetricsClient

	onStatus StatusFunc
	onUpdate func()
	onClosed func(reason string)

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	question int
	closed   bool

	// in-progress stroke fragment bookkeeping
	sentSegments int
	sentDot      bool
	erasedAny    bool
}

// NewStudentClient wires a student client over a transport. Connect joins
// the session.
func NewStudentClient(cfg StudentConfig, tp transport.Transport, store reliable.SequenceStore, logger observability.Logger, metrics observability.MetricsClient) *StudentClient {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	if cfg.Params.CanvasWidth == 0 {
		cfg.Params = drawing.DefaultParams()
	}
	if cfg.Render == (geometry.RenderParams{}) {
		cfg.Render = geometry.DefaultRenderParams()
	}
	if store == nil {
		store = reliable.NewMemorySequenceStore()
	}

	c := &StudentClient{
		cfg:         cfg,
		transport:   tp,
		state:       drawing.NewState(cfg.Params),
		overlay:     annotation.NewOverlay(cfg.Params.CanvasWidth, cfg.Params.CanvasHeight),
		loader:      drawing.NewImageLoader(0, logger),
		broadcaster: reliable.NewBroadcaster(0, 0, logger, metrics),
		guard:       reliable.NewReceiveGuard(store, cfg.SessionCode, logger),
		logger:      logger.WithPrefix("student:" + cfg.Username),
		metrics:     metrics,
		question:    1,
	}
	c.fragments = annotation.NewBatcher(cfg.FragmentInterval, c.flushFragments)
	c.reconnector = reliable.NewReconnector(c.dial, c.attach, cfg.ReconnectDelay, c.logger)
	return c
}

// OnStatus registers the badge callback.
func (c *StudentClient) OnStatus(f StatusFunc) { c.onStatus = f }

// OnUpdate registers the repaint signal, fired whenever remote input
// changed what the canvas should show.
func (c *StudentClient) OnUpdate(f func()) { c.onUpdate = f }

// OnSessionClosed registers the forced-exit callback.
func (c *StudentClient) OnSessionClosed(f func(reason string)) { c.onClosed = f }

// State exposes the student's own drawing surface.
func (c *StudentClient) State() *drawing.State { return c.state }

// Overlay returns the teacher's annotation paths in z-order, rendered
// above the student's own strokes.
func (c *StudentClient) Overlay() []*geometry.Path { return c.overlay.Paths() }

// QuestionNumber returns the current question.
func (c *StudentClient) QuestionNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.question
}

// Connect subscribes to the session channel, announces presence, and
// requests catch-up state.
func (c *StudentClient) Connect(ctx context.Context) error {
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
	c.attach(ch)
	return nil
}

// Close leaves the session.
func (c *StudentClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	c.fragments.Stop()
	c.reconnector.Close()
	c.broadcaster.Detach()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *StudentClient) dial(ctx context.Context) (transport.Channel, error) {
	ch := c.transport.Channel(c.cfg.SessionCode)
	ch.OnBroadcast("", c.handleEvent)
	ch.OnStatus(c.handleStatus)
	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	if err := ch.Track(ctx, transport.PresenceMeta{
		Key:      c.cfg.Username,
		Role:     session.RoleStudent,
		Username: c.cfg.Username,
	}); err != nil {
		return nil, err
	}
	return ch, nil
}

// attach binds a freshly subscribed channel, flushes any queued sends,
// and (re)announces this student.
func (c *StudentClient) attach(ch transport.Channel) {
	ctx := c.runCtx()
	c.broadcaster.Attach(ctx, ch)
	c.setBadge(Badge{State: BadgeConnected, Message: "Connected"})

	c.send(&wire.StudentReady{Username: c.cfg.Username})
	c.send(&wire.SessionStateRequest{
		Username:     c.cfg.Username,
		LastSequence: c.guard.LastApplied(),
	})
}

func (c *StudentClient) runCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func (c *StudentClient) handleStatus(status transport.Status, err error) {
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

func (c *StudentClient) setBadge(b Badge) {
	if c.onStatus != nil {
		c.onStatus(b)
	}
}

func (c *StudentClient) notifyUpdate() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

// handleEvent is the single receive path. Decode failures and stale
// sequences are dropped here so handlers below see only valid, new input.
func (c *StudentClient) handleEvent(event string, payload []byte) {
	msg, err := wire.Decode(event, payload)
	if err != nil {
		c.logger.Warn("Dropping malformed event", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		c.metrics.IncrementCounter("student.decode_failed", 1)
		return
	}
	if !c.guard.Admit(msg) {
		return
	}
	c.dispatch(msg)
}

func (c *StudentClient) dispatch(msg wire.Message) {
	switch m := msg.(type) {
	case *wire.SetBackground:
		if m.Target != "" && m.Target != c.cfg.Username {
			return
		}
		c.applyBackground(&m.BackgroundSpec)
		c.notifyUpdate()

	case *wire.NextQuestion:
		c.mu.Lock()
		if m.QuestionNumber <= c.question {
			c.mu.Unlock()
			return
		}
		c.question = m.QuestionNumber
		c.mu.Unlock()

		c.state.Reset()
		c.overlay.ApplyReplace(nil)
		c.applyBackground(m.Background)
		c.notifyUpdate()

	case *wire.TeacherAnnotations:
		if m.Target != c.cfg.Username {
			return
		}
		if m.IsReplace() {
			c.overlay.ApplyReplace(m.Annotations)
		} else if err := c.overlay.ApplyDelta(m.Delta); err != nil {
			// stale until the teacher's next replace
			c.logger.Warn("Annotation delta not applicable", map[string]interface{}{
				"error": err.Error(),
			})
			c.metrics.IncrementCounter("student.annotation_desync", 1)
			return
		}
		c.notifyUpdate()

	case *wire.RequestCanvas:
		if m.Target != c.cfg.Username {
			return
		}
		c.pushCanvas("request")

	case *wire.ForceSync:
		c.pushCanvas("force_sync")

	case *wire.SessionState:
		if m.Target != "" && m.Target != c.cfg.Username {
			return
		}
		c.applySessionState(m)

	case *wire.SessionClosed:
		c.setBadge(Badge{State: BadgeError, Message: "Session closed"})
		if c.onClosed != nil {
			c.onClosed(m.Reason)
		}
	}
}

// applySessionState installs the snapshot baseline, replays the logged
// tail through the normal dispatch path, and advances the watermark to
// the snapshot's sequence so evicted events can never replay later.
func (c *StudentClient) applySessionState(m *wire.SessionState) {
	c.mu.Lock()
	advanced := m.Snapshot.QuestionNumber > c.question
	if advanced {
		c.question = m.Snapshot.QuestionNumber
	}
	c.mu.Unlock()

	// A snapshot question ahead of ours means a next_question happened
	// while we were away. The replayed copy (if the log still holds it)
	// arrives with a non-advancing number and is ignored, and the log may
	// have evicted it entirely, so the wipe happens here.
	if advanced {
		c.state.Reset()
		c.overlay.ApplyReplace(nil)
	}

	c.applyBackground(m.Snapshot.Background)

	for _, e := range m.Events {
		c.handleEvent(e.Event, e.Payload)
	}
	c.guard.Advance(m.Snapshot.Sequence)
	c.notifyUpdate()
}

func (c *StudentClient) applyBackground(spec *wire.BackgroundSpec) {
	if spec == nil {
		return
	}
	bg := drawing.Background{ImageData: spec.ImageData, Vector: spec.Vector}
	if bg.Vector == nil && spec.PresetID != "" {
		if tpl, ok := drawing.PresetTemplate(spec.PresetID); ok {
			bg.Vector = tpl
		}
	}
	c.state.SetBackground(bg)
	if bg.ImageData != "" {
		c.loader.Load(bg.ImageData, func(resolved *drawing.ResolvedImage) {
			bg.Image = resolved
			c.state.SetBackground(bg)
			c.notifyUpdate()
		})
	}
}

// BeginStroke starts a pen stroke.
func (c *StudentClient) BeginStroke(color string, width float64, x, y, pressure float64) {
	c.state.BeginStroke(color, width, false, x, y, pressure)
	c.mu.Lock()
	c.sentSegments = 0
	c.sentDot = false
	c.mu.Unlock()
	c.fragments.Coalesce()
}

// ExtendStroke appends a point and schedules a fragment flush.
func (c *StudentClient) ExtendStroke(x, y, pressure float64) {
	c.state.ExtendStroke(x, y, pressure)
	c.fragments.Coalesce()
}

// EndStroke commits the stroke and pushes full canvas state.
func (c *StudentClient) EndStroke() {
	c.fragments.FlushNow()
	if c.state.EndStroke() == nil {
		return
	}
	c.pushCanvas("stroke")
}

// CancelStroke discards the in-progress stroke.
func (c *StudentClient) CancelStroke() {
	c.state.CancelStroke()
}

// BeginErase starts an eraser gesture.
func (c *StudentClient) BeginErase(x, y float64) {
	removed := c.state.BeginErase(x, y)
	c.mu.Lock()
	c.erasedAny = len(removed) > 0
	c.mu.Unlock()
}

// ContinueErase extends the gesture.
func (c *StudentClient) ContinueErase(x, y float64) {
	removed := c.state.ContinueErase(x, y)
	if len(removed) > 0 {
		c.mu.Lock()
		c.erasedAny = true
		c.mu.Unlock()
	}
}

// EndErase finalizes the gesture and, when it removed anything, pushes
// canvas state under the erase alias.
func (c *StudentClient) EndErase() {
	c.state.EndErase()
	c.mu.Lock()
	erased := c.erasedAny
	c.erasedAny = false
	c.mu.Unlock()
	if erased {
		c.pushCanvas(wire.EventCanvasErase)
	}
}

// Undo reverts the last action and broadcasts the result.
func (c *StudentClient) Undo() {
	if c.state.Undo() {
		c.pushCanvas(wire.EventCanvasUndo)
	}
}

// Redo re-applies the last undone action and broadcasts the result.
func (c *StudentClient) Redo() {
	if c.state.Redo() {
		c.pushCanvas(wire.EventCanvasRedo)
	}
}

// Clear wipes the canvas and broadcasts the result.
func (c *StudentClient) Clear() {
	c.state.Clear()
	c.pushCanvas(wire.EventCanvasClear)
}

// pushCanvas broadcasts full canvas state. History-navigation reasons
// travel under their alias event names, everything else as
// student_canvas.
func (c *StudentClient) pushCanvas(reason string) {
	bg := c.state.Background()
	msg := &wire.StudentCanvas{
		Username: c.cfg.Username,
		Reason:   reason,
		CanvasState: wire.CanvasState{
			Paths:            geometry.SerializePaths(c.state.Paths(), c.cfg.Params.CanvasWidth, c.cfg.Params.CanvasHeight),
			BackgroundImage:  bg.ImageData,
			BackgroundVector: bg.Vector,
			Width:            c.cfg.Params.CanvasWidth,
			Height:           c.cfg.Params.CanvasHeight,
		},
	}
	event := wire.EventStudentCanvas
	if wire.IsCanvasEvent(reason) {
		event = reason
	}
	_, raw, err := wire.Encode(msg)
	if err != nil {
		c.logger.Error("Canvas encode failed", map[string]interface{}{"error": err.Error()})
		return
	}
	c.broadcaster.BroadcastRaw(c.runCtx(), event, raw)
}

func (c *StudentClient) send(msg wire.Message) {
	c.broadcaster.Broadcast(c.runCtx(), msg)
}

// flushFragments sends the not-yet-sent render ops of the in-progress
// stroke as a draw_batch. Segment ops are a stable prefix, so tracking a
// count is enough; the cap dot is excluded because it moves with every
// point.
func (c *StudentClient) flushFragments() {
	cur := c.state.CurrentStroke()
	if cur == nil {
		return
	}
	ops := geometry.Render(cur, c.cfg.Render)

	c.mu.Lock()
	var batch []geometry.DrawOp
	if len(cur.Points) == 1 {
		if !c.sentDot {
			batch = ops
			c.sentDot = true
		}
	} else {
		segments := ops[:len(ops)-1]
		if c.sentSegments < len(segments) {
			batch = segments[c.sentSegments:]
			c.sentSegments = len(segments)
		}
	}
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	c.send(&wire.DrawBatch{Username: c.cfg.Username, Batch: batch})
}
