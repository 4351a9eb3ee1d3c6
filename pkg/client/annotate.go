package client

import (
	"github.com/classboard/classboard/pkg/annotation"
	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
)

// Teacher annotation editing. The teacher's markup has its own drawing
// state with its own undo history, fully separate from the student's
// strokes: undo here can never touch the student's work. Point-level
// changes coalesce on the batch timer; discrete actions flush at once.

// Attach opens the detail view over one student, hydrates the markup
// surface from any annotations drawn earlier this question, and sends
// the full replace that every delta afterwards is relative to.
func (c *TeacherClient) Attach(username string) error {
	student := c.registry.Student(username)
	if student == nil {
		return ErrUnknownStudent
	}

	c.mu.Lock()
	if c.batcher != nil {
		c.batcher.Stop()
	}
	c.attached = username
	c.markup = drawing.NewState(c.cfg.Params)
	c.markup.ReplacePaths(student.Overlay.Paths())
	c.stream = annotation.NewStreamState(c.cfg.Params.CanvasWidth, c.cfg.Params.CanvasHeight)
	c.batcher = annotation.NewBatcher(c.cfg.FlushInterval, c.flushDelta)
	stream := c.stream
	paths := c.markup.Paths()
	c.mu.Unlock()

	c.sendAnnotations(username, &wire.TeacherAnnotations{
		Target:      username,
		Reason:      wire.DeltaReplace,
		Reviewed:    true,
		Annotations: stream.Replace(paths),
	})
	return nil
}

// Detach closes the detail view: pending deltas are flushed, the markup
// is parked on the student record for the next attach, and nothing is
// sent afterwards.
func (c *TeacherClient) Detach() {
	c.mu.Lock()
	username := c.attached
	markup := c.markup
	batcher := c.batcher
	c.mu.Unlock()
	if username == "" {
		return
	}

	if batcher != nil {
		batcher.Stop()
	}

	c.mu.Lock()
	if student := c.registry.Student(username); student != nil && markup != nil {
		park := annotation.NewStreamState(c.cfg.Params.CanvasWidth, c.cfg.Params.CanvasHeight)
		student.Overlay.ApplyReplace(park.Replace(markup.Paths()))
	}
	c.attached = ""
	c.markup = nil
	c.stream = nil
	c.batcher = nil
	c.mu.Unlock()
}

// Attached returns the username under the open detail view, or "".
func (c *TeacherClient) Attached() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// Markup exposes the annotation surface for rendering, nil when detached.
func (c *TeacherClient) Markup() *drawing.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markup
}

// AnnotateBegin starts a markup stroke.
func (c *TeacherClient) AnnotateBegin(color string, width float64, x, y, pressure float64) {
	if m := c.Markup(); m != nil {
		m.BeginStroke(color, width, false, x, y, pressure)
		c.coalesceDelta()
	}
}

// AnnotateExtend appends a point to the markup stroke.
func (c *TeacherClient) AnnotateExtend(x, y, pressure float64) {
	if m := c.Markup(); m != nil {
		m.ExtendStroke(x, y, pressure)
		c.coalesceDelta()
	}
}

// AnnotateEnd commits the markup stroke and flushes immediately.
func (c *TeacherClient) AnnotateEnd() {
	if m := c.Markup(); m != nil {
		m.EndStroke()
		c.flushDeltaNow()
	}
}

// AnnotateCancel discards the in-progress markup stroke.
func (c *TeacherClient) AnnotateCancel() {
	if m := c.Markup(); m != nil {
		m.CancelStroke()
		c.flushDeltaNow()
	}
}

// AnnotateEraseBegin starts an eraser gesture on the markup layer.
func (c *TeacherClient) AnnotateEraseBegin(x, y float64) {
	if m := c.Markup(); m != nil {
		m.BeginErase(x, y)
		c.coalesceDelta()
	}
}

// AnnotateEraseContinue extends the eraser gesture.
func (c *TeacherClient) AnnotateEraseContinue(x, y float64) {
	if m := c.Markup(); m != nil {
		m.ContinueErase(x, y)
		c.coalesceDelta()
	}
}

// AnnotateEraseEnd finalizes the gesture and flushes immediately.
func (c *TeacherClient) AnnotateEraseEnd() {
	if m := c.Markup(); m != nil {
		m.EndErase()
		c.flushDeltaNow()
	}
}

// AnnotateUndo reverts the teacher's own last markup action.
func (c *TeacherClient) AnnotateUndo() {
	if m := c.Markup(); m != nil && m.Undo() {
		c.flushDeltaNow()
	}
}

// AnnotateRedo re-applies the teacher's own last undone markup action.
func (c *TeacherClient) AnnotateRedo() {
	if m := c.Markup(); m != nil && m.Redo() {
		c.flushDeltaNow()
	}
}

// AnnotateClear wipes the markup layer.
func (c *TeacherClient) AnnotateClear() {
	if m := c.Markup(); m != nil {
		m.Clear()
		c.flushDeltaNow()
	}
}

func (c *TeacherClient) coalesceDelta() {
	c.mu.Lock()
	b := c.batcher
	c.mu.Unlock()
	if b != nil {
		b.Coalesce()
	}
}

func (c *TeacherClient) flushDeltaNow() {
	c.mu.Lock()
	b := c.batcher
	c.mu.Unlock()
	if b != nil {
		b.FlushNow()
	}
}

// flushDelta diffs the markup layer (including the in-progress stroke)
// against the stream watermark and sends either the minimal delta or,
// when the change is not delta-representable, a full replace.
func (c *TeacherClient) flushDelta() {
	c.mu.Lock()
	username := c.attached
	markup := c.markup
	stream := c.stream
	c.mu.Unlock()
	if username == "" || markup == nil {
		return
	}

	paths := markup.Paths()
	if cur := markup.CurrentStroke(); cur != nil && len(cur.Points) > 0 {
		paths = append(paths, cur)
	}

	delta, needReplace := stream.ComputeDelta(paths)
	switch {
	case needReplace:
		c.logger.Warn("Annotation stream desync, forcing replace", map[string]interface{}{
			"username": username,
		})
		c.metrics.IncrementCounter("teacher.annotation_replace", 1)
		c.sendAnnotations(username, &wire.TeacherAnnotations{
			Target:      username,
			Reason:      wire.DeltaReplace,
			Reviewed:    true,
			Annotations: stream.Replace(paths),
		})
	case delta != nil:
		c.sendAnnotations(username, &wire.TeacherAnnotations{
			Target:   username,
			Reviewed: true,
			Delta:    delta,
		})
	}
}

func (c *TeacherClient) sendAnnotations(username string, msg *wire.TeacherAnnotations) {
	c.registry.MarkReviewed(username)
	c.broadcaster.Broadcast(c.runCtx(), msg)
}

// RenderStudent flattens one student's mirror (their strokes plus the
// teacher overlay) into draw ops for the tile view.
func (c *TeacherClient) RenderStudent(username string) []geometry.DrawOp {
	student := c.registry.Student(username)
	if student == nil {
		return nil
	}
	ops := student.State.Render(c.cfg.Render)
	for _, p := range student.Overlay.Paths() {
		ops = append(ops, geometry.Render(p, c.cfg.Render)...)
	}
	return ops
}
