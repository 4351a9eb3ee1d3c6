// Package session keeps the set of known students consistent with live
// presence and applies control-plane events (next question, background
// changes) idempotently on top of the reliable layer's guard.
package session

import (
	"sync"
	"time"

	"github.com/classboard/classboard/pkg/annotation"
	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
	"github.com/classboard/classboard/pkg/observability"
	"github.com/classboard/classboard/pkg/transport"
)

// Roles tracked in the presence registry.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Student is the teacher-side record of one present student: the mirrored
// drawing state, the teacher's annotation overlay for it, and triage
// flags.
type Student struct {
	Username string
	State    *drawing.State
	Overlay  *annotation.Overlay

	// Reviewed is monotonic within a question: set on any student draw or
	// teacher annotation, reset only by next-question.
	Reviewed bool
	// Synced is cleared by the watchdog sync loop and set again when a
	// fresh canvas push arrives.
	Synced   bool
	LastSeen time.Time
}

// Registry owns the one piece of genuinely shared teacher-side state: the
// map of present students plus the session-wide question and background.
type Registry struct {
	mu       sync.RWMutex
	params   drawing.Params
	students map[string]*Student

	sessionCode    string
	questionNumber int
	mode           string
	background     *wire.BackgroundSpec

	onJoin  func(username string)
	onLeave func(username string)

	logger  observability.Logger
	metrics observability.MetricsClient
	now     func() time.Time
}

// NewRegistry creates an empty registry for one session.
func NewRegistry(sessionCode string, params drawing.Params, logger observability.Logger, metrics observability.MetricsClient) *Registry {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}
	return &Registry{
		params:         params,
		students:       make(map[string]*Student),
		sessionCode:    sessionCode,
		questionNumber: 1,
		logger:         logger,
		metrics:        metrics,
		now:            time.Now,
	}
}

// OnJoin registers the callback fired for each newly present student.
func (r *Registry) OnJoin(f func(username string)) { r.onJoin = f }

// OnLeave registers the callback fired for each departed student. The
// teacher client uses it to close a detail view pointing at the student.
func (r *Registry) OnLeave(f func(username string)) { r.onLeave = f }

// ReconcilePresence diffs the presence roster against the known set,
// creating state for new students and destroying it for departed ones.
func (r *Registry) ReconcilePresence(members []transport.PresenceMeta) (joined, left []string) {
	present := make(map[string]bool)
	for _, m := range members {
		if m.Role != RoleStudent || m.Username == "" {
			continue
		}
		present[m.Username] = true
	}

	r.mu.Lock()
	for username := range present {
		if _, known := r.students[username]; known {
			r.students[username].LastSeen = r.now()
			continue
		}
		r.students[username] = &Student{
			Username: username,
			State:    drawing.NewState(r.params),
			Overlay:  annotation.NewOverlay(r.params.CanvasWidth, r.params.CanvasHeight),
			LastSeen: r.now(),
		}
		joined = append(joined, username)
	}
	for username := range r.students {
		if !present[username] {
			delete(r.students, username)
			left = append(left, username)
		}
	}
	count := len(r.students)
	r.mu.Unlock()

	r.metrics.RecordGauge("session.students", float64(count), nil)
	for _, username := range joined {
		r.logger.Info("Student joined", map[string]interface{}{"username": username})
		if r.onJoin != nil {
			r.onJoin(username)
		}
	}
	for _, username := range left {
		r.logger.Info("Student left", map[string]interface{}{"username": username})
		if r.onLeave != nil {
			r.onLeave(username)
		}
	}
	return joined, left
}

// Student returns the record for a username, or nil.
func (r *Registry) Student(username string) *Student {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.students[username]
}

// Usernames returns the present students, unordered.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.students))
	for username := range r.students {
		out = append(out, username)
	}
	return out
}

// Len returns the number of present students.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}

// SessionCode returns the session's join code.
func (r *Registry) SessionCode() string { return r.sessionCode }

// QuestionNumber returns the current question.
func (r *Registry) QuestionNumber() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.questionNumber
}

// Background returns the session-wide background applied to new joiners.
func (r *Registry) Background() *wire.BackgroundSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.background
}

// NextQuestion applies a next_question event. Only strictly increasing
// question numbers are accepted; anything else is a stale duplicate and
// is ignored. On acceptance every student's canvas, overlay, and reviewed
// flag is reset and the new background becomes session-wide.
func (r *Registry) NextQuestion(msg *wire.NextQuestion) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.QuestionNumber <= r.questionNumber {
		r.logger.Debug("Ignoring non-advancing question", map[string]interface{}{
			"current":  r.questionNumber,
			"received": msg.QuestionNumber,
		})
		return false
	}
	r.questionNumber = msg.QuestionNumber
	r.mode = msg.Mode
	r.background = msg.Background

	for _, s := range r.students {
		s.State.Reset()
		s.State.SetBackground(resolveBackground(msg.Background))
		s.Overlay.ApplyReplace(nil)
		s.Reviewed = false
		s.Synced = false
	}
	r.metrics.IncrementCounter("session.next_question", 1)
	return true
}

// SetBackground applies a set_background event. A targeted event touches
// one student only and does not change the session-wide background; an
// untargeted one becomes the background for everyone, current and future.
func (r *Registry) SetBackground(msg *wire.SetBackground) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved := resolveBackground(&msg.BackgroundSpec)

	if msg.Target != "" {
		if s, ok := r.students[msg.Target]; ok {
			s.State.SetBackground(resolved)
		}
		return
	}
	spec := msg.BackgroundSpec
	r.background = &spec
	for _, s := range r.students {
		s.State.SetBackground(resolved)
	}
}

// ApplyCanvas installs a full canvas push into the student's mirrored
// state and marks the student reviewed and synced.
func (r *Registry) ApplyCanvas(msg *wire.StudentCanvas) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[msg.Username]
	if !ok {
		return false
	}
	s.State.ReplacePaths(geometry.DeserializePaths(msg.CanvasState.Paths, r.params.CanvasWidth, r.params.CanvasHeight))
	if msg.CanvasState.BackgroundImage != "" || msg.CanvasState.BackgroundVector != nil {
		s.State.SetBackground(drawing.Background{
			ImageData: msg.CanvasState.BackgroundImage,
			Vector:    msg.CanvasState.BackgroundVector,
		})
	}
	s.Reviewed = true
	s.Synced = true
	s.LastSeen = r.now()
	return true
}

// MarkReviewed sets the reviewed flag, used when the teacher annotates a
// student the student has not drawn on yet.
func (r *Registry) MarkReviewed(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.students[username]; ok {
		s.Reviewed = true
	}
}

// MarkAllUnsynced clears every synced flag; the watchdog loop calls this
// before re-requesting canvases.
func (r *Registry) MarkAllUnsynced() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []string
	for username, s := range r.students {
		if !s.Synced {
			stale = append(stale, username)
		}
		s.Synced = false
	}
	return stale
}

// Snapshot assembles the aggregate state a catching-up client needs.
func (r *Registry) Snapshot(lastSequence int64) wire.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return wire.Snapshot{
		SessionCode:    r.sessionCode,
		QuestionNumber: r.questionNumber,
		Mode:           r.mode,
		Background:     r.background,
		Sequence:       lastSequence,
	}
}

// resolveBackground converts a wire background spec into the drawing
// layer's representation, resolving preset IDs to their shared templates.
func resolveBackground(spec *wire.BackgroundSpec) drawing.Background {
	if spec == nil {
		return drawing.Background{}
	}
	b := drawing.Background{ImageData: spec.ImageData, Vector: spec.Vector}
	if b.Vector == nil && spec.PresetID != "" {
		if tpl, ok := drawing.PresetTemplate(spec.PresetID); ok {
			b.Vector = tpl
		}
	}
	return b
}
