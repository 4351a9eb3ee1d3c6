package drawing

import (
	"sync"

	"github.com/classboard/classboard/pkg/geometry"
)

// Params collects the tunables of the state machine. The eraser values are
// empirically tuned, so they are parameters rather than literals.
type Params struct {
	CanvasWidth  float64
	CanvasHeight float64
	EraserPad    float64 // extra hit-test padding around a stroke
	EraserStep   float64 // max distance between interpolated eraser probes
}

// DefaultParams returns the base 800x600 canvas used by the original
// clients.
func DefaultParams() Params {
	return Params{
		CanvasWidth:  800,
		CanvasHeight: 600,
		EraserPad:    5,
		EraserStep:   4,
	}
}

// State is one drawing surface: the student's own canvas, the teacher's
// mirror of it, or a teacher annotation overlay. All mutation happens
// through event callbacks of a single owner; the mutex only protects the
// read-mostly mirror case.
type State struct {
	mu     sync.Mutex
	params Params

	paths   []*geometry.Path
	history []Action
	redo    []Action

	background Background

	// in-progress stroke
	current *geometry.Path

	// in-progress erase gesture
	erasing      bool
	eraseEntries []EraseEntry
	eraseX       float64
	eraseY       float64
}

// NewState creates an empty drawing surface.
func NewState(params Params) *State {
	return &State{params: params}
}

// Params returns the state's tunables.
func (s *State) Params() Params { return s.params }

// Paths returns the committed paths in z-order. The slice is a copy; the
// paths themselves are shared and must be treated as immutable.
func (s *State) Paths() []*geometry.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*geometry.Path, len(s.paths))
	copy(out, s.paths)
	return out
}

// CurrentStroke returns the in-progress stroke, or nil.
func (s *State) CurrentStroke() *geometry.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// BeginStroke starts a new stroke at the given point. An already-open
// stroke is discarded first; pointer-down without a matching pointer-up
// means the previous gesture was cancelled by the platform.
func (s *State) BeginStroke(color string, width float64, erase bool, x, y, pressure float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = geometry.NewPath(color, width, erase)
	s.current.AppendPoint(x, y, pressure)
}

// ExtendStroke appends a point to the in-progress stroke. It is a no-op
// when no stroke is open.
func (s *State) ExtendStroke(x, y, pressure float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	s.current.AppendPoint(x, y, pressure)
}

// EndStroke commits the in-progress stroke: it is appended to the path
// list and recorded as a Draw action, clearing the redo stack. A stroke
// that captured no points is discarded, never committed.
func (s *State) EndStroke() *geometry.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	committed := s.current
	s.current = nil
	if committed == nil || len(committed.Points) == 0 {
		return nil
	}
	action := DrawAction{Path: committed, Index: len(s.paths)}
	s.paths = Apply(s.paths, action)
	s.push(action)
	return committed
}

// CancelStroke discards the in-progress stroke without committing.
func (s *State) CancelStroke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// BeginErase starts an eraser gesture at the given point.
func (s *State) BeginErase(x, y float64) []*geometry.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.erasing = true
	s.eraseEntries = nil
	s.eraseX, s.eraseY = x, y
	return s.eraseAtLocked(x, y)
}

// ContinueErase extends the gesture to a new pointer position, probing
// every interpolated sub-step so fast movement cannot skip thin strokes.
// It returns the paths removed by this call.
func (s *State) ContinueErase(x, y float64) []*geometry.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.erasing {
		return nil
	}
	var removed []*geometry.Path
	for _, probe := range geometry.InterpolateProbes(s.eraseX, s.eraseY, x, y, s.params.EraserStep) {
		removed = append(removed, s.eraseAtLocked(probe.X, probe.Y)...)
	}
	s.eraseX, s.eraseY = x, y
	return removed
}

// EndErase finalizes the gesture. All removals accumulate into a single
// Erase action, so the whole drag undoes as one step. An eraser gesture is
// finalized, not cancelled, on pointer-cancel: removals already happened.
func (s *State) EndErase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.erasing {
		return
	}
	s.erasing = false
	if len(s.eraseEntries) == 0 {
		return
	}
	s.push(EraseAction{Entries: s.eraseEntries})
	s.eraseEntries = nil
}

// eraseAtLocked removes the topmost path hit at (x, y), if any.
func (s *State) eraseAtLocked(x, y float64) []*geometry.Path {
	for i := len(s.paths) - 1; i >= 0; i-- {
		p := s.paths[i]
		if geometry.HitTest(p, x, y, s.params.EraserPad) {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			s.eraseEntries = append(s.eraseEntries, EraseEntry{Path: p, Index: i})
			return []*geometry.Path{p}
		}
	}
	return nil
}

// Clear wipes the canvas, snapshotting the removed paths for undo.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]*geometry.Path, len(s.paths))
	copy(snapshot, s.paths)
	action := ClearAction{Snapshot: snapshot}
	s.paths = Apply(s.paths, action)
	s.push(action)
}

// Undo reverts the most recent action. It is a silent no-op when the
// history is empty.
func (s *State) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return false
	}
	action := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.paths = Revert(s.paths, action)
	s.redo = append(s.redo, action)
	return true
}

// Redo re-applies the most recently undone action. It is a silent no-op
// when the redo stack is empty.
func (s *State) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.redo) == 0 {
		return false
	}
	action := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.paths = Apply(s.paths, action)
	s.history = append(s.history, action)
	return true
}

// CanUndo reports whether an undo step exists.
func (s *State) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) > 0
}

// CanRedo reports whether a redo step exists.
func (s *State) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// push records a new action; any fresh action invalidates the redo stack.
func (s *State) push(action Action) {
	s.history = append(s.history, action)
	s.redo = nil
}

// ReplacePaths swaps the full path list without touching history. The
// teacher's mirror uses this when a full canvas state arrives.
func (s *State) ReplacePaths(paths []*geometry.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = paths
}

// Background returns the current background.
func (s *State) Background() Background {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// SetBackground replaces the background.
func (s *State) SetBackground(b Background) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = b
}

// Reset returns the surface to its initial empty state: paths, history,
// redo stack, background, and any in-progress gesture are dropped. Used on
// next-question.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = nil
	s.history = nil
	s.redo = nil
	s.current = nil
	s.erasing = false
	s.eraseEntries = nil
	s.background = Background{}
}

// Render flattens the committed paths plus any in-progress stroke into
// draw operations. It is a pure function of the path list and the resolved
// background; callers decide what to do with a background that has not
// loaded yet.
func (s *State) Render(params geometry.RenderParams) []geometry.DrawOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []geometry.DrawOp
	for _, p := range s.paths {
		ops = append(ops, geometry.Render(p, params)...)
	}
	if s.current != nil {
		ops = append(ops, geometry.Render(s.current, params)...)
	}
	return ops
}
