// Package annotation implements the teacher's live-markup channel over a
// student's mirrored canvas: watermark tracking, minimal delta
// computation, delta application on the receiving side, and the batching
// timer that bounds continuous-drawing bandwidth.
package annotation

import (
	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
)

type watermark struct {
	index      int
	pointCount int
}

// StreamState tracks what the remote peer is known to have, per path ID,
// so each local mutation sends only the minimal delta. One StreamState
// exists per attached (teacher, student) pairing, on the sending side.
type StreamState struct {
	order  []string
	paths  map[string]watermark
	width  float64
	height float64
}

// NewStreamState creates an empty watermark for a sender whose canvas has
// the given dimensions.
func NewStreamState(canvasWidth, canvasHeight float64) *StreamState {
	return &StreamState{
		paths:  make(map[string]watermark),
		width:  canvasWidth,
		height: canvasHeight,
	}
}

// ComputeDelta diffs the current annotation list against the watermark
// and advances the watermark to match. needReplace is true when the
// change is not representable as a delta (a known path shrank, which
// indicates desync); the caller must send a full replace via Replace
// instead, and no ops are returned.
//
// A wipe of a non-empty set comes back as the single clear op rather than
// one remove_path per path.
func (s *StreamState) ComputeDelta(current []*geometry.Path) (*wire.AnnotationDelta, bool) {
	currentByID := make(map[string]*geometry.Path, len(current))
	for _, p := range current {
		currentByID[p.EnsureID()] = p
	}

	// desync check first: shrinking point counts abort the whole delta
	for id, wm := range s.paths {
		if p, ok := currentByID[id]; ok && len(p.Points) < wm.pointCount {
			return nil, true
		}
	}

	if len(current) == 0 && len(s.paths) > 0 {
		s.reset()
		return &wire.AnnotationDelta{Ops: []wire.DeltaOp{{Type: wire.DeltaClear}}}, false
	}

	var ops []wire.DeltaOp

	// removals, by reverse watermark order so indices stay meaningful
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if _, ok := currentByID[id]; ok {
			continue
		}
		ops = append(ops, wire.DeltaOp{Type: wire.DeltaRemovePath, ID: id, Index: s.paths[id].index})
	}

	// additions and growth, in z-order
	for i, p := range current {
		id := p.EnsureID()
		wm, known := s.paths[id]
		switch {
		case !known:
			wp := geometry.Serialize(p, s.width, s.height)
			ops = append(ops, wire.DeltaOp{Type: wire.DeltaAddPath, Index: i, Path: &wp})
		case len(p.Points) > wm.pointCount:
			suffix := geometry.SerializePoints(p.Points[wm.pointCount:], s.width, s.height)
			ops = append(ops, wire.DeltaOp{Type: wire.DeltaAppendPoints, ID: id, Points: suffix})
		}
	}

	s.rebuild(current)
	if len(ops) == 0 {
		return nil, false
	}
	return &wire.AnnotationDelta{Ops: ops}, false
}

// Replace serializes the full annotation set and resets the watermark to
// it. Used on attach and as the desync fallback; this is the only path
// that sends complete state.
func (s *StreamState) Replace(current []*geometry.Path) []geometry.WirePath {
	s.rebuild(current)
	return geometry.SerializePaths(current, s.width, s.height)
}

// Known returns the number of paths the remote is believed to hold.
func (s *StreamState) Known() int { return len(s.paths) }

func (s *StreamState) reset() {
	s.order = nil
	s.paths = make(map[string]watermark)
}

func (s *StreamState) rebuild(current []*geometry.Path) {
	s.reset()
	for i, p := range current {
		id := p.EnsureID()
		s.order = append(s.order, id)
		s.paths[id] = watermark{index: i, pointCount: len(p.Points)}
	}
}
