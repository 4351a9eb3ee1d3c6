package annotation

import (
	"errors"
	"fmt"

	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/models/wire"
)

// ErrDesync is returned by ApplyDelta when an op references a path the
// overlay does not hold. The caller discards the delta and waits for the
// sender's next replace, which carries full state.
var ErrDesync = errors.New("annotation: delta references unknown path")

// Overlay is the receiving side of the protocol: the student's copy of
// the teacher's markup, composited over the student's own strokes at
// render time and never merged into them.
type Overlay struct {
	width  float64
	height float64
	paths  []*geometry.Path
	byID   map[string]*geometry.Path
}

// NewOverlay creates an empty overlay for a canvas of the given size.
func NewOverlay(canvasWidth, canvasHeight float64) *Overlay {
	return &Overlay{
		width:  canvasWidth,
		height: canvasHeight,
		byID:   make(map[string]*geometry.Path),
	}
}

// Paths returns the overlay's paths in z-order.
func (o *Overlay) Paths() []*geometry.Path {
	out := make([]*geometry.Path, len(o.paths))
	copy(out, o.paths)
	return out
}

// ApplyReplace swaps in the full annotation set.
func (o *Overlay) ApplyReplace(annotations []geometry.WirePath) {
	o.paths = geometry.DeserializePaths(annotations, o.width, o.height)
	o.byID = make(map[string]*geometry.Path, len(o.paths))
	for _, p := range o.paths {
		o.byID[p.ID] = p
	}
}

// ApplyDelta applies incremental ops in order. On the first op that
// cannot be applied it stops and returns ErrDesync; the overlay is then
// stale until the next replace, which is the designed recovery path.
func (o *Overlay) ApplyDelta(delta *wire.AnnotationDelta) error {
	if delta == nil {
		return nil
	}
	for _, op := range delta.Ops {
		if err := o.applyOp(op); err != nil {
			return err
		}
	}
	return nil
}

func (o *Overlay) applyOp(op wire.DeltaOp) error {
	switch op.Type {
	case wire.DeltaClear:
		o.paths = nil
		o.byID = make(map[string]*geometry.Path)

	case wire.DeltaAddPath:
		if op.Path == nil {
			return fmt.Errorf("annotation: add_path without path")
		}
		p := geometry.Deserialize(*op.Path, o.width, o.height)
		if _, exists := o.byID[p.ID]; exists {
			// duplicate delivery of the same add is idempotent
			return nil
		}
		idx := op.Index
		if idx < 0 || idx > len(o.paths) {
			idx = len(o.paths)
		}
		o.paths = append(o.paths, nil)
		copy(o.paths[idx+1:], o.paths[idx:])
		o.paths[idx] = p
		o.byID[p.ID] = p

	case wire.DeltaAppendPoints:
		p, ok := o.byID[op.ID]
		if !ok {
			return ErrDesync
		}
		p.Points = append(p.Points, geometry.DeserializePoints(op.Points, o.width, o.height)...)

	case wire.DeltaRemovePath:
		p, ok := o.byID[op.ID]
		if !ok {
			return ErrDesync
		}
		delete(o.byID, op.ID)
		for i, candidate := range o.paths {
			if candidate == p {
				o.paths = append(o.paths[:i], o.paths[i+1:]...)
				break
			}
		}

	default:
		return fmt.Errorf("annotation: unknown delta op %q", op.Type)
	}
	return nil
}
