// Package geometry implements the freehand path model shared by the
// student and teacher clients: pressure-carrying point lists, quadratic
// smoothing into declarative draw operations, eraser hit-testing, and the
// normalized wire codec that decouples sender and receiver canvas sizes.
package geometry

import (
	"math"

	"github.com/google/uuid"
)

// Pressure bounds applied to every captured point.
const (
	MinPressure     = 0.05
	MaxPressure     = 1.0
	DefaultPressure = 0.5
)

// CompositeMode selects how a path combines with pixels beneath it.
type CompositeMode string

const (
	CompositeSourceOver     CompositeMode = "source-over"
	CompositeDestinationOut CompositeMode = "destination-out"
)

// Point is a single pressure-carrying sample in device pixel space.
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"p"`
}

// Path is one committed or in-progress freehand stroke. Points are
// append-only while the stroke is in progress; a committed path is
// immutable except for wholesale replacement or removal.
type Path struct {
	ID        string        `json:"id,omitempty"`
	Color     string        `json:"color"`
	Width     float64       `json:"width"`
	Erase     bool          `json:"erase,omitempty"`
	Opacity   float64       `json:"opacity"`
	Composite CompositeMode `json:"composite"`
	Points    []Point       `json:"points"`
}

// NewPath creates an empty stroke with the given pen attributes. Erase
// strokes render with a destination-out composite so they subtract from
// whatever sits beneath them.
func NewPath(color string, width float64, erase bool) *Path {
	composite := CompositeSourceOver
	if erase {
		composite = CompositeDestinationOut
	}
	return &Path{
		Color:     color,
		Width:     width,
		Erase:     erase,
		Opacity:   1.0,
		Composite: composite,
	}
}

// EnsureID assigns the path a stable identity on first need. The ID is the
// join key between the full-state and delta protocols and persists for the
// path's lifetime.
func (p *Path) EnsureID() string {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return p.ID
}

// AppendPoint clamps pressure into [MinPressure, MaxPressure] and appends.
// A single-point path is valid and renders as a dot.
func (p *Path) AppendPoint(x, y, pressure float64) {
	p.Points = append(p.Points, Point{X: x, Y: y, Pressure: ClampPressure(pressure)})
}

// Clone returns a deep copy of the path.
func (p *Path) Clone() *Path {
	dup := *p
	dup.Points = make([]Point, len(p.Points))
	copy(dup.Points, p.Points)
	return &dup
}

// ClonePaths deep-copies a slice of paths.
func ClonePaths(paths []*Path) []*Path {
	out := make([]*Path, len(paths))
	for i, p := range paths {
		out[i] = p.Clone()
	}
	return out
}

// Bounds returns the axis-aligned bounding box of the path's points,
// inflated by pad on every side. ok is false for an empty path.
func (p *Path) Bounds(pad float64) (minX, minY, maxX, maxY float64, ok bool) {
	if len(p.Points) == 0 {
		return 0, 0, 0, 0, false
	}
	minX, maxX = p.Points[0].X, p.Points[0].X
	minY, maxY = p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points[1:] {
		minX = math.Min(minX, pt.X)
		maxX = math.Max(maxX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxY = math.Max(maxY, pt.Y)
	}
	return minX - pad, minY - pad, maxX + pad, maxY + pad, true
}

// ClampPressure bounds a raw pressure reading.
func ClampPressure(pressure float64) float64 {
	return clamp(pressure, MinPressure, MaxPressure)
}

func clamp(v, min, max float64) float64 {
	return math.Min(max, math.Max(min, v))
}

func midpoint(a, b Point) (float64, float64) {
	return (a.X + b.X) / 2, (a.Y + b.Y) / 2
}
