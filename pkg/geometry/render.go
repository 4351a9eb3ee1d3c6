package geometry

import "math"

// OpType discriminates declarative draw operations.
type OpType string

const (
	OpDot       OpType = "dot"
	OpLine      OpType = "line"
	OpQuadratic OpType = "quadratic"
)

// DrawOp is a single declarative canvas operation. The field names mirror
// the draw_batch wire payload so in-progress fragments and full renders
// share one shape.
type DrawOp struct {
	Type      OpType        `json:"type"`
	X         float64       `json:"x,omitempty"`
	Y         float64       `json:"y,omitempty"`
	Radius    float64       `json:"radius,omitempty"`
	StartX    float64       `json:"startX,omitempty"`
	StartY    float64       `json:"startY,omitempty"`
	ControlX  float64       `json:"controlX,omitempty"`
	ControlY  float64       `json:"controlY,omitempty"`
	EndX      float64       `json:"endX,omitempty"`
	EndY      float64       `json:"endY,omitempty"`
	Width     float64       `json:"width,omitempty"`
	Color     string        `json:"color"`
	Composite CompositeMode `json:"composite,omitempty"`
	Opacity   float64       `json:"opacity,omitempty"`
}

// RenderParams holds the empirically tuned pressure-to-width mapping. The
// constants came out of manual tuning, so they are parameters rather than
// literals.
type RenderParams struct {
	PressureOffset  float64 // added to averaged pressure before scaling
	MinWidthScale   float64 // lower clamp as a fraction of base width
	MaxWidthScale   float64 // upper clamp as a fraction of base width
	MinSegmentWidth float64 // absolute floor in pixels
}

// DefaultRenderParams returns the tuning used by the original clients.
func DefaultRenderParams() RenderParams {
	return RenderParams{
		PressureOffset:  0.05,
		MinWidthScale:   0.35,
		MaxWidthScale:   1.6,
		MinSegmentWidth: 0.75,
	}
}

// SegmentWidth maps the two endpoint pressures of a segment to a stroke
// width, clamped into [MinWidthScale*base, MaxWidthScale*base].
func (rp RenderParams) SegmentWidth(pressureA, pressureB, base float64) float64 {
	if base <= 0 {
		base = 1.6
	}
	average := (pressureA + pressureB) / 2
	width := base * (average + rp.PressureOffset)
	min := math.Max(rp.MinSegmentWidth, base*rp.MinWidthScale)
	max := math.Max(min, base*rp.MaxWidthScale)
	return clamp(width, min, max)
}

// DotRadius maps a single point's pressure to a dot radius.
func (rp RenderParams) DotRadius(pressure, base float64) float64 {
	return clamp(base*(pressure+rp.PressureOffset), base*rp.MinWidthScale, base*rp.MaxWidthScale)
}

// Render flattens a path into draw operations: a filled dot for a
// degenerate single-point path, otherwise quadratic segments through
// successive midpoints (Catmull-Rom-like smoothing) with per-segment width
// from the endpoint pressures, finished with a cap dot.
func Render(p *Path, params RenderParams) []DrawOp {
	if p == nil || len(p.Points) == 0 {
		return nil
	}

	composite := p.Composite
	if composite == "" {
		composite = CompositeSourceOver
	}

	if len(p.Points) == 1 {
		pt := p.Points[0]
		return []DrawOp{{
			Type:      OpDot,
			X:         pt.X,
			Y:         pt.Y,
			Radius:    params.DotRadius(pt.Pressure, p.Width),
			Color:     p.Color,
			Composite: composite,
			Opacity:   p.Opacity,
		}}
	}

	ops := make([]DrawOp, 0, len(p.Points))
	startX, startY := p.Points[0].X, p.Points[0].Y
	previous := p.Points[0]

	for _, current := range p.Points[1:] {
		midX, midY := midpoint(previous, current)
		ops = append(ops, DrawOp{
			Type:      OpQuadratic,
			StartX:    startX,
			StartY:    startY,
			ControlX:  previous.X,
			ControlY:  previous.Y,
			EndX:      midX,
			EndY:      midY,
			Width:     params.SegmentWidth(previous.Pressure, current.Pressure, p.Width),
			Color:     p.Color,
			Composite: composite,
			Opacity:   p.Opacity,
		})
		startX, startY = midX, midY
		previous = current
	}

	// Cap the stroke so fast lifts do not leave a square end.
	last := p.Points[len(p.Points)-1]
	capWidth := params.SegmentWidth(last.Pressure, last.Pressure, p.Width)
	ops = append(ops, DrawOp{
		Type:      OpDot,
		X:         last.X,
		Y:         last.Y,
		Radius:    math.Max(p.Width/2, capWidth/2),
		Color:     p.Color,
		Composite: composite,
		Opacity:   p.Opacity,
	})

	return ops
}
