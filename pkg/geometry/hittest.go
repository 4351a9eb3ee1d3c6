package geometry

import "math"

// HitTest reports whether a probe point touches the path: a bounding-box
// pre-check, then point-in-radius for a single-point path, otherwise
// point-to-segment distance against every consecutive pair. The threshold
// is half the stroke width plus extraPadding.
func HitTest(p *Path, x, y, extraPadding float64) bool {
	if p == nil || len(p.Points) == 0 {
		return false
	}

	threshold := p.Width/2 + extraPadding

	minX, minY, maxX, maxY, ok := p.Bounds(threshold)
	if !ok || x < minX || x > maxX || y < minY || y > maxY {
		return false
	}

	if len(p.Points) == 1 {
		pt := p.Points[0]
		return math.Hypot(x-pt.X, y-pt.Y) <= threshold
	}

	for i := 1; i < len(p.Points); i++ {
		a, b := p.Points[i-1], p.Points[i]
		if DistanceToSegment(x, y, a.X, a.Y, b.X, b.Y) <= threshold {
			return true
		}
	}
	return false
}

// DistanceToSegment returns the distance from (x, y) to the closed segment
// (x1, y1)-(x2, y2). A zero-length segment degenerates to point distance.
func DistanceToSegment(x, y, x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	lengthSq := dx*dx + dy*dy

	t := -1.0
	if lengthSq != 0 {
		t = ((x-x1)*dx + (y-y1)*dy) / lengthSq
	}

	var cx, cy float64
	switch {
	case t < 0:
		cx, cy = x1, y1
	case t > 1:
		cx, cy = x2, y2
	default:
		cx, cy = x1+t*dx, y1+t*dy
	}

	return math.Hypot(x-cx, y-cy)
}

// InterpolateProbes returns probe points stepping from (fromX, fromY) to
// (toX, toY) at most step apart, including the destination. Eraser drags
// test every interpolated sub-step so fast pointer movement cannot skip
// over thin strokes.
func InterpolateProbes(fromX, fromY, toX, toY, step float64) []Point {
	if step <= 0 {
		return []Point{{X: toX, Y: toY, Pressure: DefaultPressure}}
	}
	distance := math.Hypot(toX-fromX, toY-fromY)
	count := int(math.Ceil(distance / step))
	if count < 1 {
		count = 1
	}
	probes := make([]Point, 0, count)
	for i := 1; i <= count; i++ {
		fraction := float64(i) / float64(count)
		probes = append(probes, Point{
			X:        fromX + (toX-fromX)*fraction,
			Y:        fromY + (toY-fromY)*fraction,
			Pressure: DefaultPressure,
		})
	}
	return probes
}
