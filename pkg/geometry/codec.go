package geometry

import (
	"math"
)

// Wire quantization: 4 decimal digits for fractional positions, 3 for
// pressure, bounding payload size without visible precision loss.
const (
	positionDigits = 4
	pressureDigits = 3
)

// WirePath is the normalized transfer form of a Path. Coordinates are
// fractions of the sender's canvas in [0,1]x[0,1] so the receiver's canvas
// pixel dimensions need not match. Width stays in base canvas units;
// receivers scale their drawing context, as the mirrored views do.
type WirePath struct {
	ID        string        `json:"id"`
	Color     string        `json:"color"`
	Width     float64       `json:"width"`
	Erase     bool          `json:"erase,omitempty"`
	Opacity   float64       `json:"opacity"`
	Composite CompositeMode `json:"composite"`
	Points    [][3]float64  `json:"points"`
}

// Serialize normalizes a path against the sender's canvas dimensions.
// It assigns the path its stable ID if it does not have one yet.
func Serialize(p *Path, canvasWidth, canvasHeight float64) WirePath {
	wp := WirePath{
		ID:        p.EnsureID(),
		Color:     p.Color,
		Width:     p.Width,
		Erase:     p.Erase,
		Opacity:   p.Opacity,
		Composite: p.Composite,
		Points:    make([][3]float64, 0, len(p.Points)),
	}
	if wp.Composite == "" {
		wp.Composite = CompositeSourceOver
	}
	for _, pt := range p.Points {
		wp.Points = append(wp.Points, [3]float64{
			quantize(pt.X/canvasWidth, positionDigits),
			quantize(pt.Y/canvasHeight, positionDigits),
			quantize(ClampPressure(pt.Pressure), pressureDigits),
		})
	}
	return wp
}

// SerializePaths normalizes a slice of paths.
func SerializePaths(paths []*Path, canvasWidth, canvasHeight float64) []WirePath {
	out := make([]WirePath, 0, len(paths))
	for _, p := range paths {
		out = append(out, Serialize(p, canvasWidth, canvasHeight))
	}
	return out
}

// Deserialize denormalizes a wire path into the receiver's canvas space.
func Deserialize(wp WirePath, targetWidth, targetHeight float64) *Path {
	p := &Path{
		ID:        wp.ID,
		Color:     wp.Color,
		Width:     wp.Width,
		Erase:     wp.Erase,
		Opacity:   wp.Opacity,
		Composite: wp.Composite,
		Points:    make([]Point, 0, len(wp.Points)),
	}
	if p.Composite == "" {
		p.Composite = CompositeSourceOver
	}
	if p.Opacity <= 0 || p.Opacity > 1 {
		p.Opacity = 1
	}
	for _, triple := range wp.Points {
		p.Points = append(p.Points, Point{
			X:        triple[0] * targetWidth,
			Y:        triple[1] * targetHeight,
			Pressure: ClampPressure(triple[2]),
		})
	}
	return p
}

// DeserializePaths denormalizes a slice of wire paths.
func DeserializePaths(wirePaths []WirePath, targetWidth, targetHeight float64) []*Path {
	out := make([]*Path, 0, len(wirePaths))
	for _, wp := range wirePaths {
		out = append(out, Deserialize(wp, targetWidth, targetHeight))
	}
	return out
}

// SerializePoints normalizes a bare point run, used by delta messages
// that carry only the new suffix of a growing path.
func SerializePoints(points []Point, canvasWidth, canvasHeight float64) [][3]float64 {
	out := make([][3]float64, 0, len(points))
	for _, pt := range points {
		out = append(out, [3]float64{
			quantize(pt.X/canvasWidth, positionDigits),
			quantize(pt.Y/canvasHeight, positionDigits),
			quantize(ClampPressure(pt.Pressure), pressureDigits),
		})
	}
	return out
}

// DeserializePoints denormalizes a bare point run.
func DeserializePoints(triples [][3]float64, targetWidth, targetHeight float64) []Point {
	out := make([]Point, 0, len(triples))
	for _, triple := range triples {
		out = append(out, Point{
			X:        triple[0] * targetWidth,
			Y:        triple[1] * targetHeight,
			Pressure: ClampPressure(triple[2]),
		})
	}
	return out
}

func quantize(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
