package drawing

// Vector templates are declarative, resolution-independent backgrounds
// (grids, axes) distinct from raster images. A template is immutable once
// constructed and shared by reference across every student selecting the
// same preset.

// Vector element kinds.
const (
	VectorLine  = "line"
	VectorArrow = "arrow"
	VectorRect  = "rect"
)

// VectorElement is one drawable of a template. The union is flat and
// tagged by Type so it serializes without custom codecs: line and arrow
// use X1/Y1/X2/Y2, rect uses X/Y/W/H.
type VectorElement struct {
	Type string `json:"type"`

	X1 float64 `json:"x1,omitempty"`
	Y1 float64 `json:"y1,omitempty"`
	X2 float64 `json:"x2,omitempty"`
	Y2 float64 `json:"y2,omitempty"`

	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	W float64 `json:"w,omitempty"`
	H float64 `json:"h,omitempty"`

	Color    string    `json:"color,omitempty"`
	Width    float64   `json:"width,omitempty"`
	Opacity  float64   `json:"opacity,omitempty"`
	Dash     []float64 `json:"dash,omitempty"`
	Fill     string    `json:"fill,omitempty"`
	HeadSize float64   `json:"headSize,omitempty"`
}

// VectorTemplate is a declarative background drawing.
type VectorTemplate struct {
	ID       string          `json:"id,omitempty"`
	Width    float64         `json:"width"`
	Height   float64         `json:"height"`
	Elements []VectorElement `json:"elements"`
}

// Preset IDs offered to the teacher.
const (
	PresetGrid      = "grid"
	PresetAxes      = "axes"
	PresetGridAxes  = "grid-axes"
	PresetRuledPage = "ruled"
)

var presets = map[string]*VectorTemplate{
	PresetGrid:      gridTemplate(800, 600, 40),
	PresetAxes:      axesTemplate(800, 600),
	PresetGridAxes:  merge(PresetGridAxes, gridTemplate(800, 600, 40), axesTemplate(800, 600)),
	PresetRuledPage: ruledTemplate(800, 600, 48),
}

// PresetTemplate returns the shared instance for a preset ID.
func PresetTemplate(id string) (*VectorTemplate, bool) {
	t, ok := presets[id]
	return t, ok
}

func gridTemplate(w, h, spacing float64) *VectorTemplate {
	t := &VectorTemplate{ID: PresetGrid, Width: w, Height: h}
	style := func(e VectorElement) VectorElement {
		e.Color = "#cbd5e1"
		e.Width = 1
		e.Opacity = 0.9
		return e
	}
	for x := spacing; x < w; x += spacing {
		t.Elements = append(t.Elements, style(VectorElement{Type: VectorLine, X1: x, Y1: 0, X2: x, Y2: h}))
	}
	for y := spacing; y < h; y += spacing {
		t.Elements = append(t.Elements, style(VectorElement{Type: VectorLine, X1: 0, Y1: y, X2: w, Y2: y}))
	}
	return t
}

func axesTemplate(w, h float64) *VectorTemplate {
	return &VectorTemplate{
		ID:     PresetAxes,
		Width:  w,
		Height: h,
		Elements: []VectorElement{
			{Type: VectorArrow, X1: 20, Y1: h / 2, X2: w - 20, Y2: h / 2, Color: "#475569", Width: 2, Opacity: 1, HeadSize: 10},
			{Type: VectorArrow, X1: w / 2, Y1: h - 20, X2: w / 2, Y2: 20, Color: "#475569", Width: 2, Opacity: 1, HeadSize: 10},
		},
	}
}

func ruledTemplate(w, h, spacing float64) *VectorTemplate {
	t := &VectorTemplate{ID: PresetRuledPage, Width: w, Height: h}
	for y := spacing; y < h; y += spacing {
		t.Elements = append(t.Elements, VectorElement{
			Type: VectorLine, X1: 24, Y1: y, X2: w - 24, Y2: y,
			Color: "#bfdbfe", Width: 1, Opacity: 1,
		})
	}
	t.Elements = append(t.Elements, VectorElement{
		Type: VectorLine, X1: 72, Y1: 0, X2: 72, Y2: h,
		Color: "#fecaca", Width: 1, Opacity: 1,
	})
	return t
}

func merge(id string, templates ...*VectorTemplate) *VectorTemplate {
	out := &VectorTemplate{ID: id}
	for _, t := range templates {
		if t.Width > out.Width {
			out.Width = t.Width
		}
		if t.Height > out.Height {
			out.Height = t.Height
		}
		out.Elements = append(out.Elements, t.Elements...)
	}
	return out
}
