// Package export renders a mirrored canvas into a vector PDF, so a
// teacher can keep a student's work after the session ends.
package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/classboard/classboard/pkg/drawing"
	"github.com/classboard/classboard/pkg/geometry"
	"github.com/classboard/classboard/pkg/observability"
)

// PDFExporter turns draw ops into PDF pages. One exporter is reusable
// across students.
type PDFExporter struct {
	render geometry.RenderParams
	loader *drawing.ImageLoader
	logger observability.Logger
}

// NewPDFExporter creates an exporter using the given pressure-width
// tuning, matching what was on screen.
func NewPDFExporter(render geometry.RenderParams, logger observability.Logger) *PDFExporter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PDFExporter{
		render: render,
		loader: drawing.NewImageLoader(0, logger),
		logger: logger,
	}
}

// Export writes one student's canvas as a single-page PDF: background
// first, then the student's strokes, then the annotation overlay.
// Eraser marks subtract on screen but have no PDF equivalent, so their
// ops are skipped; erased paths are already gone from the state.
func (e *PDFExporter) Export(w io.Writer, title string, state *drawing.State, overlay []*geometry.Path) error {
	params := state.Params()
	width, height := params.CanvasWidth, params.CanvasHeight

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetTitle(title, true)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	e.drawBackground(pdf, state.Background(), width, height)

	ops := state.Render(e.render)
	for _, p := range overlay {
		ops = append(ops, geometry.Render(p, e.render)...)
	}
	for _, op := range ops {
		e.drawOp(pdf, op)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func (e *PDFExporter) drawOp(pdf *gofpdf.Fpdf, op geometry.DrawOp) {
	if op.Composite == geometry.CompositeDestinationOut {
		return
	}
	r, g, b := parseHexColor(op.Color)
	alpha := op.Opacity
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	pdf.SetAlpha(alpha, "Normal")

	switch op.Type {
	case geometry.OpDot:
		pdf.SetFillColor(r, g, b)
		pdf.Circle(op.X, op.Y, op.Radius, "F")
	case geometry.OpQuadratic:
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(op.Width)
		pdf.Curve(op.StartX, op.StartY, op.ControlX, op.ControlY, op.EndX, op.EndY, "D")
	case geometry.OpLine:
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(op.Width)
		pdf.Line(op.StartX, op.StartY, op.EndX, op.EndY)
	}
	pdf.SetAlpha(1, "Normal")
}

func (e *PDFExporter) drawBackground(pdf *gofpdf.Fpdf, bg drawing.Background, width, height float64) {
	if bg.Vector != nil {
		for _, el := range bg.Vector.Elements {
			e.drawVectorElement(pdf, el)
		}
	}
	if bg.ImageData == "" {
		return
	}
	resolved := bg.Image
	if resolved == nil {
		resolved = e.loader.Resolve(bg.ImageData)
	}
	if resolved.State != drawing.BackgroundLoaded {
		return
	}
	raw, format, err := dataURLImage(bg.ImageData)
	if err != nil {
		e.logger.Warn("Background not embeddable", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	x, y, w, h := drawing.AspectFit(width, height, float64(resolved.Width), float64(resolved.Height))
	name := "bg"
	pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: format}, bytes.NewReader(raw))
	pdf.ImageOptions(name, x, y, w, h, false, gofpdf.ImageOptions{ImageType: format}, 0, "")
}

func (e *PDFExporter) drawVectorElement(pdf *gofpdf.Fpdf, el drawing.VectorElement) {
	r, g, b := parseHexColor(el.Color)
	alpha := el.Opacity
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	pdf.SetAlpha(alpha, "Normal")
	pdf.SetDrawColor(r, g, b)
	width := el.Width
	if width <= 0 {
		width = 1
	}
	pdf.SetLineWidth(width)

	switch el.Type {
	case drawing.VectorLine:
		pdf.Line(el.X1, el.Y1, el.X2, el.Y2)
	case drawing.VectorArrow:
		pdf.Line(el.X1, el.Y1, el.X2, el.Y2)
		drawArrowHead(pdf, el)
	case drawing.VectorRect:
		style := "D"
		if el.Fill != "" {
			fr, fg, fb := parseHexColor(el.Fill)
			pdf.SetFillColor(fr, fg, fb)
			style = "FD"
		}
		pdf.Rect(el.X, el.Y, el.W, el.H, style)
	}
	pdf.SetAlpha(1, "Normal")
}

func drawArrowHead(pdf *gofpdf.Fpdf, el drawing.VectorElement) {
	head := el.HeadSize
	if head <= 0 {
		head = 8
	}
	dx, dy := el.X2-el.X1, el.Y2-el.Y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	// unit vector along the shaft, flared 30 degrees to each side
	ux, uy := dx/length, dy/length
	const cos, sin = 0.866, 0.5
	pdf.Line(el.X2, el.Y2, el.X2-head*(ux*cos-uy*sin), el.Y2-head*(uy*cos+ux*sin))
	pdf.Line(el.X2, el.Y2, el.X2-head*(ux*cos+uy*sin), el.Y2-head*(uy*cos-ux*sin))
}

func dataURLImage(data string) ([]byte, string, error) {
	const marker = ";base64,"
	idx := strings.Index(data, marker)
	if !strings.HasPrefix(data, "data:image/") || idx < 0 {
		return nil, "", fmt.Errorf("not an image data URL")
	}
	format := strings.ToUpper(strings.TrimPrefix(data[:idx], "data:image/"))
	if format == "JPEG" {
		format = "JPG"
	}
	raw, err := base64.StdEncoding.DecodeString(data[idx+len(marker):])
	if err != nil {
		return nil, "", err
	}
	return raw, format, nil
}

func parseHexColor(s string) (int, int, int) {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 3:
		r := hexNibble(s[0])
		g := hexNibble(s[1])
		b := hexNibble(s[2])
		return r*16 + r, g*16 + g, b*16 + b
	case 6:
		return hexNibble(s[0])*16 + hexNibble(s[1]),
			hexNibble(s[2])*16 + hexNibble(s[3]),
			hexNibble(s[4])*16 + hexNibble(s[5])
	default:
		return 0, 0, 0
	}
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}
