// Package export writes finished canvases to PNG and PDF.
package export

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"

	"github.com/gogpu/gg"
	"github.com/jung-kurt/gofpdf"

	"github.com/dkeye/Inkroom/internal/domain"
)

var ErrEmpty = errors.New("nothing to export")

func PNG(w io.Writer, img image.Image) error {
	if img == nil {
		return ErrEmpty
	}
	return png.Encode(w, img)
}

// newPage builds a one-page document of width x height points.
func newPage(width, height float64, title string) *gofpdf.Fpdf {
	orientation := "P"
	if width > height {
		orientation = "L"
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("Inkroom", true)
	if title != "" {
		pdf.SetTitle(title, true)
	}
	pdf.AddPage()
	return pdf
}

// PDF embeds the flattened canvas as a single full-page image, one point
// per pixel.
func PDF(w io.Writer, img image.Image, title string) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmpty
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	b := img.Bounds()
	width, height := float64(b.Dx()), float64(b.Dy())
	pdf := newPage(width, height, title)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("canvas", opts, &buf)
	pdf.ImageOptions("canvas", 0, 0, width, height, false, opts, 0, "")
	return pdf.Output(w)
}

func rgb(hex string) (int, int, int) {
	c := gg.Hex(hex)
	return int(c.R*255 + 0.5), int(c.G*255 + 0.5), int(c.B*255 + 0.5)
}

// VectorPDF redraws a room log as PDF paths. Only events after the last
// clear are drawn; the eraser paints the background colour.
func VectorPDF(w io.Writer, events []domain.DrawEvent, width, height int, background, title string) error {
	if width <= 0 || height <= 0 {
		return ErrEmpty
	}
	start := 0
	for i, ev := range events {
		if ev.Kind == domain.EventClear {
			start = i + 1
		}
	}
	pdf := newPage(float64(width), float64(height), title)
	br, bg, bb := rgb(background)
	pdf.SetFillColor(br, bg, bb)
	pdf.Rect(0, 0, float64(width), float64(height), "F")
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for _, ev := range events[start:] {
		if ev.Kind != domain.EventDraw || ev.Segment == nil {
			continue
		}
		segment(pdf, *ev.Segment, background)
	}
	return pdf.Output(w)
}

func segment(pdf *gofpdf.Fpdf, seg domain.StrokeSegment, background string) {
	color, width, alpha := seg.Color, seg.Width, seg.Opacity
	switch seg.Tool {
	case domain.ToolEraser:
		color, width, alpha = background, seg.Width*2, 1
	case domain.ToolGlow:
		alpha *= 0.6
	}
	r, g, b := rgb(color)
	pdf.SetDrawColor(r, g, b)
	pdf.SetFillColor(r, g, b)
	pdf.SetLineWidth(width)
	pdf.SetAlpha(alpha, "Normal")
	defer pdf.SetAlpha(1, "Normal")

	pts := seg.Points
	if seg.Tool == domain.ToolStamp || len(pts) == 1 {
		for _, p := range pts {
			pdf.Circle(p.X, p.Y, width/2, "F")
		}
		return
	}
	for i := 1; i < len(pts); i++ {
		pdf.Line(pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y)
	}
}
