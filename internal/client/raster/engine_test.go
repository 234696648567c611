package raster

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/dkeye/Inkroom/internal/domain"
)

func newEngine(t *testing.T, w, h int) *Engine {
	t.Helper()
	e, err := New(w, h)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func line(tool domain.Tool, color string, width float64, pts ...domain.Point) domain.StrokeSegment {
	return domain.StrokeSegment{Tool: tool, Color: color, Width: width, Opacity: 1, Points: pts}
}

func pt(x, y float64) domain.Point { return domain.Point{X: x, Y: y, Pressure: 1} }

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -8 && d <= 8
}

func assertPixel(t *testing.T, e *Engine, x, y int, want color.RGBA) {
	t.Helper()
	got := e.Composite().RGBAAt(x, y)
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Fatalf("pixel (%d,%d) = %v, want ~%v", x, y, got, want)
	}
}

var (
	white  = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	orange = color.RGBA{0xFF, 0x6B, 0x00, 0xFF}
)

func TestNewInvalidSize(t *testing.T) {
	for _, sz := range [][2]int{{0, 10}, {10, -1}, {MaxDimension + 1, 10}} {
		if _, err := New(sz[0], sz[1]); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("New(%d,%d) err = %v", sz[0], sz[1], err)
		}
	}
}

func TestBlankIsBackground(t *testing.T) {
	e := newEngine(t, 32, 32)
	assertPixel(t, e, 0, 0, white)
	assertPixel(t, e, 31, 31, white)
}

func TestBrushAndEraser(t *testing.T) {
	e := newEngine(t, 100, 100)
	if err := e.Apply(line(domain.ToolBrush, "#FF6B00", 8, pt(10, 50), pt(50, 50), pt(90, 50))); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, e, 50, 50, orange)
	assertPixel(t, e, 50, 10, white)

	if err := e.Apply(line(domain.ToolEraser, "#000000", 8, pt(50, 30), pt(50, 70))); err != nil {
		t.Fatal(err)
	}
	// Erased at twice the width: 16px wide across x=50.
	assertPixel(t, e, 50, 50, white)
	assertPixel(t, e, 44, 50, white)
	assertPixel(t, e, 30, 50, orange)
}

func TestSinglePointDot(t *testing.T) {
	e := newEngine(t, 40, 40)
	if err := e.Apply(line(domain.ToolBrush, "#FF6B00", 10, pt(20, 20))); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, e, 20, 20, orange)
	assertPixel(t, e, 20, 32, white)
}

func TestGlowAndStampDraw(t *testing.T) {
	tests := []domain.Tool{domain.ToolGlow, domain.ToolStamp}
	for _, tool := range tests {
		t.Run(tool.String(), func(t *testing.T) {
			e := newEngine(t, 60, 60)
			before := e.Snapshot()
			if err := e.Apply(line(tool, "#FF6B00", 16, pt(30, 30))); err != nil {
				t.Fatal(err)
			}
			if e.Snapshot().Equal(before) {
				t.Fatal("tool left no mark")
			}
			assertPixel(t, e, 30, 30, orange)
		})
	}
}

func TestApplyRejectsUnknownTool(t *testing.T) {
	e := newEngine(t, 10, 10)
	if err := e.Apply(line(domain.Tool(99), "#000000", 2, pt(1, 1))); !errors.Is(err, ErrApply) {
		t.Fatalf("err = %v, want ErrApply", err)
	}
}

func TestSnapshotRestoreBitExact(t *testing.T) {
	e := newEngine(t, 64, 48)
	if err := e.AddLayer("ink"); err != nil {
		t.Fatal(err)
	}
	e.Apply(line(domain.ToolBrush, "#123456", 5, pt(3, 3), pt(60, 40)))
	seg := line(domain.ToolGlow, "#ABCDEF", 7, pt(10, 40), pt(40, 10))
	seg.Opacity = 0.5
	seg.LayerID = "ink"
	e.Apply(seg)
	e.SetWatermark(7)

	snap := e.Snapshot()
	e.Apply(line(domain.ToolBrush, "#000000", 20, pt(0, 0), pt(64, 48)))
	e.Clear()
	if err := e.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if !e.Snapshot().Equal(snap) {
		t.Fatal("restore is not bit exact")
	}
	if e.Watermark() != 7 {
		t.Fatalf("watermark = %d", e.Watermark())
	}
}

func TestRestoreRejectsBadSnapshot(t *testing.T) {
	e := newEngine(t, 8, 8)
	bad := domain.CanvasSnapshot{Width: 8, Height: 8, Layers: []domain.LayerPixels{{LayerID: DefaultLayerID, Pix: make([]byte, 3)}}}
	if err := e.Restore(bad); !errors.Is(err, ErrSnapshotFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestResizePreservesPixels(t *testing.T) {
	e := newEngine(t, 50, 50)
	e.Apply(line(domain.ToolBrush, "#FF6B00", 6, pt(5, 25), pt(45, 25)))

	if err := e.Resize(100, 80); err != nil {
		t.Fatal(err)
	}
	if w, h := e.Size(); w != 100 || h != 80 {
		t.Fatalf("size = %dx%d", w, h)
	}
	assertPixel(t, e, 25, 25, orange)
	assertPixel(t, e, 90, 70, white)

	if err := e.Resize(20, 20); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, e, 10, 19, white)
	if err := e.Resize(0, 20); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("err = %v", err)
	}
	if w, h := e.Size(); w != 20 || h != 20 {
		t.Fatal("failed resize changed the size")
	}
}

func TestCopyRegionRejectsShortBuffer(t *testing.T) {
	e := newEngine(t, 4, 4)
	if err := copyRegion(e.layers[0].ctx.ResizeTarget(), make([]byte, 5), 4, 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestLayers(t *testing.T) {
	e := newEngine(t, 30, 30)
	if err := e.AddLayer("top"); err != nil {
		t.Fatal(err)
	}
	if err := e.AddLayer("top"); !errors.Is(err, ErrLayerExists) {
		t.Fatalf("duplicate err = %v", err)
	}
	seg := line(domain.ToolBrush, "#FF6B00", 10, pt(15, 15))
	seg.LayerID = "top"
	e.Apply(seg)
	assertPixel(t, e, 15, 15, orange)

	if err := e.SetLayerVisible("top", false); err != nil {
		t.Fatal(err)
	}
	assertPixel(t, e, 15, 15, white)

	// Unknown layers fall back to the base layer.
	seg.LayerID = "elsewhere"
	e.Apply(seg)
	assertPixel(t, e, 15, 15, orange)

	if err := e.RemoveLayer(DefaultLayerID); !errors.Is(err, ErrBaseLayer) {
		t.Fatalf("remove base err = %v", err)
	}
	e.AddLayer("mid")
	if err := e.SetLayerOrder([]string{"mid", "top"}); err != nil {
		t.Fatal(err)
	}
	if ids := e.LayerIDs(); ids[1] != "mid" || ids[2] != "top" {
		t.Fatalf("order = %v", ids)
	}
	if err := e.SetLayerOrder([]string{"top"}); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("partial order err = %v", err)
	}
	if err := e.RemoveLayer("top"); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveLayer("top"); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestEncodePNG(t *testing.T) {
	e := newEngine(t, 12, 9)
	var buf bytes.Buffer
	if err := e.EncodePNG(&buf); err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 12 || cfg.Height != 9 {
		t.Fatalf("png size = %dx%d", cfg.Width, cfg.Height)
	}
}
