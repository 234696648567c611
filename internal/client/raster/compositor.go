package raster

import (
	"math"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/gogpu/gg"
)

type style struct {
	background gg.RGBA
}

// compositor draws one tool's segments.
type compositor interface {
	apply(ctx *gg.Context, seg domain.StrokeSegment, st style) error
}

var compositors = map[domain.Tool]compositor{
	domain.ToolBrush:  brush{},
	domain.ToolEraser: eraser{},
	domain.ToolGlow:   glow{},
	domain.ToolStamp:  stamp{},
}

func compositorFor(t domain.Tool) (compositor, bool) {
	c, ok := compositors[t]
	return c, ok
}

// polyline strokes the points with round caps, or fills a dot for a single
// point so a tap leaves a mark of the stroke's width.
func polyline(ctx *gg.Context, pts []domain.Point, width float64) error {
	ctx.SetLineWidth(width)
	ctx.SetLineCap(gg.LineCapRound)
	ctx.SetLineJoin(gg.LineJoinRound)
	if len(pts) == 1 {
		ctx.DrawCircle(pts[0].X, pts[0].Y, width/2)
		return ctx.Fill()
	}
	ctx.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		ctx.LineTo(p.X, p.Y)
	}
	return ctx.Stroke()
}

type brush struct{}

func (brush) apply(ctx *gg.Context, seg domain.StrokeSegment, _ style) error {
	c := gg.Hex(seg.Color)
	ctx.SetRGBA(c.R, c.G, c.B, seg.Opacity)
	return polyline(ctx, seg.Points, seg.Width)
}

// eraser repaints the background at twice the width.
type eraser struct{}

func (eraser) apply(ctx *gg.Context, seg domain.StrokeSegment, st style) error {
	bg := st.background
	ctx.SetRGBA(bg.R, bg.G, bg.B, 1)
	return polyline(ctx, seg.Points, seg.Width*2)
}

const glowPasses = 3

// glow lays translucent halos, brighter with pressure, under a solid core.
type glow struct{}

func (glow) apply(ctx *gg.Context, seg domain.StrokeSegment, _ style) error {
	c := gg.Hex(seg.Color)
	intensity := meanPressure(seg.Points)
	for i := glowPasses; i >= 1; i-- {
		alpha := seg.Opacity * intensity * 0.12 * float64(glowPasses-i+1)
		ctx.SetRGBA(c.R, c.G, c.B, alpha)
		if err := polyline(ctx, seg.Points, seg.Width*(1+0.8*float64(i))); err != nil {
			return err
		}
	}
	ctx.SetRGBA(c.R, c.G, c.B, seg.Opacity)
	return polyline(ctx, seg.Points, seg.Width)
}

// stamp places a five-pointed star at every point.
type stamp struct{}

func (stamp) apply(ctx *gg.Context, seg domain.StrokeSegment, _ style) error {
	c := gg.Hex(seg.Color)
	ctx.SetRGBA(c.R, c.G, c.B, seg.Opacity)
	for _, p := range seg.Points {
		r := seg.Width / 2 * (0.5 + 0.5*pressureOr1(p.Pressure))
		star(ctx, p.X, p.Y, r)
		if err := ctx.Fill(); err != nil {
			return err
		}
	}
	return nil
}

func star(ctx *gg.Context, cx, cy, r float64) {
	inner := r * 0.45
	for i := 0; i < 10; i++ {
		rad := r
		if i%2 == 1 {
			rad = inner
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		x, y := cx+rad*math.Cos(a), cy+rad*math.Sin(a)
		if i == 0 {
			ctx.MoveTo(x, y)
		} else {
			ctx.LineTo(x, y)
		}
	}
	ctx.ClosePath()
}

func pressureOr1(p float64) float64 {
	if p <= 0 || p > 1 {
		return 1
	}
	return p
}

func meanPressure(pts []domain.Point) float64 {
	var sum float64
	for _, p := range pts {
		sum += pressureOr1(p.Pressure)
	}
	return sum / float64(len(pts))
}
