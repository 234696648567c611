// Package input turns raw pointer samples into canvas-space stroke segments.
package input

import (
	"math"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type PointerType int

const (
	Mouse PointerType = iota
	Pen
	Touch
)

type Phase int

const (
	Down Phase = iota
	Move
	Up
	Cancel
	Leave
)

// Sample is one raw pointer report in screen coordinates.
type Sample struct {
	PointerID     int
	Type          PointerType
	Phase         Phase
	X, Y          float64
	Pressure      float64
	ContactWidth  float64
	ContactHeight float64
	Timestamp     int64
}

type EventKind int

const (
	EventSegment EventKind = iota
	EventCommit
	EventAbort
)

type Event struct {
	Kind    EventKind
	Segment domain.StrokeSegment
}

// Brush is the tool state new strokes are drawn with.
type Brush struct {
	Tool    domain.Tool
	Color   string
	Width   float64
	Opacity float64
	LayerID string
}

// View maps screen to canvas space. Zoom is never baked into points.
type View struct {
	Zoom       float64
	PanX, PanY float64
}

func (v View) ToCanvas(x, y float64) (float64, float64) {
	z := v.Zoom
	if z <= 0 {
		z = 1
	}
	return (x - v.PanX) / z, (y - v.PanY) / z
}

type Config struct {
	PressureEnabled bool
	// MinPressureFactor is the width fraction at zero pressure.
	MinPressureFactor float64
	// PalmThreshold is the contact size above which touches are palms.
	PalmThreshold float64
	// MinDelta drops moves closer than this to the last emitted point.
	MinDelta float64
}

func DefaultConfig() Config {
	return Config{
		PressureEnabled:   true,
		MinPressureFactor: 0.2,
		PalmThreshold:     30,
		MinDelta:          0.5,
	}
}

// Pipeline tracks at most one active stroke.
type Pipeline struct {
	cfg   Config
	brush Brush
	view  View

	active      bool
	stroke      Brush
	pointerID   int
	pointerType PointerType
	last        domain.Point
	lastWidth   float64
	emitted     int
	penDown     bool
}

func New(cfg Config, brush Brush) *Pipeline {
	return &Pipeline{cfg: cfg, brush: brush, view: View{Zoom: 1}}
}

// SetBrush takes effect from the next stroke.
func (p *Pipeline) SetBrush(b Brush) { p.brush = b }

func (p *Pipeline) Brush() Brush { return p.brush }

func (p *Pipeline) SetView(v View) { p.view = v }

func (p *Pipeline) Active() bool { return p.active }

// EffectiveWidth applies pressure scaling when the tool, the pointer and
// the config all allow it.
func (p *Pipeline) EffectiveWidth(pt PointerType, pressure float64) float64 {
	return p.width(p.brush, pt, pressure)
}

func (p *Pipeline) width(b Brush, pt PointerType, pressure float64) float64 {
	w := b.Width
	if !p.cfg.PressureEnabled || pt != Pen || !b.Tool.SupportsPressure() {
		return w
	}
	if pressure >= 1 {
		return w
	}
	pressure = math.Max(0, pressure)
	return w * (p.cfg.MinPressureFactor + pressure*(1-p.cfg.MinPressureFactor))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (p *Pipeline) isPalm(s Sample) bool {
	return p.penDown && s.Type == Touch &&
		s.ContactWidth > p.cfg.PalmThreshold && s.ContactHeight > p.cfg.PalmThreshold
}

// Handle consumes one sample and returns the events it produced.
func (p *Pipeline) Handle(s Sample) []Event {
	if !finite(s.X, s.Y, s.Pressure) {
		// Only the drawing pointer can break its own stroke.
		if !p.owns(s) {
			return nil
		}
		log.Debug().Str("module", "client.input").Int("pointer", s.PointerID).Msg("malformed sample, aborting stroke")
		return p.abort()
	}
	s.Pressure = min(max(s.Pressure, 0), 1)
	if s.Type == Pen {
		p.penDown = s.Phase == Down || s.Phase == Move
	}
	if p.isPalm(s) {
		return nil
	}

	switch s.Phase {
	case Down:
		return p.down(s)
	case Move:
		return p.move(s)
	case Up, Cancel, Leave:
		return p.end(s)
	}
	return nil
}

func (p *Pipeline) point(s Sample) domain.Point {
	x, y := p.view.ToCanvas(s.X, s.Y)
	return domain.Point{X: x, Y: y, Pressure: s.Pressure, Timestamp: s.Timestamp}
}

func (p *Pipeline) down(s Sample) []Event {
	var out []Event
	if p.active {
		if s.Type != Pen || p.pointerType == Pen {
			return nil
		}
		// A pen landing during a touch stroke wins; the touch was a palm.
		out = p.abort()
	}
	p.active = true
	p.stroke = p.brush
	p.pointerID = s.PointerID
	p.pointerType = s.Type
	p.last = p.point(s)
	p.lastWidth = p.width(p.stroke, s.Type, s.Pressure)
	p.emitted = 0
	return out
}

func (p *Pipeline) owns(s Sample) bool {
	return p.active && s.PointerID == p.pointerID && s.Type == p.pointerType
}

func (p *Pipeline) segment(pts []domain.Point, width float64) Event {
	return Event{Kind: EventSegment, Segment: domain.StrokeSegment{
		Tool:    p.stroke.Tool,
		Color:   p.stroke.Color,
		Width:   width,
		Opacity: p.stroke.Opacity,
		Points:  pts,
		LayerID: p.stroke.LayerID,
	}}
}

func (p *Pipeline) step(s Sample) []Event {
	cur := p.point(s)
	if math.Hypot(cur.X-p.last.X, cur.Y-p.last.Y) < p.cfg.MinDelta {
		return nil
	}
	w := p.width(p.stroke, s.Type, s.Pressure)
	ev := p.segment([]domain.Point{p.last, cur}, w)
	p.last = cur
	p.lastWidth = w
	p.emitted++
	return []Event{ev}
}

func (p *Pipeline) move(s Sample) []Event {
	if !p.owns(s) {
		return nil
	}
	return p.step(s)
}

// end closes the stroke. A stroke that never moved becomes a dot.
func (p *Pipeline) end(s Sample) []Event {
	if !p.owns(s) {
		return nil
	}
	var out []Event
	if s.Phase == Up {
		out = p.step(s)
	}
	if p.emitted == 0 {
		out = append(out, p.segment([]domain.Point{p.last}, p.lastWidth))
	}
	out = append(out, Event{Kind: EventCommit})
	p.reset()
	return out
}

func (p *Pipeline) abort() []Event {
	p.reset()
	return []Event{{Kind: EventAbort}}
}

func (p *Pipeline) reset() {
	p.active = false
	p.emitted = 0
	p.lastWidth = 0
	p.last = domain.Point{}
}

// Ergonomics are the layout defaults for a viewport width.
type Ergonomics struct {
	BrushWidth     float64
	CollapsePanels bool
}

const Breakpoint = 768

func Responsive(viewportWidth int) Ergonomics {
	if viewportWidth < Breakpoint {
		return Ergonomics{BrushWidth: 6, CollapsePanels: true}
	}
	return Ergonomics{BrushWidth: 4}
}
