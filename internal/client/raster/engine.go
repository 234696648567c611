// Package raster renders stroke segments onto layered pixel surfaces.
// An Engine is not safe for concurrent use; the canvas serializes access.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"sort"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/gogpu/gg"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"
)

const (
	DefaultLayerID    = "base"
	DefaultBackground = "#FFFFFF"
	MaxDimension      = 8192
)

var (
	ErrInvalidSize    = errors.New("invalid canvas size")
	ErrUnknownLayer   = errors.New("unknown layer")
	ErrLayerExists    = errors.New("layer already exists")
	ErrBaseLayer      = errors.New("base layer cannot be removed")
	ErrApply          = errors.New("segment could not be applied")
	ErrSnapshotFormat = errors.New("snapshot does not match its size")
)

type surface struct {
	id      string
	visible bool
	ctx     *gg.Context
}

type Engine struct {
	width, height int
	background    gg.RGBA
	// layers are ordered bottom to top; layers[0] is the base layer.
	layers    []*surface
	watermark uint64
}

type Option func(*Engine)

// WithBackground sets the base layer colour, also used by the eraser.
func WithBackground(hex string) Option {
	return func(e *Engine) { e.background = gg.Hex(hex) }
}

func validSize(w, h int) bool {
	return w > 0 && h > 0 && w <= MaxDimension && h <= MaxDimension
}

func New(width, height int, opts ...Option) (*Engine, error) {
	if !validSize(width, height) {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	e := &Engine{width: width, height: height, background: gg.Hex(DefaultBackground)}
	for _, opt := range opts {
		opt(e)
	}
	e.layers = []*surface{e.newSurface(DefaultLayerID)}
	e.fillBlank(e.layers[0])
	return e, nil
}

func (e *Engine) newSurface(id string) *surface {
	return &surface{id: id, visible: true, ctx: gg.NewContext(e.width, e.height)}
}

func (e *Engine) isBase(s *surface) bool { return s == e.layers[0] }

// fillBlank paints the base layer with the background and clears others.
func (e *Engine) fillBlank(s *surface) {
	if e.isBase(s) {
		s.ctx.ClearWithColor(e.background)
		return
	}
	s.ctx.Clear()
}

func (e *Engine) Size() (int, int) { return e.width, e.height }

func (e *Engine) Watermark() uint64 { return e.watermark }

// SetWatermark records the last room sequence reflected in the pixels.
func (e *Engine) SetWatermark(seq uint64) { e.watermark = seq }

func (e *Engine) layer(id string) (*surface, bool) {
	for _, s := range e.layers {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

// target resolves the layer a segment draws on. Segments naming a layer
// this engine does not have land on the base layer.
func (e *Engine) target(id string) *surface {
	if id != "" {
		if s, ok := e.layer(id); ok {
			return s
		}
	}
	return e.layers[0]
}

// Apply renders one segment. It never panics into the caller.
func (e *Engine) Apply(seg domain.StrokeSegment) (err error) {
	comp, ok := compositorFor(seg.Tool)
	if !ok {
		return fmt.Errorf("%w: %v", ErrApply, domain.ErrInvalidTool)
	}
	if len(seg.Points) == 0 {
		return nil
	}
	s := e.target(seg.LayerID)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "client.raster").Str("tool", seg.Tool.String()).
				Interface("panic", r).Msg("apply recovered")
			s.ctx.ClearPath()
			err = fmt.Errorf("%w: %v", ErrApply, r)
		}
	}()
	if err := comp.apply(s.ctx, seg, style{background: e.background}); err != nil {
		s.ctx.ClearPath()
		return fmt.Errorf("%w: %v", ErrApply, err)
	}
	return nil
}

// Clear blanks every layer.
func (e *Engine) Clear() {
	for _, s := range e.layers {
		e.fillBlank(s)
	}
}

// Resize keeps the existing pixels anchored top-left, clipped to the new
// size. A layer whose pixels cannot be carried over is left blank.
func (e *Engine) Resize(width, height int) error {
	if !validSize(width, height) {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if width == e.width && height == e.height {
		return nil
	}
	oldW, oldH := e.width, e.height
	old := make([][]uint8, len(e.layers))
	for i, s := range e.layers {
		old[i] = append([]uint8(nil), s.ctx.ResizeTarget().Data()...)
	}

	e.width, e.height = width, height
	for i, s := range e.layers {
		if err := s.ctx.Resize(width, height); err != nil {
			s.ctx = gg.NewContext(width, height)
		}
		e.fillBlank(s)
		if err := copyRegion(s.ctx.ResizeTarget(), old[i], oldW, oldH); err != nil {
			log.Warn().Err(err).Str("module", "client.raster").Str("layer", s.id).Msg("resize degraded to blank")
			e.fillBlank(s)
		}
	}
	log.Debug().Str("module", "client.raster").Int("width", width).Int("height", height).Msg("resized")
	return nil
}

func copyRegion(dst *gg.Pixmap, src []uint8, srcW, srcH int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("copy pixels: %v", r)
		}
	}()
	if len(src) != srcW*srcH*4 {
		return fmt.Errorf("source buffer is %d bytes, want %d", len(src), srcW*srcH*4)
	}
	w := min(srcW, dst.Width())
	h := min(srcH, dst.Height())
	data := dst.Data()
	for y := 0; y < h; y++ {
		copy(data[y*dst.Width()*4:y*dst.Width()*4+w*4], src[y*srcW*4:y*srcW*4+w*4])
	}
	return nil
}

// Snapshot copies the pixels of every layer.
func (e *Engine) Snapshot() domain.CanvasSnapshot {
	snap := domain.CanvasSnapshot{
		Width:     e.width,
		Height:    e.height,
		Layers:    make([]domain.LayerPixels, 0, len(e.layers)),
		Watermark: e.watermark,
	}
	for _, s := range e.layers {
		_ = s.ctx.FlushGPU()
		snap.Layers = append(snap.Layers, domain.LayerPixels{
			LayerID: s.id,
			Pix:     append([]uint8(nil), s.ctx.ResizeTarget().Data()...),
		})
	}
	return snap
}

// Restore writes a snapshot back bit for bit. Layers the snapshot does not
// mention are blanked; snapshot layers the engine lacks are ignored.
func (e *Engine) Restore(snap domain.CanvasSnapshot) error {
	for _, lp := range snap.Layers {
		if len(lp.Pix) != snap.Width*snap.Height*4 {
			return fmt.Errorf("%w: layer %s", ErrSnapshotFormat, lp.LayerID)
		}
	}
	if snap.Width != e.width || snap.Height != e.height {
		if err := e.Resize(snap.Width, snap.Height); err != nil {
			return err
		}
	}
	byID := make(map[string][]uint8, len(snap.Layers))
	for _, lp := range snap.Layers {
		byID[lp.LayerID] = lp.Pix
	}
	for _, s := range e.layers {
		pix, ok := byID[s.id]
		if !ok {
			e.fillBlank(s)
			continue
		}
		copy(s.ctx.ResizeTarget().Data(), pix)
	}
	e.watermark = snap.Watermark
	return nil
}

// Composite flattens the visible layers bottom to top.
func (e *Engine) Composite() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	for _, s := range e.layers {
		if !s.visible {
			continue
		}
		_ = s.ctx.FlushGPU()
		src := s.ctx.ResizeTarget().ToImage()
		xdraw.Draw(out, out.Bounds(), src, image.Point{}, xdraw.Over)
	}
	return out
}

func (e *Engine) EncodePNG(w io.Writer) error {
	return png.Encode(w, e.Composite())
}

// AddLayer appends a transparent layer on top.
func (e *Engine) AddLayer(id string) error {
	if _, ok := e.layer(id); ok {
		return fmt.Errorf("%w: %s", ErrLayerExists, id)
	}
	s := e.newSurface(id)
	s.ctx.Clear()
	e.layers = append(e.layers, s)
	return nil
}

func (e *Engine) RemoveLayer(id string) error {
	if id == DefaultLayerID {
		return ErrBaseLayer
	}
	for i, s := range e.layers {
		if s.id == id {
			_ = s.ctx.Close()
			e.layers = append(e.layers[:i], e.layers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
}

func (e *Engine) SetLayerVisible(id string, visible bool) error {
	s, ok := e.layer(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	s.visible = visible
	return nil
}

// SetLayerOrder reorders layers above the base by their position in ids.
// The base layer always stays at the bottom.
func (e *Engine) SetLayerOrder(ids []string) error {
	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	for _, s := range e.layers[1:] {
		if _, ok := rank[s.id]; !ok {
			return fmt.Errorf("%w: %s missing from order", ErrUnknownLayer, s.id)
		}
	}
	upper := e.layers[1:]
	sort.SliceStable(upper, func(i, j int) bool { return rank[upper[i].id] < rank[upper[j].id] })
	return nil
}

func (e *Engine) LayerIDs() []string {
	out := make([]string, len(e.layers))
	for i, s := range e.layers {
		out[i] = s.id
	}
	return out
}
