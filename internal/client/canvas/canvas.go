// Package canvas ties the client pipeline together: input is rendered
// locally, committed to history at stroke end and sent to the room, while
// relayed events from other members are rendered as they arrive.
package canvas

import (
	"image"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Inkroom/internal/client/history"
	"github.com/dkeye/Inkroom/internal/client/input"
	"github.com/dkeye/Inkroom/internal/client/layers"
	"github.com/dkeye/Inkroom/internal/client/raster"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
)

// Sender delivers local edits to the room. Implementations must not block:
// they are called with the canvas lock held.
type Sender interface {
	SendDraw(seg domain.StrokeSegment) error
	SendClear() error
}

type Options struct {
	Background      string
	HistoryCapacity int
	Input           input.Config
	Brush           input.Brush
}

func DefaultOptions() Options {
	return Options{
		Background:      raster.DefaultBackground,
		HistoryCapacity: history.DefaultCapacity,
		Input:           input.DefaultConfig(),
		Brush:           input.Brush{Tool: domain.ToolBrush, Color: "#000000", Width: 4, Opacity: 1},
	}
}

// Canvas serializes every mutation under one mutex, standing in for the
// UI thread.
type Canvas struct {
	mu      sync.Mutex
	engine  *raster.Engine
	history *history.Manager
	input   *input.Pipeline
	layers  *layers.Panel
	sender  Sender

	// drawn is set once the active stroke has rendered a segment.
	drawn        bool
	version      uint64
	participants int

	// pendingClears counts local clears the room has not echoed yet.
	// Relayed events arriving before the echo were sequenced before the
	// clear, so they are held instead of painted.
	pendingClears int
	held          []domain.DrawEvent
}

// maxHeld caps held events. Past it the echo is assumed lost.
const maxHeld = 4096

func New(width, height int, opts Options) (*Canvas, error) {
	e, err := raster.New(width, height, raster.WithBackground(opts.Background))
	if err != nil {
		return nil, err
	}
	c := &Canvas{
		engine:  e,
		history: history.New(opts.HistoryCapacity),
		input:   input.New(opts.Input, opts.Brush),
		layers:  layers.New(e),
	}
	c.syncBrushLayer()
	c.history.Reset(e.Snapshot())
	return c, nil
}

// SetSender attaches the room connection; nil draws offline.
func (c *Canvas) SetSender(s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = s
}

func (c *Canvas) SetBrush(b input.Brush) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.LayerID = c.layers.Active()
	c.input.SetBrush(b)
}

func (c *Canvas) SetView(v input.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.SetView(v)
}

func (c *Canvas) syncBrushLayer() {
	b := c.input.Brush()
	b.LayerID = c.layers.Active()
	c.input.SetBrush(b)
}

// HandleInput renders and sends the segments a sample produces. Drawing
// continues locally when sending fails; the first send error is returned.
func (c *Canvas) HandleInput(s input.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sendErr error
	for _, ev := range c.input.Handle(s) {
		switch ev.Kind {
		case input.EventSegment:
			if err := c.engine.Apply(ev.Segment); err != nil {
				log.Warn().Err(err).Str("module", "client.canvas").Msg("local segment not applied")
				continue
			}
			c.drawn = true
			c.version++
			if c.sender != nil {
				if err := c.sender.SendDraw(ev.Segment); err != nil && sendErr == nil {
					sendErr = err
				}
			}
		case input.EventCommit, input.EventAbort:
			// An aborted stroke keeps what it already drew.
			c.commitStroke()
		}
	}
	return sendErr
}

func (c *Canvas) commitStroke() {
	if !c.drawn {
		return
	}
	c.drawn = false
	c.history.Commit(c.engine.Snapshot())
}

// Clear blanks the canvas locally and for the room. Locally it is undoable.
func (c *Canvas) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Clear()
	c.history.Commit(c.engine.Snapshot())
	c.version++
	if c.sender == nil {
		return nil
	}
	if err := c.sender.SendClear(); err != nil {
		return err
	}
	c.pendingClears++
	return nil
}

func (c *Canvas) restore(s domain.CanvasSnapshot) {
	// Undo steps local pixels only; the room watermark keeps moving forward.
	wm := c.engine.Watermark()
	if err := c.engine.Restore(s); err != nil {
		log.Error().Err(err).Str("module", "client.canvas").Msg("history restore failed")
		return
	}
	c.engine.SetWatermark(wm)
	c.version++
}

func (c *Canvas) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.history.Undo()
	if ok {
		c.restore(s)
	}
	return ok
}

func (c *Canvas) Redo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.history.Redo()
	if ok {
		c.restore(s)
	}
	return ok
}

// Resize keeps the pixels and restarts history at the new size.
func (c *Canvas) Resize(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.Resize(width, height); err != nil {
		return err
	}
	c.history.Reset(c.engine.Snapshot())
	c.version++
	return nil
}

func (c *Canvas) applyRemote(ev domain.DrawEvent) {
	switch ev.Kind {
	case domain.EventClear:
		c.engine.Clear()
	case domain.EventDraw:
		if ev.Segment == nil {
			return
		}
		if err := c.engine.Apply(*ev.Segment); err != nil {
			log.Warn().Err(err).Str("module", "client.canvas").Str("origin", string(ev.Origin)).
				Uint64("seq", ev.Sequence).Msg("remote segment not applied")
		}
	}
	if ev.Sequence > c.engine.Watermark() {
		c.engine.SetWatermark(ev.Sequence)
	}
	c.version++
}

// OnRoomState replaces the canvas with the room replay.
func (c *Canvas) OnRoomState(st protocol.RoomState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Clear()
	c.engine.SetWatermark(0)
	for _, ev := range st.Events {
		c.applyRemote(ev)
	}
	c.engine.SetWatermark(st.Sequence)
	c.participants = st.Count
	c.drawn = false
	c.pendingClears = 0
	c.held = nil
	c.history.Reset(c.engine.Snapshot())
	log.Debug().Str("module", "client.canvas").Str("room", string(st.Room)).
		Int("events", len(st.Events)).Uint64("seq", st.Sequence).Msg("room state applied")
}

// OnDraw renders a relayed segment. Remote strokes are not added to local
// history.
func (c *Canvas) OnDraw(ev domain.DrawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relayed(ev)
}

// OnCleared blanks the canvas; earlier local history no longer applies.
// The echo of a local clear only confirms it, so that clear stays undoable.
func (c *Canvas) OnCleared(cl protocol.Cleared) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl.Own && c.pendingClears > 0 {
		c.confirmClear(cl.Sequence)
		return
	}
	c.relayed(domain.DrawEvent{RoomID: cl.Room, Sequence: cl.Sequence, Kind: domain.EventClear})
}

func (c *Canvas) relayed(ev domain.DrawEvent) {
	if c.pendingClears > 0 {
		c.held = append(c.held, ev)
		if len(c.held) > maxHeld {
			log.Warn().Str("module", "client.canvas").Int("held", len(c.held)).Msg("clear echo lost, releasing held events")
			c.pendingClears = 0
			c.releaseHeld()
		}
		return
	}
	c.applyRemote(ev)
	if ev.Kind == domain.EventClear {
		c.history.Reset(c.engine.Snapshot())
	}
}

// confirmClear drops held events the clear at seq superseded.
func (c *Canvas) confirmClear(seq uint64) {
	c.pendingClears--
	keep := c.held[:0]
	for _, ev := range c.held {
		if ev.Sequence > seq {
			keep = append(keep, ev)
		}
	}
	c.held = keep
	if seq > c.engine.Watermark() {
		c.engine.SetWatermark(seq)
	}
	if c.pendingClears == 0 {
		c.releaseHeld()
	}
}

func (c *Canvas) releaseHeld() {
	held := c.held
	c.held = nil
	for _, ev := range held {
		c.relayed(ev)
	}
}

func (c *Canvas) OnPresence(p protocol.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants = p.Count
}

func (c *Canvas) OnError(code string) {
	log.Warn().Str("module", "client.canvas").Str("error", code).Msg("server error")
}

// Participants is the last member count reported by the room.
func (c *Canvas) Participants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants
}

// Version increases with every pixel change.
func (c *Canvas) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Canvas) Watermark() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Watermark()
}

func (c *Canvas) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Len()
}

func (c *Canvas) Snapshot() domain.CanvasSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Snapshot()
}

// Composite returns a flattened copy safe to use without the lock.
func (c *Canvas) Composite() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Composite()
}

func (c *Canvas) EncodePNG(w io.Writer) error {
	return encodePNG(w, c.Composite())
}

func (c *Canvas) AddLayer(name string) (domain.Layer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, err := c.layers.Add(name)
	if err == nil {
		c.syncBrushLayer()
	}
	return l, err
}

func (c *Canvas) RemoveLayer(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.layers.Remove(id); err != nil {
		return err
	}
	c.syncBrushLayer()
	c.version++
	return nil
}

func (c *Canvas) SelectLayer(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.layers.SetActive(id); err != nil {
		return err
	}
	c.syncBrushLayer()
	return nil
}

func (c *Canvas) SetLayerVisible(id string, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.layers.SetVisible(id, visible); err != nil {
		return err
	}
	c.version++
	return nil
}

func (c *Canvas) MoveLayer(id string, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.layers.Move(id, delta); err != nil {
		return err
	}
	c.version++
	return nil
}

func (c *Canvas) Layers() []domain.Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers.List()
}
