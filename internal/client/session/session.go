// Package session is the client end of the signal socket.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
)

const (
	writeWait = 5 * time.Second
	// DefaultQueueSize bounds the frames waiting for the writer.
	DefaultQueueSize = 256
	// SignalPath is where the server mounts the socket.
	SignalPath = "/api/ws/signal"
)

var (
	ErrNotJoined    = errors.New("not joined to a room")
	ErrClosed       = errors.New("session closed")
	ErrBackpressure = errors.New("send queue full")
)

// Handler receives frames from the read loop goroutine, in the order the
// server sent them.
type Handler interface {
	OnRoomState(protocol.RoomState)
	OnDraw(domain.DrawEvent)
	OnCleared(protocol.Cleared)
	OnPresence(protocol.Presence)
	OnError(code string)
}

// PongHandler is optionally implemented by a Handler.
type PongHandler interface {
	OnPong()
}

// Client is the browser side of one socket. Outgoing frames are queued and
// written by a single writer goroutine, so no send blocks on the network.
type Client struct {
	conn    *websocket.Conn
	handler Handler
	send    chan []byte

	mu     sync.Mutex
	room   domain.RoomID
	closed bool

	written chan struct{}
	done    chan struct{}
	err     error
}

type Option func(*dialOptions)

type dialOptions struct {
	queueSize int
}

// WithQueueSize sets how many frames may wait for the writer before sends
// fail with ErrBackpressure.
func WithQueueSize(n int) Option {
	return func(o *dialOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// SignalURL turns a server base URL such as http://host:8080 into its
// websocket endpoint.
func SignalURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://"):
		base = "ws://" + base
	}
	return base + SignalPath
}

// Dial connects to a signal endpoint such as ws://host:8080/api/ws/signal
// and starts the read and write loops.
func Dial(ctx context.Context, url string, h Handler, opts ...Option) (*Client, error) {
	o := dialOptions{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			log.Error().Err(err).Str("module", "client.session").Int("status", resp.StatusCode).Msg("dial")
		}
		return nil, err
	}
	c := &Client{
		conn:    conn,
		handler: h,
		send:    make(chan []byte, o.queueSize),
		written: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// enqueueLocked hands b to the writer without blocking. c.mu must be held.
func (c *Client) enqueueLocked(b []byte) error {
	if c.closed {
		return ErrClosed
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) enqueue(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(b)
}

// Join enters a room. The replay arrives later through OnRoomState.
func (c *Client) Join(room, name string) error {
	id, err := domain.ParseRoomID(room)
	if err != nil {
		return err
	}
	b, err := json.Marshal(protocol.Join{Type: protocol.TypeJoin, Room: string(id), Name: name})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enqueueLocked(b); err != nil {
		return err
	}
	c.room = id
	return nil
}

func (c *Client) Room() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) Leave() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == "" {
		return ErrNotJoined
	}
	b, err := json.Marshal(protocol.Leave{Type: protocol.TypeLeave, Room: string(c.room)})
	if err != nil {
		return err
	}
	if err := c.enqueueLocked(b); err != nil {
		return err
	}
	c.room = ""
	return nil
}

// SendDraw queues one segment for the current room. It never waits on the
// socket; a full queue returns ErrBackpressure and the segment is dropped.
func (c *Client) SendDraw(seg domain.StrokeSegment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == "" {
		return ErrNotJoined
	}
	b, err := json.Marshal(protocol.Draw{Type: protocol.TypeDraw, Room: string(c.room), Segment: &seg})
	if err != nil {
		return err
	}
	return c.enqueueLocked(b)
}

func (c *Client) SendClear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == "" {
		return ErrNotJoined
	}
	b, err := json.Marshal(protocol.Clear{Type: protocol.TypeClear, Room: string(c.room)})
	if err != nil {
		return err
	}
	return c.enqueueLocked(b)
}

func (c *Client) Ping() error {
	return c.enqueue(protocol.Envelope{Type: protocol.TypePing})
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the read loop exited. Valid after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close flushes queued frames, sends a close frame and waits for the server
// to hang up. Each wait is bounded by writeWait.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	select {
	case <-c.written:
	case <-time.After(writeWait):
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

	select {
	case <-c.done:
	case <-time.After(writeWait):
	}
	return c.conn.Close()
}

// writeLoop is the only writer of data frames. A failed write closes the
// socket, which also ends the read loop.
func (c *Client) writeLoop() {
	defer close(c.written)
	for b := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "client.session").Msg("write set deadline")
			_ = c.conn.Close()
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Error().Err(err).Str("module", "client.session").Msg("write error")
			_ = c.conn.Close()
			return
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "client.session").Msg("read error")
			}
			c.err = err
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	typ, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client.session").Msg("bad frame")
		return
	}
	switch typ {
	case protocol.TypeRoomState:
		var st protocol.RoomState
		if decode(data, &st) {
			c.handler.OnRoomState(st)
		}
	case protocol.TypeDraw:
		var rel protocol.Relayed
		if decode(data, &rel) {
			c.handler.OnDraw(rel.Event)
		}
	case protocol.TypeCanvasCleared:
		var cl protocol.Cleared
		if decode(data, &cl) {
			c.handler.OnCleared(cl)
		}
	case protocol.TypeUserJoined, protocol.TypeUserLeft:
		var p protocol.Presence
		if decode(data, &p) {
			c.handler.OnPresence(p)
		}
	case protocol.TypeError:
		var e protocol.Error
		if decode(data, &e) {
			c.handler.OnError(e.Error)
		}
	case protocol.TypePong:
		if ph, ok := c.handler.(PongHandler); ok {
			ph.OnPong()
		}
	default:
		log.Debug().Str("module", "client.session").Str("type", typ).Msg("ignored frame")
	}
}

func decode(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "client.session").Msg("bad frame")
		return false
	}
	return true
}
