package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Inkroom/internal/app"
	"github.com/dkeye/Inkroom/internal/app/orch"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := app.NewMetrics(nil)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(m),
		Policy:   app.DropPolicy{},
		Metrics:  m,
	}
	ctl := NewSignalWSController(o, opts)
	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(v any) {
	c.t.Helper()
	if err := c.ws.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// expect reads the next frame, requires its type and decodes it into v.
func (c *client) expect(typ string, v any) {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("read %s: %v", typ, err)
	}
	got, err := protocol.Decode(data)
	if err != nil {
		c.t.Fatalf("decode: %v", err)
	}
	if got != typ {
		c.t.Fatalf("frame type = %s (%s), want %s", got, data, typ)
	}
	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			c.t.Fatalf("unmarshal %s: %v", typ, err)
		}
	}
}

func seg() *domain.StrokeSegment {
	return &domain.StrokeSegment{
		Tool:    domain.ToolBrush,
		Color:   "#FF6B00",
		Width:   8,
		Opacity: 1,
		Points:  []domain.Point{{X: 10, Y: 10, Pressure: 1}, {X: 20, Y: 20, Pressure: 1}},
	}
}

func TestSignalJoinDrawAndLateJoin(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a := dial(t, srv)
	b := dial(t, srv)

	a.send(protocol.Join{Type: protocol.TypeJoin, Room: "abc"})
	var st protocol.RoomState
	a.expect(protocol.TypeRoomState, &st)
	if st.Count != 1 || len(st.Events) != 0 {
		t.Fatalf("first join state = %+v", st)
	}
	a.send(protocol.Draw{Type: protocol.TypeDraw, Room: "abc", Segment: seg()})
	// a's frames are handled in order, so the pong proves the draw landed.
	a.send(protocol.Envelope{Type: protocol.TypePing})
	a.expect(protocol.TypePong, nil)

	b.send(protocol.Join{Type: protocol.TypeJoin, Room: "abc"})
	b.expect(protocol.TypeRoomState, &st)
	if st.Count != 2 || len(st.Events) != 1 {
		t.Fatalf("late join state = %+v", st)
	}
	if ev := st.Events[0]; ev.Segment.Color != "#FF6B00" || len(ev.Segment.Points) != 2 {
		t.Fatalf("replayed segment = %+v", ev.Segment)
	}

	var pres protocol.Presence
	a.expect(protocol.TypeUserJoined, &pres)
	if pres.Count != 2 {
		t.Fatalf("user-joined count = %d", pres.Count)
	}

	b.send(protocol.Draw{Type: protocol.TypeDraw, Room: "abc", Segment: seg()})
	var rel protocol.Relayed
	a.expect(protocol.TypeDraw, &rel)
	if rel.Event.Sequence != 2 {
		t.Fatalf("relayed sequence = %d, want 2", rel.Event.Sequence)
	}

	b.send(protocol.Clear{Type: protocol.TypeClear, Room: "abc"})
	var cl protocol.Cleared
	a.expect(protocol.TypeCanvasCleared, &cl)
	if cl.Sequence != 3 || cl.Own {
		t.Fatalf("a cleared = %+v", cl)
	}
	b.expect(protocol.TypeCanvasCleared, &cl)
	if cl.Sequence != 3 || !cl.Own {
		t.Fatalf("b cleared = %+v", cl)
	}

	b.send(protocol.Leave{Type: protocol.TypeLeave, Room: "abc"})
	b.expect(protocol.TypeLeft, nil)
	a.expect(protocol.TypeUserLeft, &pres)
	if pres.Count != 1 {
		t.Fatalf("user-left count = %d", pres.Count)
	}
}

func TestSignalErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a := dial(t, srv)

	var e protocol.Error
	a.send(protocol.Join{Type: protocol.TypeJoin, Room: "   "})
	a.expect(protocol.TypeError, &e)
	if e.Error != protocol.ErrBadRoom {
		t.Fatalf("error = %s, want %s", e.Error, protocol.ErrBadRoom)
	}

	a.send(protocol.Join{Type: protocol.TypeJoin, Room: "abc"})
	a.expect(protocol.TypeRoomState, nil)

	bad := seg()
	bad.Width = 0
	a.send(protocol.Draw{Type: protocol.TypeDraw, Room: "abc", Segment: bad})
	a.expect(protocol.TypeError, &e)
	if e.Error != protocol.ErrBadSegment {
		t.Fatalf("error = %s, want %s", e.Error, protocol.ErrBadSegment)
	}

	if err := a.ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	a.expect(protocol.TypeError, &e)
	if e.Error != protocol.ErrBadPayload {
		t.Fatalf("error = %s, want %s", e.Error, protocol.ErrBadPayload)
	}

	a.send(map[string]string{"type": protocol.TypePing})
	a.expect(protocol.TypePong, nil)
}

func TestSignalWhoAmIAndRename(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a := dial(t, srv)

	a.send(protocol.Join{Type: protocol.TypeJoin, Room: "abc", Name: "ada"})
	a.expect(protocol.TypeRoomState, nil)

	var who protocol.WhoAmI
	a.send(map[string]string{"type": protocol.TypeWhoAmI})
	a.expect(protocol.TypeWhoAmI, &who)
	if who.Username != "ada" || who.Room != "abc" {
		t.Fatalf("whoami = %+v", who)
	}

	a.send(protocol.Rename{Type: protocol.TypeRename, Name: "grace"})
	a.expect(protocol.TypeWhoAmI, &who)
	if who.Username != "grace" {
		t.Fatalf("renamed whoami = %+v", who)
	}
}

func TestSignalDisconnectDestroysRoom(t *testing.T) {
	srv, o := newTestServer(t, Options{})
	a := dial(t, srv)
	a.send(protocol.Join{Type: protocol.TypeJoin, Room: "abc"})
	a.expect(protocol.TypeRoomState, nil)

	a.ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := o.Rooms.Get("abc"); !ok && o.Registry.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("room not destroyed after disconnect")
}

func TestSignalDrawRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{DrawLimiter: NewRateLimiter(1, time.Hour)})
	a := dial(t, srv)
	a.send(protocol.Join{Type: protocol.TypeJoin, Room: "abc"})
	a.expect(protocol.TypeRoomState, nil)

	a.send(protocol.Draw{Type: protocol.TypeDraw, Room: "abc", Segment: seg()})
	a.send(protocol.Draw{Type: protocol.TypeDraw, Room: "abc", Segment: seg()})
	var e protocol.Error
	a.expect(protocol.TypeError, &e)
	if e.Error != protocol.ErrRateLimited {
		t.Fatalf("error = %s, want %s", e.Error, protocol.ErrRateLimited)
	}
}
