package session

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/dkeye/Inkroom/internal/adapters/http"
	"github.com/dkeye/Inkroom/internal/adapters/signal"
	"github.com/dkeye/Inkroom/internal/app"
	"github.com/dkeye/Inkroom/internal/app/orch"
	"github.com/dkeye/Inkroom/internal/client/canvas"
	"github.com/dkeye/Inkroom/internal/client/input"
	"github.com/dkeye/Inkroom/internal/config"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
)

func newServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := app.NewMetrics(reg)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(m),
		Policy:   app.DropPolicy{},
		Metrics:  m,
	}
	ctx, cancel := context.WithCancel(context.Background())
	deps := httpadapter.Deps{
		Orch:     o,
		Signal:   signal.NewSignalWSController(o, signal.Options{}),
		Gatherer: reg,
	}
	srv := httptest.NewServer(httpadapter.SetupRouter(ctx, &config.Config{Mode: "test", Secret: "s"}, deps))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

func wsURL(srv *httptest.Server) string {
	return SignalURL(srv.URL)
}

// probe forwards frames to a canvas and reports them to the test.
type probe struct {
	*canvas.Canvas
	states chan protocol.RoomState
	draws  chan domain.DrawEvent
	pongs  chan struct{}
	errs   chan string
}

func newProbe(t *testing.T) *probe {
	t.Helper()
	c, err := canvas.New(64, 64, canvas.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return &probe{
		Canvas: c,
		states: make(chan protocol.RoomState, 16),
		draws:  make(chan domain.DrawEvent, 64),
		pongs:  make(chan struct{}, 16),
		errs:   make(chan string, 16),
	}
}

func (p *probe) OnRoomState(st protocol.RoomState) {
	p.Canvas.OnRoomState(st)
	p.states <- st
}

func (p *probe) OnDraw(ev domain.DrawEvent) {
	p.Canvas.OnDraw(ev)
	p.draws <- ev
}

func (p *probe) OnError(code string) { p.errs <- code }

func (p *probe) OnPong() { p.pongs <- struct{}{} }

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	var zero T
	return zero
}

// settle waits until the server has handled everything sent before it.
func settle(t *testing.T, c *Client, p *probe) {
	t.Helper()
	if err := c.Ping(); err != nil {
		t.Fatal(err)
	}
	recv(t, p.pongs)
}

func connect(t *testing.T, srv *httptest.Server) (*Client, *probe) {
	t.Helper()
	p := newProbe(t)
	c, err := Dial(context.Background(), wsURL(srv), p)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	p.SetSender(c)
	t.Cleanup(func() { c.Close() })
	return c, p
}

func orange(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r>>8 > 200 && g>>8 > 60 && g>>8 < 160 && b>>8 < 60
}

func TestCollaborativeSession(t *testing.T) {
	srv, o := newServer(t)

	c1, p1 := connect(t, srv)
	if err := c1.Join("abc", ""); err != nil {
		t.Fatal(err)
	}
	st := recv(t, p1.states)
	if st.Count != 1 || len(st.Events) != 0 {
		t.Fatalf("first join state = %+v", st)
	}
	if _, ok := o.Rooms.Get("abc"); !ok {
		t.Fatal("room abc not created")
	}
	blank := p1.Snapshot()

	p1.SetBrush(input.Brush{Tool: domain.ToolBrush, Color: "#FF6B00", Width: 8, Opacity: 1})
	for _, s := range []input.Sample{
		{Type: input.Mouse, Phase: input.Down, X: 10, Y: 10},
		{Type: input.Mouse, Phase: input.Move, X: 30, Y: 10},
		{Type: input.Mouse, Phase: input.Up, X: 50, Y: 10},
	} {
		if err := p1.HandleInput(s); err != nil {
			t.Fatal(err)
		}
	}
	if p1.HistoryLen() != 1 {
		t.Fatalf("history len = %d, want 1", p1.HistoryLen())
	}
	settle(t, c1, p1)

	c2, p2 := connect(t, srv)
	if err := c2.Join("abc", ""); err != nil {
		t.Fatal(err)
	}
	st = recv(t, p2.states)
	if st.Count != 2 {
		t.Fatalf("count = %d, want 2", st.Count)
	}
	var pts []domain.Point
	for _, ev := range st.Events {
		if ev.Kind != domain.EventDraw || ev.Segment.Color != "#FF6B00" || ev.Segment.Width != 8 {
			t.Fatalf("replayed event = %+v", ev)
		}
		if len(pts) == 0 {
			pts = append(pts, ev.Segment.Points[0])
		}
		pts = append(pts, ev.Segment.Points[len(ev.Segment.Points)-1])
	}
	if len(pts) != 3 || pts[0].X != 10 || pts[1].X != 30 || pts[2].X != 50 {
		t.Fatalf("replayed stroke points = %+v", pts)
	}
	if !orange(p2.Composite(), 40, 10) {
		t.Fatal("replay not rendered on the joiner")
	}

	p2.SetBrush(input.Brush{Tool: domain.ToolEraser, Color: "#000000", Width: 8, Opacity: 1})
	p2.HandleInput(input.Sample{Type: input.Mouse, Phase: input.Down, X: 10, Y: 10})
	if err := p2.HandleInput(input.Sample{Type: input.Mouse, Phase: input.Up, X: 20, Y: 10}); err != nil {
		t.Fatal(err)
	}

	ev := recv(t, p1.draws)
	if ev.Segment == nil || ev.Segment.Tool != domain.ToolEraser || len(ev.Segment.Points) != 2 {
		t.Fatalf("relayed = %+v", ev)
	}
	if ev.Segment.Points[0].X != 10 || ev.Segment.Points[1].X != 20 {
		t.Fatalf("relayed points = %+v", ev.Segment.Points)
	}
	if ev.Sequence <= st.Sequence {
		t.Fatalf("relayed seq %d not after replay seq %d", ev.Sequence, st.Sequence)
	}
	if p1.Participants() != 2 {
		t.Fatalf("participants = %d", p1.Participants())
	}

	if !p1.Undo() {
		t.Fatal("undo refused")
	}
	if !p1.Snapshot().Equal(blank) {
		t.Fatal("undo did not return to the blank canvas")
	}
	settle(t, c2, p2)
	select {
	case ev := <-p2.draws:
		t.Fatalf("undo leaked to the room: %+v", ev)
	default:
	}
	if !orange(p2.Composite(), 40, 10) {
		t.Fatal("other member lost the stroke")
	}
}

func TestClientErrors(t *testing.T) {
	srv, _ := newServer(t)
	c, p := connect(t, srv)

	if err := c.SendDraw(domain.StrokeSegment{}); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("err = %v, want ErrNotJoined", err)
	}
	if err := c.Leave(); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("err = %v, want ErrNotJoined", err)
	}
	if err := c.Join("   ", ""); !errors.Is(err, domain.ErrRoomIDEmpty) {
		t.Fatalf("err = %v, want ErrRoomIDEmpty", err)
	}

	if err := c.Join("r1", ""); err != nil {
		t.Fatal(err)
	}
	recv(t, p.states)
	bad := domain.StrokeSegment{Tool: domain.ToolBrush, Color: "#000000", Width: 0, Opacity: 1,
		Points: []domain.Point{{X: 1, Y: 1}}}
	if err := c.SendDraw(bad); err != nil {
		t.Fatal(err)
	}
	if code := recv(t, p.errs); code != protocol.ErrBadSegment {
		t.Fatalf("code = %s", code)
	}
	if err := c.Leave(); err != nil {
		t.Fatal(err)
	}
	if c.Room() != "" {
		t.Fatal("room kept after leave")
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	<-c.Done()
	if err := c.Ping(); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

// newStalledPeer accepts the socket and never reads from it. The returned
// func hangs up on the client.
func newStalledPeer(t *testing.T) (string, func()) {
	t.Helper()
	release := make(chan struct{})
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-release
		conn.Close()
	}))
	var once bool
	hangUp := func() {
		if !once {
			once = true
			close(release)
		}
	}
	t.Cleanup(func() {
		hangUp()
		srv.Close()
	})
	return SignalURL(srv.URL), hangUp
}

func TestSendDoesNotBlockOnStalledPeer(t *testing.T) {
	url, hangUp := newStalledPeer(t)
	p := newProbe(t)
	c, err := Dial(context.Background(), url, p, WithQueueSize(4))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		hangUp()
		c.Close()
	}()
	p.SetSender(c)
	if err := c.Join("abc", ""); err != nil {
		t.Fatal(err)
	}

	// Large frames fill the socket buffers until the writer stalls, then
	// the queue fills behind it.
	big := domain.StrokeSegment{Tool: domain.ToolBrush, Color: "#000000", Width: 2, Opacity: 1,
		Points: make([]domain.Point, 50000)}
	full := false
	for i := 0; i < 200 && !full; i++ {
		start := time.Now()
		err := c.SendDraw(big)
		if d := time.Since(start); d > time.Second {
			t.Fatalf("SendDraw took %v", d)
		}
		switch {
		case errors.Is(err, ErrBackpressure):
			full = true
		case err != nil:
			t.Fatal(err)
		}
	}
	if !full {
		t.Fatal("send queue never filled")
	}

	start := time.Now()
	if err := p.HandleInput(input.Sample{Type: input.Mouse, Phase: input.Down, X: 1, Y: 1}); err != nil {
		t.Fatal(err)
	}
	err = p.HandleInput(input.Sample{Type: input.Mouse, Phase: input.Move, X: 40, Y: 1})
	if !errors.Is(err, ErrBackpressure) {
		t.Fatalf("err = %v, want ErrBackpressure", err)
	}
	p.HandleInput(input.Sample{Type: input.Mouse, Phase: input.Up, X: 40, Y: 1})
	if d := time.Since(start); d > time.Second {
		t.Fatalf("pointer handling took %v with a stalled socket", d)
	}
	if p.HistoryLen() != 1 {
		t.Fatalf("history len = %d, stroke not kept locally", p.HistoryLen())
	}
}

func TestSignalURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080": "ws://localhost:8080/api/ws/signal",
		"https://ink.example/":  "wss://ink.example/api/ws/signal",
		"192.168.1.4:8080":      "ws://192.168.1.4:8080/api/ws/signal",
		"ws://host:1/":          "ws://host:1/api/ws/signal",
	}
	for in, want := range cases {
		if got := SignalURL(in); got != want {
			t.Errorf("SignalURL(%q) = %q, want %q", in, got, want)
		}
	}
}
