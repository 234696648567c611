package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
)

var errFull = errors.New("full")

// fakeSignal records frames in order; capacity < 0 means unbounded.
type fakeSignal struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int
}

func newFakeSignal() *fakeSignal { return &fakeSignal{capacity: -1} }

func (f *fakeSignal) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity >= 0 && len(f.frames) >= f.capacity {
		return errFull
	}
	f.frames = append(f.frames, append(Frame(nil), fr...))
	return nil
}

func (f *fakeSignal) Close() {}

func (f *fakeSignal) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		typ, err := protocol.Decode(fr)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, typ)
	}
	return out
}

func (f *fakeSignal) frame(t *testing.T, i int, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.frames) {
		t.Fatalf("frame %d missing, have %d", i, len(f.frames))
	}
	if err := json.Unmarshal(f.frames[i], v); err != nil {
		t.Fatalf("unmarshal frame %d: %v", i, err)
	}
}

func newSession(name string) (MemberSession, *fakeSignal) {
	sig := newFakeSignal()
	u := &domain.User{ID: domain.UserID(name), Username: name}
	return NewMemberSession(domain.NewMember(u), sig), sig
}

func brush(x float64) domain.StrokeSegment {
	return domain.StrokeSegment{
		Tool:    domain.ToolBrush,
		Color:   "#FF6B00",
		Width:   8,
		Opacity: 1,
		Points:  []domain.Point{{X: x, Y: x, Pressure: 1}},
	}
}
