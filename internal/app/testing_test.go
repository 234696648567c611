package app

import (
	"sync"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func newSession(name string) core.MemberSession {
	u := &domain.User{ID: domain.UserID(name), Username: name}
	return core.NewMemberSession(domain.NewMember(u), &fakeSignal{})
}

func validSegment() domain.StrokeSegment {
	return domain.StrokeSegment{
		Tool:    domain.ToolBrush,
		Color:   "#FF6B00",
		Width:   8,
		Opacity: 1,
		Points:  []domain.Point{{X: 1, Y: 1, Pressure: 1}},
	}
}
