package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory drawing room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room

	mu     sync.Mutex
	bySID  map[SessionID]MemberSession
	events []domain.DrawEvent
	seq    uint64

	closed  atomic.Bool
	onEmpty func(RoomService)
}

// NewRoomService creates an active room. onEmpty runs inside the room's
// critical section right after the last member leaves.
func NewRoomService(room *domain.Room, onEmpty func(RoomService)) RoomService {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	return &roomImpl{
		room:    room,
		bySID:   make(map[SessionID]MemberSession),
		onEmpty: onEmpty,
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) Closed() bool { return r.closed.Load() }

func (r *roomImpl) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySID)
}

func (r *roomImpl) Sequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *roomImpl) Replay() ([]domain.DrawEvent, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replayLocked(), r.seq
}

func (r *roomImpl) replayLocked() []domain.DrawEvent {
	out := make([]domain.DrawEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Join adds the member and queues the replay to it before releasing the
// lock, so no live event can overtake the replay.
func (r *roomImpl) Join(sid SessionID, ms MemberSession) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return JoinResult{}, ErrRoomClosed
	}

	_, rejoin := r.bySID[sid]
	r.bySID[sid] = ms
	count := len(r.bySID)

	state := protocol.NewRoomState(r.room.ID, r.replayLocked(), r.seq, count)
	if err := ms.Signal().TrySend(protocol.MustEncode(state)); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("sid", string(sid)).Msg("replay not queued")
	}
	if !rejoin {
		r.fanoutLocked(sid, protocol.MustEncode(protocol.NewPresence(protocol.TypeUserJoined, count)))
	}

	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).
		Int("count", count).Int("replay", len(state.Events)).Msg("member joined")
	return JoinResult{State: state, Count: count, Rejoin: rejoin}, nil
}

func (r *roomImpl) Leave(sid SessionID) (LeaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return LeaveResult{}, ErrRoomClosed
	}
	if _, ok := r.bySID[sid]; !ok {
		return LeaveResult{Count: len(r.bySID)}, ErrNotMember
	}
	delete(r.bySID, sid)
	count := len(r.bySID)

	if count == 0 {
		r.closed.Store(true)
		r.events = nil
		if r.onEmpty != nil {
			r.onEmpty(r)
		}
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Msg("room destroyed")
		return LeaveResult{Destroyed: true}, nil
	}

	r.fanoutLocked(sid, protocol.MustEncode(protocol.NewPresence(protocol.TypeUserLeft, count)))
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).
		Int("count", count).Msg("member left")
	return LeaveResult{Count: count}, nil
}

func (r *roomImpl) Draw(from SessionID, seg domain.StrokeSegment) (domain.DrawEvent, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return domain.DrawEvent{}, PublishResult{}, ErrRoomClosed
	}
	if _, ok := r.bySID[from]; !ok {
		return domain.DrawEvent{}, PublishResult{}, ErrNotMember
	}

	r.seq++
	stored := seg.Clone()
	ev := domain.DrawEvent{
		RoomID:   r.room.ID,
		Origin:   from,
		Sequence: r.seq,
		Kind:     domain.EventDraw,
		Segment:  &stored,
	}
	r.events = append(r.events, ev)
	res := r.fanoutLocked(from, protocol.MustEncode(protocol.NewRelayed(ev)))
	return ev, res, nil
}

// Clear resets the accumulated state so later joiners see a blank canvas.
// Every member is told, the sender included.
func (r *roomImpl) Clear(from SessionID) (uint64, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return 0, PublishResult{}, ErrRoomClosed
	}
	if _, ok := r.bySID[from]; !ok {
		return 0, PublishResult{}, ErrNotMember
	}

	r.seq++
	r.events = nil
	cl := protocol.NewCleared(r.room.ID, r.seq)
	res := r.fanoutLocked(from, protocol.MustEncode(cl))
	cl.Own = true
	if ms := r.bySID[from]; ms.Signal().TrySend(protocol.MustEncode(cl)) != nil {
		res.Dropped = append(res.Dropped, ms)
	} else {
		res.SendTo++
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(from)).
		Uint64("sequence", r.seq).Msg("canvas cleared")
	return r.seq, res, nil
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for _, ms := range r.bySID {
		u := ms.Meta().User
		out = append(out, MemberDTO{ID: u.ID, Username: u.Username})
	}
	return out
}
