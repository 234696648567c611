package orch

import (
	"errors"

	"github.com/dkeye/Inkroom/internal/app"
	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrJoinContended  = errors.New("room join contended")
)

// Orchestrator applies the room protocol on top of the registry and the
// room table. Messages for rooms the sender is not in are dropped silently.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Metrics  *app.Metrics
}

// Connect registers a freshly upgraded connection.
func (o *Orchestrator) Connect(sid core.SessionID, sess core.MemberSession, cancel func()) {
	o.Registry.BindSignal(sid, sess, cancel)
	o.Metrics.SessionOpened()
}

// OnDraw validates, appends and relays one segment.
func (o *Orchestrator) OnDraw(sid core.SessionID, id domain.RoomID, seg domain.StrokeSegment) error {
	if err := seg.Validate(); err != nil {
		return err
	}
	room, ok := o.currentRoom(sid, id)
	if !ok {
		return nil
	}
	ev, res, err := room.Draw(sid, seg)
	if err != nil {
		o.stale(sid, id, err)
		return nil
	}
	o.Metrics.Event(string(domain.EventDraw))
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Uint64("sequence", ev.Sequence).Msg("draw relayed")
	o.handleDropped(room, res)
	return nil
}

// OnClear resets the room's accumulated state and notifies the others.
func (o *Orchestrator) OnClear(sid core.SessionID, id domain.RoomID) {
	room, ok := o.currentRoom(sid, id)
	if !ok {
		return
	}
	_, res, err := room.Clear(sid)
	if err != nil {
		o.stale(sid, id, err)
		return
	}
	o.Metrics.Event(string(domain.EventClear))
	o.handleDropped(room, res)
}

func (o *Orchestrator) currentRoom(sid core.SessionID, id domain.RoomID) (core.RoomService, bool) {
	cur, _, ok := o.Registry.RoomOf(sid)
	if !ok || cur != id {
		o.stale(sid, id, core.ErrNotMember)
		return nil, false
	}
	room, ok := o.Rooms.Get(id)
	if !ok {
		o.stale(sid, id, core.ErrRoomClosed)
		return nil, false
	}
	return room, true
}

func (o *Orchestrator) stale(sid core.SessionID, id domain.RoomID, err error) {
	o.Metrics.Stale()
	log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Msg("stale message ignored")
}

func (o *Orchestrator) handleDropped(room core.RoomService, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	o.Metrics.Dropped(len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfRoom(room.Room().ID) {
				if snap.Session == slow {
					log.Warn().Str("module", "orch").Str("sid", string(snap.SID)).Msg("kicking slow member")
					o.Registry.Cancel(snap.SID)
					slow.Signal().Close()
				}
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
