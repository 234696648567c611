package orch

import (
	"errors"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxJoinAttempts = 8

// Join moves sid into room id, creating the room if absent. The replay has
// already been queued to the joiner when Join returns.
func (o *Orchestrator) Join(sid core.SessionID, id domain.RoomID) (core.JoinResult, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return core.JoinResult{}, ErrUnknownSession
	}
	if cur, _, ok := o.Registry.RoomOf(sid); ok && cur != id {
		o.leaveRoom(sid, cur)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(cur)).Msg("left previous room")
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		room := o.Rooms.GetOrCreate(id)
		res, err := room.Join(sid, sess)
		if errors.Is(err, core.ErrRoomClosed) {
			// Lost the race with the last leave; the table already holds a
			// replacement or will create one.
			continue
		}
		if err != nil {
			return core.JoinResult{}, err
		}
		o.Registry.UpdateRoom(sid, id)
		if !res.Rejoin {
			o.Metrics.Joined()
		}
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Int("count", res.Count).Msg("added to room")
		return res, nil
	}
	return core.JoinResult{}, ErrJoinContended
}

// Leave removes sid from id. A leave for a room sid is not in is ignored.
func (o *Orchestrator) Leave(sid core.SessionID, id domain.RoomID) bool {
	cur, _, ok := o.Registry.RoomOf(sid)
	if !ok || cur != id {
		o.stale(sid, id, core.ErrNotMember)
		return false
	}
	o.leaveRoom(sid, id)
	return true
}

func (o *Orchestrator) leaveRoom(sid core.SessionID, id domain.RoomID) {
	o.Registry.ClearRoom(sid, id)
	room, ok := o.Rooms.Get(id)
	if !ok {
		return
	}
	res, err := room.Leave(sid)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Msg("leave ignored")
		return
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).
		Int("count", res.Count).Bool("destroyed", res.Destroyed).Msg("removed from room")
}

// OnDisconnect runs the leave path for a dropped connection. Safe to call
// more than once; only the first call does anything.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	id, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	o.Metrics.SessionClosed()
	if id == "" {
		return
	}
	if room, ok := o.Rooms.Get(id); ok {
		if res, err := room.Leave(sid); err == nil {
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).
				Int("count", res.Count).Bool("destroyed", res.Destroyed).Msg("disconnected from room")
		}
	}
}

// EvictRoom removes every member of id, destroying the room.
func (o *Orchestrator) EvictRoom(id domain.RoomID) int {
	snaps := o.Registry.MembersOfRoom(id)
	for _, snap := range snaps {
		o.leaveRoom(snap.SID, id)
	}
	return len(snaps)
}
