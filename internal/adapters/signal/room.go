package signal

import (
	"encoding/json"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleJoin moves the connection into a room. The room queues the
// room_state replay itself, ahead of any live traffic.
func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	roomID, err := domain.ParseRoomID(p.Room)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", p.Room).Msg("bad room id")
		ctl.sendError(conn, protocol.ErrBadRoom)
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
			ctl.sendError(conn, protocol.ErrBadName)
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename on join")
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("join")
	if _, err := ctl.Orch.Join(sid, roomID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, protocol.ErrJoinFailed)
	}
}

// handleLeave exits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Leave
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	roomID, err := domain.ParseRoomID(p.Room)
	if err != nil {
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("leave")
	if ctl.Orch.Leave(sid, roomID) {
		ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypeLeft})
	}
}
