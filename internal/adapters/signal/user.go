package signal

import (
	"encoding/json"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRename(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Rename
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
		ctl.sendError(conn, protocol.ErrBadName)
		return
	}
	ctl.handleWhoAmI(sid, conn)
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	user := ctl.Orch.Registry.GetOrCreateUser(sid)

	resp := protocol.WhoAmI{
		Type:     protocol.TypeWhoAmI,
		Username: user.Username,
	}
	if roomID, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = roomID
	}
	ctl.sendJSON(conn, resp)
}
