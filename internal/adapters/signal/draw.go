package signal

import (
	"encoding/json"

	"github.com/dkeye/Inkroom/internal/core"
	"github.com/dkeye/Inkroom/internal/domain"
	"github.com/dkeye/Inkroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleDraw(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Draw
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad draw payload")
		ctl.sendError(conn, protocol.ErrBadSegment)
		return
	}
	if p.Segment == nil {
		ctl.sendError(conn, protocol.ErrBadSegment)
		return
	}
	roomID, err := domain.ParseRoomID(p.Room)
	if err != nil {
		return
	}
	if l := ctl.opts.DrawLimiter; l != nil && !l.Allow(sid) {
		ctl.sendError(conn, protocol.ErrRateLimited)
		return
	}
	if err := ctl.Orch.OnDraw(sid, roomID, *p.Segment); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("segment rejected")
		ctl.sendError(conn, protocol.ErrBadSegment)
	}
}

func (ctl *SignalWSController) handleClear(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Clear
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, protocol.ErrBadPayload)
		return
	}
	roomID, err := domain.ParseRoomID(p.Room)
	if err != nil {
		return
	}
	ctl.Orch.OnClear(sid, roomID)
}
