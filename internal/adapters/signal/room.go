package signal

import (
	"encoding/json"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/rs/zerolog/log"
)

// handleJoin enters a room. The room-members broadcast that follows is the
// joiner's acknowledgement.
func (ctl *SignalWSController) handleJoin(s *wsSession, raw json.RawMessage) {
	roomID, err := roomIDOf(raw)
	if err != nil {
		ctl.sendError(s, core.EventJoinRoom, err)
		return
	}
	if _, err := ctl.Orch.JoinRoom(roomID, s.identity); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("user", string(s.identity)).Str("room", string(roomID)).Msg("join refused")
		ctl.sendError(s, core.EventJoinRoom, err)
	}
}

// handleLeave leaves a room; the connection stays open.
func (ctl *SignalWSController) handleLeave(s *wsSession, raw json.RawMessage) {
	roomID, err := roomIDOf(raw)
	if err != nil {
		ctl.sendError(s, core.EventLeaveRoom, err)
		return
	}
	if err := ctl.Orch.LeaveRoom(roomID, s.identity); err != nil {
		ctl.sendError(s, core.EventLeaveRoom, err)
	}
}

func (ctl *SignalWSController) handleReset(s *wsSession, raw json.RawMessage) {
	roomID, err := roomIDOf(raw)
	if err != nil {
		ctl.sendError(s, core.EventResetRoom, err)
		return
	}
	if err := ctl.Orch.ResetRoom(roomID, s.identity); err != nil {
		ctl.sendError(s, core.EventResetRoom, err)
	}
}
