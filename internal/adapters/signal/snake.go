package signal

import (
	"encoding/json"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// snakePayload carries a username for older clients; the socket's own
// identity is what counts.
type snakePayload struct {
	RoomID    domain.RoomID `json:"roomId"`
	Username  string        `json:"username,omitempty"`
	Direction string        `json:"direction,omitempty"`
}

func decodeSnake(raw json.RawMessage) (snakePayload, error) {
	var p snakePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		return p, domain.Errorf(domain.CodeInvalidArgument, "roomId is required")
	}
	return p, nil
}

func (ctl *SignalWSController) handleSnakeJoin(s *wsSession, raw json.RawMessage) {
	p, err := decodeSnake(raw)
	if err != nil {
		ctl.sendError(s, core.EventSnakeJoin, err)
		return
	}
	if err := ctl.Orch.SnakeJoin(p.RoomID, s.identity); err != nil {
		ctl.sendError(s, core.EventSnakeJoin, err)
	}
}

// handleSnakeMove never replies. Bad input is ignored.
func (ctl *SignalWSController) handleSnakeMove(s *wsSession, raw json.RawMessage) {
	p, err := decodeSnake(raw)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad snake-move payload")
		return
	}
	ctl.Orch.SnakeMove(p.RoomID, s.identity, p.Direction)
}

func (ctl *SignalWSController) handleSnakeRestart(s *wsSession, raw json.RawMessage) {
	p, err := decodeSnake(raw)
	if err != nil {
		ctl.sendError(s, core.EventSnakeRestart, err)
		return
	}
	if err := ctl.Orch.SnakeRestart(p.RoomID, s.identity); err != nil {
		ctl.sendError(s, core.EventSnakeRestart, err)
	}
}
