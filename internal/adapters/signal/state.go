package signal

import (
	"encoding/json"
	"math"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type musicPayload struct {
	RoomID    domain.RoomID `json:"roomId"`
	IsPlaying bool          `json:"isPlaying"`
}

// scrollPayload takes a float since browsers report fractional offsets.
type scrollPayload struct {
	RoomID    domain.RoomID `json:"roomId"`
	ScrollTop float64       `json:"scrollTop"`
}

type gamePayload struct {
	RoomID domain.RoomID `json:"roomId"`
	Game   string        `json:"game"`
}

// Music and scroll updates are relayed traffic: failures are logged only.

func (ctl *SignalWSController) handleMusic(s *wsSession, raw json.RawMessage) {
	var p musicPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad music payload")
		return
	}
	_ = ctl.Orch.UI.SetMusic(p.RoomID, s.identity, p.IsPlaying)
}

func (ctl *SignalWSController) handleScroll(s *wsSession, raw json.RawMessage) {
	var p scrollPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad scroll payload")
		return
	}
	top, ok := scrollOffset(p.ScrollTop)
	if !ok {
		log.Debug().Str("module", "signal").Float64("scroll_top", p.ScrollTop).Msg("bad scroll offset")
		return
	}
	_ = ctl.Orch.UI.SetScroll(p.RoomID, s.identity, top)
}

// scrollOffset rounds a browser offset into [0, MaxInt32]. NaN and the
// infinities are rejected.
func scrollOffset(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	v = math.Round(v)
	if v < 0 {
		return 0, true
	}
	if v > math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int(v), true
}

// handleGameSelected reports AlreadyDecided to the loser, who has also
// been sent the decided game.
func (ctl *SignalWSController) handleGameSelected(s *wsSession, raw json.RawMessage) {
	var p gamePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		ctl.sendError(s, core.EventGameSelected, domain.Errorf(domain.CodeInvalidArgument, "malformed game-selected"))
		return
	}
	if err := ctl.Orch.UI.SelectGame(p.RoomID, s.identity, p.Game); err != nil {
		if domain.CodeOf(err) == domain.CodeNotAMember {
			return
		}
		ctl.sendError(s, core.EventGameSelected, err)
	}
}
