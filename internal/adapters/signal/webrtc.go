package signal

import (
	"encoding/json"

	"github.com/dkeye/Playroom/internal/adapters/rtc"
	"github.com/dkeye/Playroom/internal/app"
	"github.com/rs/zerolog/log"
)

// handleVoice relays a negotiation step to the rest of the room. Nothing is
// reported back: a malformed or undeliverable signal is simply dropped.
func (ctl *SignalWSController) handleVoice(s *wsSession, kind app.SignalKind, raw json.RawMessage) {
	sig, err := rtc.DecodeSignal(kind, raw)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(s.identity)).Str("kind", string(kind)).Msg("bad voice payload")
		return
	}
	ctl.Orch.Signal(sig.RoomID, s.identity, kind, raw)
}
