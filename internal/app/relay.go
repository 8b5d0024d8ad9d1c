package app

import (
	"encoding/json"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// SignalKind is one WebRTC negotiation step.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// Event is the wire name the kind travels under.
func (k SignalKind) Event() (string, bool) {
	switch k {
	case SignalOffer:
		return core.EventVoiceOffer, true
	case SignalAnswer:
		return core.EventVoiceAnswer, true
	case SignalICECandidate:
		return core.EventVoiceICECandidate, true
	}
	return "", false
}

// SignalKindOf maps a wire event back to its kind.
func SignalKindOf(event string) (SignalKind, bool) {
	switch event {
	case core.EventVoiceOffer:
		return SignalOffer, true
	case core.EventVoiceAnswer:
		return SignalAnswer, true
	case core.EventVoiceICECandidate:
		return SignalICECandidate, true
	}
	return "", false
}

// Relay forwards negotiation payloads between members of a room. It keeps
// no state and never retries: a recipient without a live connection misses
// the message.
type Relay struct {
	rooms *RoomManager
}

func NewRelay(rooms *RoomManager) *Relay {
	return &Relay{rooms: rooms}
}

// Relay passes payload unchanged to every member of roomID except from.
func (r *Relay) Relay(roomID domain.RoomID, from domain.Identity, kind SignalKind, payload json.RawMessage) (core.PublishResult, error) {
	event, ok := kind.Event()
	if !ok {
		return core.PublishResult{}, domain.Errorf(domain.CodeInvalidArgument, "unknown signal kind %q", kind)
	}
	res, err := r.rooms.Publish(roomID, from, event, payload)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.relay").Str("room", string(roomID)).Str("user", string(from)).Str("kind", string(kind)).Msg("relay dropped")
		return res, err
	}
	log.Debug().Str("module", "app.relay").Str("room", string(roomID)).Str("user", string(from)).Str("kind", string(kind)).Int("sent_to", res.SendTo).Msg("relayed")
	return res, nil
}
