package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
)

// ProtocolVersion names the canonical event table below. Only the voice-*
// signaling names belong to v1.
const ProtocolVersion = "v1"

const (
	EventRegister   = "register"
	EventRegistered = "registered"
	EventWhoAmI     = "whoami"
	EventPing       = "ping"
	EventPong       = "pong"
	EventError      = "error"

	EventNewInvite      = "new-invite"
	EventInviteAccepted = "invite-accepted"
	EventInviteDeclined = "invite-declined"

	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventRoomMembers = "room-members"
	EventResetRoom   = "reset-room"
	EventRoomReset   = "room-reset"

	EventVoiceOffer        = "voice-offer"
	EventVoiceAnswer       = "voice-answer"
	EventVoiceICECandidate = "voice-ice-candidate"

	EventMusicToggle  = "music-toggle"
	EventScroll       = "scroll"
	EventGameSelected = "game-selected"

	EventSnakeJoin     = "snake-join"
	EventSnakeMove     = "snake-move"
	EventSnakeRestart  = "snake-restart"
	EventSnakeState    = "snake-state"
	EventSnakeGameOver = "snake-game-over"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an event. Payloads that are already json.RawMessage are
// embedded verbatim.
func Encode(event string, payload any) (Frame, error) {
	env := Envelope{Type: event}
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		env.Payload = p
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

type RegisteredPayload struct {
	Username domain.Identity `json:"username"`
	Protocol string          `json:"protocol"`
}

type WhoAmIPayload struct {
	Username domain.Identity `json:"username,omitempty"`
	Rooms    []domain.RoomID `json:"rooms"`
}

type ErrorPayload struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
	Request string      `json:"request,omitempty"`
}

type NewInvitePayload struct {
	From         domain.Identity `json:"from"`
	GameName     string          `json:"gameName"`
	InvitationID string          `json:"invitationId"`
	Type         string          `json:"type,omitempty"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

type InviteAcceptedPayload struct {
	By           domain.Identity `json:"by"`
	RoomID       domain.RoomID   `json:"roomId"`
	GameName     string          `json:"gameName"`
	InvitationID string          `json:"invitationId"`
}

type InviteDeclinedPayload struct {
	By           domain.Identity `json:"by"`
	GameName     string          `json:"gameName,omitempty"`
	InvitationID string          `json:"invitationId"`
}

type RoomMembersPayload struct {
	RoomID  domain.RoomID     `json:"roomId"`
	Members []domain.Identity `json:"members"`
}

type RoomResetPayload struct {
	RoomID domain.RoomID   `json:"roomId"`
	By     domain.Identity `json:"by"`
}

type MusicTogglePayload struct {
	RoomID    domain.RoomID   `json:"roomId"`
	IsPlaying bool            `json:"isPlaying"`
	By        domain.Identity `json:"by"`
}

type ScrollPayload struct {
	RoomID    domain.RoomID   `json:"roomId"`
	ScrollTop int             `json:"scrollTop"`
	By        domain.Identity `json:"by"`
}

// GameSelectedPayload is Final when it echoes a selection that was already
// decided to a member whose own pick lost.
type GameSelectedPayload struct {
	RoomID domain.RoomID   `json:"roomId"`
	Game   string          `json:"game"`
	By     domain.Identity `json:"by"`
	Final  bool            `json:"final,omitempty"`
}
