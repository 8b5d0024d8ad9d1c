package domain

import (
	"time"

	"github.com/google/uuid"
)

type RoomID string

// roomNamespace scopes room ids derived from invitation ids.
var roomNamespace = uuid.MustParse("5b3f7f0e-8c1d-4a8e-9d4f-2f6c1a7e0b21")

// Room is a read-only view of a room.
type Room struct {
	ID        RoomID     `json:"id"`
	Members   []Identity `json:"members"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RoomIDFor derives the room of an accepted invitation. The same invitation
// always yields the same room.
func RoomIDFor(invitationID string) RoomID {
	return RoomID(uuid.NewSHA1(roomNamespace, []byte(invitationID)).String())
}
