package core

import (
	"time"

	"github.com/dkeye/Playroom/internal/domain"
)

// Delivery is one connection that could not take a frame.
type Delivery struct {
	Identity domain.Identity
	Conn     domain.ConnID
	Err      error
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []Delivery
}

type RoomInfo struct {
	ID          domain.RoomID     `json:"id"`
	Members     []domain.Identity `json:"members"`
	MemberCount int               `json:"member_count"`
	CreatedAt   time.Time         `json:"createdAt"`
	HasGame     bool              `json:"hasGame"`
}

// Broadcaster fans events out to the connections of room members.
type Broadcaster interface {
	Broadcast(roomID domain.RoomID, event string, payload any, exclude domain.Identity) (PublishResult, error)
}

// Notifier delivers an event to every connection of one identity.
type Notifier interface {
	Notify(identity domain.Identity, event string, payload any) PublishResult
}
