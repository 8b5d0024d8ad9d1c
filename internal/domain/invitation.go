package domain

import (
	"strings"
	"time"
)

// Status represents the lifecycle status of an invitation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusExpired
}

// ParseStatus converts a stored label to a Status.
func ParseStatus(label string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(label))); s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusExpired:
		return s, true
	default:
		return "", false
	}
}

// DefaultInviteKind is what the web client sends for a casual game.
const DefaultInviteKind = "friendly-match"

// Invitation asks ToIdentity to play GameName with FromIdentity.
type Invitation struct {
	ID           string    `json:"id"`
	FromIdentity Identity  `json:"from"`
	ToIdentity   Identity  `json:"to"`
	GameName     string    `json:"gameName"`
	Kind         string    `json:"type"`
	Status       Status    `json:"status"`
	RoomID       RoomID    `json:"roomId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ExpiredAt reports whether the invitation deadline has passed at now.
// Status is not consulted: the UI derives "expired" lazily from timestamps.
func (i Invitation) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EffectiveStatus is the status a reader should display at now.
func (i Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && i.ExpiredAt(now) {
		return StatusExpired
	}
	return i.Status
}
