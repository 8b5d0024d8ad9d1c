// Package storage defines persistence contracts for invitations and the
// user directory.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConflict indicates a compare-and-set saw a different current status.
	ErrConflict = errors.New("record changed concurrently")
)

// Transition moves one invitation from one status to another.
type Transition struct {
	ID     string
	From   domain.Status
	To     domain.Status
	RoomID domain.RoomID
	At     time.Time
}

// InvitationStore persists invitation records.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv domain.Invitation) error
	GetInvitation(ctx context.Context, id string) (domain.Invitation, error)
	// GetInvitationByRoom returns the accepted invitation that created roomID.
	GetInvitationByRoom(ctx context.Context, roomID domain.RoomID) (domain.Invitation, error)
	// FindPendingInvitation returns a pending, unexpired invitation for the tuple.
	FindPendingInvitation(ctx context.Context, from, to domain.Identity, gameName string, now time.Time) (domain.Invitation, error)
	// TransitionInvitation applies t only when the stored status equals t.From,
	// returning ErrConflict otherwise.
	TransitionInvitation(ctx context.Context, t Transition) (domain.Invitation, error)
	ListPendingInvitations(ctx context.Context, to domain.Identity, now time.Time) ([]domain.Invitation, error)
	// ExpirePendingInvitations marks pending invitations past their deadline
	// as expired and reports how many changed.
	ExpirePendingInvitations(ctx context.Context, now time.Time) (int, error)
}

// UserDirectory knows which identities exist.
type UserDirectory interface {
	TouchUser(ctx context.Context, id domain.Identity, at time.Time) error
	UserExists(ctx context.Context, id domain.Identity) (bool, error)
}

// Store is the full persistence surface used by the coordinator.
type Store interface {
	InvitationStore
	UserDirectory
	Close() error
}
