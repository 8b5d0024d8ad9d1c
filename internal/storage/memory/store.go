// Package memory provides an in-process Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
	"github.com/dkeye/Playroom/internal/storage"
)

type Store struct {
	mu          sync.RWMutex
	invitations map[string]domain.Invitation
	users       map[domain.Identity]time.Time
}

func New() *Store {
	return &Store{
		invitations: make(map[string]domain.Invitation),
		users:       make(map[domain.Identity]time.Time),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateInvitation(ctx context.Context, inv domain.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.invitations[inv.ID] = inv
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[id]
	if !ok {
		return domain.Invitation{}, storage.ErrNotFound
	}
	return inv, nil
}

func (s *Store) GetInvitationByRoom(ctx context.Context, roomID domain.RoomID) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.RoomID == roomID && inv.Status == domain.StatusAccepted {
			return inv, nil
		}
	}
	return domain.Invitation{}, storage.ErrNotFound
}

func (s *Store) FindPendingInvitation(ctx context.Context, from, to domain.Identity, gameName string, now time.Time) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.FromIdentity == from && inv.ToIdentity == to && inv.GameName == gameName &&
			inv.EffectiveStatus(now) == domain.StatusPending {
			return inv, nil
		}
	}
	return domain.Invitation{}, storage.ErrNotFound
}

func (s *Store) TransitionInvitation(ctx context.Context, t storage.Transition) (domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Invitation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[t.ID]
	if !ok {
		return domain.Invitation{}, storage.ErrNotFound
	}
	if inv.Status != t.From {
		return inv, storage.ErrConflict
	}
	inv.Status = t.To
	inv.UpdatedAt = t.At
	if t.RoomID != "" {
		inv.RoomID = t.RoomID
	}
	s.invitations[t.ID] = inv
	return inv, nil
}

func (s *Store) ListPendingInvitations(ctx context.Context, to domain.Identity, now time.Time) ([]domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Invitation{}
	for _, inv := range s.invitations {
		if inv.ToIdentity == to && inv.EffectiveStatus(now) == domain.StatusPending {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ExpirePendingInvitations(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, inv := range s.invitations {
		if inv.Status == domain.StatusPending && inv.ExpiredAt(now) {
			inv.Status = domain.StatusExpired
			inv.UpdatedAt = now
			s.invitations[id] = inv
			n++
		}
	}
	return n, nil
}

func (s *Store) TouchUser(ctx context.Context, id domain.Identity, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = at
	return nil
}

func (s *Store) UserExists(ctx context.Context, id domain.Identity) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok, nil
}
