// Package storagetest holds behavior checks shared by every Store.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
	"github.com/dkeye/Playroom/internal/storage"
)

var base = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

func invitation(id string, from, to domain.Identity, game string, ttl time.Duration) domain.Invitation {
	return domain.Invitation{
		ID:           id,
		FromIdentity: from,
		ToIdentity:   to,
		GameName:     game,
		Kind:         domain.DefaultInviteKind,
		Status:       domain.StatusPending,
		CreatedAt:    base,
		UpdatedAt:    base,
		ExpiresAt:    base.Add(ttl),
	}
}

// Run exercises open against the Store contract.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("create and get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		inv := invitation("inv-1", "a", "b", "Chess", time.Minute)
		if err := s.CreateInvitation(ctx, inv); err != nil {
			t.Fatalf("create invitation: %v", err)
		}
		got, err := s.GetInvitation(ctx, "inv-1")
		if err != nil {
			t.Fatalf("get invitation: %v", err)
		}
		if got.FromIdentity != "a" || got.ToIdentity != "b" || got.GameName != "Chess" {
			t.Fatalf("invitation = %+v, want a->b Chess", got)
		}
		if got.Status != domain.StatusPending {
			t.Fatalf("status = %q, want %q", got.Status, domain.StatusPending)
		}
		if !got.ExpiresAt.Equal(inv.ExpiresAt) {
			t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, inv.ExpiresAt)
		}
		if err := s.CreateInvitation(ctx, inv); !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("duplicate create err = %v, want %v", err, storage.ErrAlreadyExists)
		}
		if _, err := s.GetInvitation(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("get missing err = %v, want %v", err, storage.ErrNotFound)
		}
	})

	t.Run("transition is compare and set", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if err := s.CreateInvitation(ctx, invitation("inv-2", "a", "b", "Chess", time.Minute)); err != nil {
			t.Fatalf("create invitation: %v", err)
		}
		got, err := s.TransitionInvitation(ctx, storage.Transition{
			ID: "inv-2", From: domain.StatusPending, To: domain.StatusAccepted, RoomID: "room-2", At: base.Add(time.Second),
		})
		if err != nil {
			t.Fatalf("accept: %v", err)
		}
		if got.Status != domain.StatusAccepted || got.RoomID != "room-2" {
			t.Fatalf("after accept = %+v, want accepted in room-2", got)
		}
		got, err = s.TransitionInvitation(ctx, storage.Transition{
			ID: "inv-2", From: domain.StatusPending, To: domain.StatusDeclined, At: base.Add(2 * time.Second),
		})
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("second transition err = %v, want %v", err, storage.ErrConflict)
		}
		if got.Status != domain.StatusAccepted {
			t.Fatalf("status after conflict = %q, want %q", got.Status, domain.StatusAccepted)
		}
		byRoom, err := s.GetInvitationByRoom(ctx, "room-2")
		if err != nil {
			t.Fatalf("get by room: %v", err)
		}
		if byRoom.ID != "inv-2" {
			t.Fatalf("by room id = %q, want inv-2", byRoom.ID)
		}
		if _, err := s.TransitionInvitation(ctx, storage.Transition{ID: "missing", From: domain.StatusPending, To: domain.StatusDeclined}); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("missing transition err = %v, want %v", err, storage.ErrNotFound)
		}
	})

	t.Run("pending lookups skip expired", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for _, inv := range []domain.Invitation{
			invitation("fresh", "a", "b", "Chess", time.Hour),
			invitation("stale", "c", "b", "Ludo", time.Minute),
			invitation("other", "a", "c", "Chess", time.Hour),
		} {
			if err := s.CreateInvitation(ctx, inv); err != nil {
				t.Fatalf("create %s: %v", inv.ID, err)
			}
		}
		now := base.Add(10 * time.Minute)
		list, err := s.ListPendingInvitations(ctx, "b", now)
		if err != nil {
			t.Fatalf("list pending: %v", err)
		}
		if len(list) != 1 || list[0].ID != "fresh" {
			t.Fatalf("pending for b = %+v, want [fresh]", list)
		}
		if _, err := s.FindPendingInvitation(ctx, "c", "b", "Ludo", now); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("find stale err = %v, want %v", err, storage.ErrNotFound)
		}
		found, err := s.FindPendingInvitation(ctx, "a", "b", "Chess", now)
		if err != nil {
			t.Fatalf("find fresh: %v", err)
		}
		if found.ID != "fresh" {
			t.Fatalf("found = %q, want fresh", found.ID)
		}

		n, err := s.ExpirePendingInvitations(ctx, now)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if n != 1 {
			t.Fatalf("expired = %d, want 1", n)
		}
		stale, err := s.GetInvitation(ctx, "stale")
		if err != nil {
			t.Fatalf("get stale: %v", err)
		}
		if stale.Status != domain.StatusExpired {
			t.Fatalf("stale status = %q, want %q", stale.Status, domain.StatusExpired)
		}
	})

	t.Run("user directory", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		ok, err := s.UserExists(ctx, "alice")
		if err != nil {
			t.Fatalf("user exists: %v", err)
		}
		if ok {
			t.Fatal("expected unknown user")
		}
		if err := s.TouchUser(ctx, "alice", base); err != nil {
			t.Fatalf("touch: %v", err)
		}
		if err := s.TouchUser(ctx, "alice", base.Add(time.Minute)); err != nil {
			t.Fatalf("touch again: %v", err)
		}
		ok, err = s.UserExists(ctx, "alice")
		if err != nil {
			t.Fatalf("user exists: %v", err)
		}
		if !ok {
			t.Fatal("expected alice to exist")
		}
	})
}
