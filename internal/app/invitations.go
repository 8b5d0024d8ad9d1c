package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/dkeye/Playroom/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type InviteConfig struct {
	TTL        time.Duration
	RateLimit  int
	RateWindow time.Duration
}

// Invitations drives invitations from pending to a terminal status. Every
// transition for one invitation id is serialized.
type Invitations struct {
	store   storage.Store
	rooms   *RoomManager
	conns   Connections
	notify  core.Notifier
	limiter *RateLimiter
	ttl     time.Duration
	now     func() time.Time
	newID   func() string

	byID    keyedMutex
	byTuple keyedMutex
}

func NewInvitations(store storage.Store, rooms *RoomManager, conns Connections, notify core.Notifier, cfg InviteConfig) *Invitations {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Invitations{
		store:   store,
		rooms:   rooms,
		conns:   conns,
		notify:  notify,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		ttl:     ttl,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Create stores a pending invitation and pushes new-invite to every
// connection of the recipient.
func (s *Invitations) Create(ctx context.Context, from, to domain.Identity, gameName, kind string) (domain.Invitation, error) {
	gameName = strings.TrimSpace(gameName)
	if gameName == "" {
		return domain.Invitation{}, domain.Errorf(domain.CodeInvalidArgument, "gameName is required")
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = domain.DefaultInviteKind
	}
	if to == "" || to == from {
		return domain.Invitation{}, domain.Errorf(domain.CodeInvalidTarget, "cannot invite %q", to)
	}
	exists, err := s.store.UserExists(ctx, to)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("lookup recipient: %w", err)
	}
	if !exists {
		return domain.Invitation{}, domain.Errorf(domain.CodeInvalidTarget, "user %s does not exist", to)
	}

	unlock := s.byTuple.Lock(string(from) + "\x00" + string(to) + "\x00" + gameName)
	defer unlock()

	now := s.now()
	if _, err := s.store.FindPendingInvitation(ctx, from, to, gameName, now); err == nil {
		return domain.Invitation{}, domain.Errorf(domain.CodeRateLimited, "an invitation to %s for %s is already pending", to, gameName)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return domain.Invitation{}, fmt.Errorf("find pending invitation: %w", err)
	}
	if !s.limiter.Allow(from) {
		return domain.Invitation{}, domain.Errorf(domain.CodeRateLimited, "too many invitations from %s", from)
	}

	inv := domain.Invitation{
		ID:           s.newID(),
		FromIdentity: from,
		ToIdentity:   to,
		GameName:     gameName,
		Kind:         kind,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}

	res := s.notify.Notify(to, core.EventNewInvite, core.NewInvitePayload{
		From:         from,
		GameName:     gameName,
		InvitationID: inv.ID,
		Type:         kind,
		ExpiresAt:    inv.ExpiresAt,
	})
	log.Info().Str("module", "app.invites").Str("invitation", inv.ID).Str("from", string(from)).Str("to", string(to)).Str("game", gameName).Int("delivered", res.SendTo).Msg("invitation created")
	return inv, nil
}

// resolve loads a pending invitation addressed to by. An invitation found
// past its deadline is moved to expired before Expired is returned.
func (s *Invitations) resolve(ctx context.Context, id string, by domain.Identity) (domain.Invitation, error) {
	inv, err := s.store.GetInvitation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return inv, domain.Errorf(domain.CodeNotFound, "invitation %s not found", id)
	}
	if err != nil {
		return inv, fmt.Errorf("get invitation: %w", err)
	}
	if inv.ToIdentity != by {
		return inv, domain.Errorf(domain.CodeForbidden, "invitation %s is not addressed to %s", id, by)
	}
	if inv.Status == domain.StatusExpired {
		return inv, domain.Errorf(domain.CodeExpired, "invitation %s expired", id)
	}
	if inv.Status.Terminal() {
		return inv, domain.Errorf(domain.CodeAlreadyResolved, "invitation %s is %s", id, inv.Status)
	}
	now := s.now()
	if inv.ExpiredAt(now) {
		if _, err := s.store.TransitionInvitation(ctx, storage.Transition{ID: id, From: domain.StatusPending, To: domain.StatusExpired, At: now}); err != nil && !errors.Is(err, storage.ErrConflict) {
			return inv, fmt.Errorf("expire invitation: %w", err)
		}
		return inv, domain.Errorf(domain.CodeExpired, "invitation %s expired at %s", id, inv.ExpiresAt.Format(time.RFC3339))
	}
	return inv, nil
}

func (s *Invitations) transition(ctx context.Context, inv domain.Invitation, to domain.Status, roomID domain.RoomID) (domain.Invitation, error) {
	out, err := s.store.TransitionInvitation(ctx, storage.Transition{
		ID: inv.ID, From: domain.StatusPending, To: to, RoomID: roomID, At: s.now(),
	})
	if errors.Is(err, storage.ErrConflict) {
		return out, domain.Errorf(domain.CodeAlreadyResolved, "invitation %s is %s", inv.ID, out.Status)
	}
	if err != nil {
		return out, fmt.Errorf("transition invitation: %w", err)
	}
	return out, nil
}

// Accept resolves the invitation, opens its room for both parties and tells
// the inviter. The returned room id is stable for the invitation.
func (s *Invitations) Accept(ctx context.Context, id string, by domain.Identity) (domain.RoomID, error) {
	unlock := s.byID.Lock(id)
	defer unlock()

	inv, err := s.resolve(ctx, id, by)
	if err != nil {
		return "", err
	}
	roomID := domain.RoomIDFor(inv.ID)
	if inv, err = s.transition(ctx, inv, domain.StatusAccepted, roomID); err != nil {
		return "", err
	}

	s.rooms.Create(roomID, inv.FromIdentity, inv.ToIdentity)
	for _, member := range []domain.Identity{inv.ToIdentity, inv.FromIdentity} {
		if !s.conns.IsRegistered(member) {
			continue
		}
		if _, err := s.rooms.Join(roomID, member); err != nil {
			log.Warn().Err(err).Str("module", "app.invites").Str("room", string(roomID)).Str("user", string(member)).Msg("join accepted room")
		}
	}

	s.notify.Notify(inv.FromIdentity, core.EventInviteAccepted, core.InviteAcceptedPayload{
		By:           by,
		RoomID:       roomID,
		GameName:     inv.GameName,
		InvitationID: inv.ID,
	})
	log.Info().Str("module", "app.invites").Str("invitation", inv.ID).Str("by", string(by)).Str("room", string(roomID)).Msg("invitation accepted")
	return roomID, nil
}

// Decline resolves the invitation without creating a room.
func (s *Invitations) Decline(ctx context.Context, id string, by domain.Identity) error {
	unlock := s.byID.Lock(id)
	defer unlock()

	inv, err := s.resolve(ctx, id, by)
	if err != nil {
		return err
	}
	if inv, err = s.transition(ctx, inv, domain.StatusDeclined, ""); err != nil {
		return err
	}
	s.notify.Notify(inv.FromIdentity, core.EventInviteDeclined, core.InviteDeclinedPayload{
		By:           by,
		GameName:     inv.GameName,
		InvitationID: inv.ID,
	})
	log.Info().Str("module", "app.invites").Str("invitation", inv.ID).Str("by", string(by)).Msg("invitation declined")
	return nil
}

// Pending lists unexpired pending invitations addressed to identity.
func (s *Invitations) Pending(ctx context.Context, identity domain.Identity) ([]domain.Invitation, error) {
	list, err := s.store.ListPendingInvitations(ctx, identity, s.now())
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return list, nil
}

// Sweep marks overdue pending invitations expired. Nothing is broadcast.
func (s *Invitations) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.ExpirePendingInvitations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	s.limiter.Prune()
	if n > 0 {
		log.Info().Str("module", "app.invites").Int("count", n).Msg("invitations expired")
	}
	return n, nil
}

// Grant authorizes identity for roomID when an accepted invitation created
// that room and names identity as one of its parties.
func (s *Invitations) Grant(roomID domain.RoomID, identity domain.Identity) ([]domain.Identity, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	inv, err := s.store.GetInvitationByRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error().Err(err).Str("module", "app.invites").Str("room", string(roomID)).Msg("grant lookup")
		}
		return nil, false
	}
	if identity != inv.FromIdentity && identity != inv.ToIdentity {
		return nil, false
	}
	return []domain.Identity{inv.FromIdentity, inv.ToIdentity}, true
}

// Known records identity in the user directory.
func (s *Invitations) Known(ctx context.Context, identity domain.Identity) error {
	return s.store.TouchUser(ctx, identity, s.now())
}
