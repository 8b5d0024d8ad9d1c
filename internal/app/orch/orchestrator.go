// Package orch wires the coordinator components together and owns their
// lifecycle. Adapters talk to the Orchestrator, never to globals.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/Playroom/internal/app"
	"github.com/dkeye/Playroom/internal/app/snake"
	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/dkeye/Playroom/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	PresenceGrace    time.Duration
	Invite           app.InviteConfig
	InviteSweepEvery time.Duration
	RoomIdleTimeout  time.Duration
	RoomSweepEvery   time.Duration
	Backpressure     string
	Snake            snake.Config
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Invites  *app.Invitations
	Relay    *app.Relay
	UI       *app.UIState
	Games    *snake.Games
	Policy   app.Policy
	Store    storage.Store

	cfg Config
	now func() time.Time
}

// New builds the component graph around store. Nothing runs until Start.
func New(store storage.Store, cfg Config) *Orchestrator {
	reg := app.NewRegistry(cfg.PresenceGrace)
	rooms := app.NewRoomManager(reg)
	invites := app.NewInvitations(store, rooms, reg, reg, cfg.Invite)
	rooms.SetGrantor(invites.Grant)

	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Invites:  invites,
		Relay:    app.NewRelay(rooms),
		UI:       app.NewUIState(rooms),
		Games:    snake.NewGames(cfg.Snake, rooms),
		Policy:   app.PolicyFor(cfg.Backpressure),
		Store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
	rooms.OnDestroy(o.Games.Stop)
	rooms.OnDropped(o.OnDropped)
	reg.OnPresence(nil, o.onOffline)
	return o
}

// Start runs the background sweepers until ctx is done, then stops every
// game loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.every(ctx, o.cfg.InviteSweepEvery, func() {
			if _, err := o.Invites.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("module", "orch").Msg("invitation sweep")
			}
		})
		return nil
	})
	g.Go(func() error {
		o.every(ctx, o.cfg.RoomSweepEvery, func() {
			o.SweepRooms()
		})
		return nil
	})
	err := g.Wait()
	o.Games.StopAll()
	log.Info().Str("module", "orch").Msg("orchestrator stopped")
	return err
}

func (o *Orchestrator) every(ctx context.Context, period time.Duration, fn func()) {
	if period <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// SweepRooms destroys rooms idle longer than the configured timeout.
func (o *Orchestrator) SweepRooms() []domain.RoomID {
	if o.cfg.RoomIdleTimeout <= 0 {
		return nil
	}
	return o.Rooms.SweepIdle(o.now(), o.cfg.RoomIdleTimeout)
}

// OnDropped applies the backpressure policy to failed deliveries.
func (o *Orchestrator) OnDropped(ds []core.Delivery) {
	if o.Policy == nil {
		return
	}
	for _, d := range ds {
		switch o.Policy.OnBackPressure(d) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("conn", string(d.Conn)).Str("user", string(d.Identity)).Msg("kicking slow connection")
			o.Registry.Close(d.Conn)
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) onOffline(identity domain.Identity) {
	for _, roomID := range o.Rooms.RoomsOf(identity) {
		o.Games.Leave(roomID, identity)
	}
	o.Rooms.LeaveAll(identity)
}

// Register binds a connection to identity and records the user as known.
func (o *Orchestrator) Register(ctx context.Context, cid domain.ConnID, identity domain.Identity) error {
	if err := o.Registry.Register(cid, identity); err != nil {
		return err
	}
	if err := o.Invites.Known(ctx, identity); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(identity)).Msg("touch user")
	}
	return nil
}

// Disconnect forgets a closed connection.
func (o *Orchestrator) Disconnect(cid domain.ConnID) {
	o.Registry.Unregister(cid)
}

// Presence answers the external presence reader.
func (o *Orchestrator) Presence(ids []domain.Identity) map[domain.Identity]bool {
	out := make(map[domain.Identity]bool, len(ids))
	for _, id := range ids {
		out[id] = o.Registry.IsOnline(id)
	}
	return out
}

// RoomList is Rooms.List with the game flag filled in.
func (o *Orchestrator) RoomList() []core.RoomInfo {
	list := o.Rooms.List()
	for i := range list {
		list[i].HasGame = o.Games.Has(list[i].ID)
	}
	return list
}
