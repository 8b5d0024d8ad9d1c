package snake

import (
	"sync"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Games holds at most one Session per room.
type Games struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*Session
	cfg      Config
	out      core.Broadcaster
}

func NewGames(cfg Config, out core.Broadcaster) *Games {
	return &Games{
		sessions: make(map[domain.RoomID]*Session),
		cfg:      cfg,
		out:      out,
	}
}

func (g *Games) get(roomID domain.RoomID) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[roomID]
	return s, ok
}

// Join seats identity, creating the room's session on first use.
func (g *Games) Join(roomID domain.RoomID, identity domain.Identity) error {
	g.mu.Lock()
	s, ok := g.sessions[roomID]
	if !ok {
		s = NewSession(roomID, g.cfg, g.out)
		g.sessions[roomID] = s
		log.Info().Str("module", "snake").Str("room", string(roomID)).Msg("session created")
	}
	g.mu.Unlock()
	return s.Join(identity)
}

// Move is a no-op for rooms without a session.
func (g *Games) Move(roomID domain.RoomID, identity domain.Identity, direction string) {
	if s, ok := g.get(roomID); ok {
		s.SetDirection(identity, direction)
	}
}

func (g *Games) Restart(roomID domain.RoomID, identity domain.Identity) error {
	s, ok := g.get(roomID)
	if !ok {
		return domain.Errorf(domain.CodeNotFound, "no game in room %s", roomID)
	}
	return s.Restart(identity)
}

func (g *Games) Leave(roomID domain.RoomID, identity domain.Identity) {
	if s, ok := g.get(roomID); ok {
		s.Leave(identity)
	}
}

// Stop ends the room's session and waits for its loop to exit.
func (g *Games) Stop(roomID domain.RoomID) {
	g.mu.Lock()
	s, ok := g.sessions[roomID]
	delete(g.sessions, roomID)
	g.mu.Unlock()
	if ok {
		s.Stop()
		log.Info().Str("module", "snake").Str("room", string(roomID)).Msg("session stopped")
	}
}

// StopAll stops every session, for shutdown.
func (g *Games) StopAll() {
	g.mu.Lock()
	ids := make([]domain.RoomID, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	for _, id := range ids {
		g.Stop(id)
	}
}

func (g *Games) Has(roomID domain.RoomID) bool {
	_, ok := g.get(roomID)
	return ok
}

func (g *Games) Session(roomID domain.RoomID) (*Session, bool) {
	return g.get(roomID)
}
