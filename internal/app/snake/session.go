package snake

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseRunning Phase = "running"
	PhaseOver    Phase = "over"
)

const (
	EventState    = core.EventSnakeState
	EventGameOver = core.EventSnakeGameOver
)

type Config struct {
	GridSize      int
	InitialLength int
	// TickInterval of zero disables the loop; ticks then happen only
	// through Session.Step.
	TickInterval time.Duration
	// Rand seeds food placement. Nil uses a random seed.
	Rand *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.GridSize < 8 {
		c.GridSize = 20
	}
	if c.InitialLength <= 0 {
		c.InitialLength = 3
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

type player struct {
	body      []Position
	direction Direction
	pending   Direction
	alive     bool
	left      bool
	score     int
	color     string
}

// PlayerView is the wire form of one player.
type PlayerView struct {
	Snake     []Position `json:"snake"`
	Direction Direction  `json:"direction"`
	Alive     bool       `json:"alive"`
	Score     int        `json:"score"`
	Color     string     `json:"color"`
}

type StatePayload struct {
	RoomID  domain.RoomID                  `json:"roomId"`
	Players map[domain.Identity]PlayerView `json:"players"`
	Food    Position                       `json:"food"`
	Tick    int                            `json:"tick"`
	Phase   Phase                          `json:"phase"`
}

// GameOverPayload carries a nil Winner on a draw.
type GameOverPayload struct {
	RoomID  domain.RoomID                  `json:"roomId"`
	Winner  *domain.Identity               `json:"winner"`
	Players map[domain.Identity]PlayerView `json:"players"`
}

type ticker struct {
	stop chan struct{}
	done chan struct{}
}

// Session is the authoritative game of one room. Clients submit directions
// only; every position is computed here.
type Session struct {
	roomID domain.RoomID
	cfg    Config
	out    core.Broadcaster

	mu      sync.Mutex
	players map[domain.Identity]*player
	order   []domain.Identity
	food    Position
	tick    int
	phase   Phase
	loop    *ticker
}

func NewSession(roomID domain.RoomID, cfg Config, out core.Broadcaster) *Session {
	s := &Session{
		roomID:  roomID,
		cfg:     cfg.withDefaults(),
		out:     out,
		players: make(map[domain.Identity]*player),
		phase:   PhaseWaiting,
	}
	s.resetFoodLocked()
	return s
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Join adds identity to the board. The match starts once two players are
// present. Joining a match already in progress seats the player for the
// next restart.
func (s *Session) Join(identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[identity]; ok {
		if p.left {
			p.left = false
			if s.phase == PhaseWaiting {
				p.alive = true
			}
		}
		s.broadcastStateLocked()
		return nil
	}
	if len(s.order) >= MaxPlayers {
		return domain.Errorf(domain.CodeInvalidArgument, "game in room %s is full", s.roomID)
	}
	slot := len(s.order)
	body, dir := spawn(slot, s.cfg.GridSize, s.cfg.InitialLength)
	if s.phase != PhaseWaiting {
		body = []Position{}
	}
	s.players[identity] = &player{
		body:      body,
		direction: dir,
		alive:     s.phase == PhaseWaiting,
		color:     palette[slot%len(palette)],
	}
	s.order = append(s.order, identity)
	log.Info().Str("module", "snake").Str("room", string(s.roomID)).Str("user", string(identity)).Int("players", len(s.order)).Msg("player joined")

	if s.phase == PhaseWaiting && s.activeLocked() >= 2 {
		s.startLocked()
	}
	s.broadcastStateLocked()
	return nil
}

func (s *Session) activeLocked() int {
	n := 0
	for _, p := range s.players {
		if !p.left {
			n++
		}
	}
	return n
}

// SetDirection queues a heading for the next tick. Anything invalid is
// ignored: unknown names, reversals, dead players and idle sessions.
func (s *Session) SetDirection(identity domain.Identity, raw string) {
	dir, ok := ParseDirection(raw)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRunning {
		return
	}
	p, ok := s.players[identity]
	if !ok || !p.alive || p.left {
		return
	}
	if dir == p.direction.Opposite() {
		return
	}
	p.pending = dir
}

// Leave forfeits the player's snake.
func (s *Session) Leave(identity domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[identity]
	if !ok {
		return
	}
	if s.phase == PhaseWaiting {
		delete(s.players, identity)
		s.order = removeIdentity(s.order, identity)
		return
	}
	p.left = true
	p.alive = false
	p.pending = ""
	log.Info().Str("module", "snake").Str("room", string(s.roomID)).Str("user", string(identity)).Msg("player forfeited")
}

// Restart clears the board after a finished match. Scores reset, players
// who left are dropped and the match begins again with two or more players.
func (s *Session) Restart(by domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[by]; !ok {
		return domain.Errorf(domain.CodeForbidden, "%s is not playing in room %s", by, s.roomID)
	}
	if s.phase == PhaseRunning {
		return domain.Errorf(domain.CodeInvalidArgument, "match in room %s is still running", s.roomID)
	}

	kept := make([]domain.Identity, 0, len(s.order))
	for _, id := range s.order {
		if !s.players[id].left {
			kept = append(kept, id)
		}
	}
	s.players = make(map[domain.Identity]*player, len(kept))
	s.order = kept
	for slot, id := range kept {
		body, dir := spawn(slot, s.cfg.GridSize, s.cfg.InitialLength)
		s.players[id] = &player{body: body, direction: dir, alive: true, color: palette[slot%len(palette)]}
	}
	s.tick = 0
	s.phase = PhaseWaiting
	s.resetFoodLocked()
	log.Info().Str("module", "snake").Str("room", string(s.roomID)).Str("user", string(by)).Int("players", len(kept)).Msg("game restarted")

	if len(kept) >= 2 {
		s.startLocked()
	}
	s.broadcastStateLocked()
	return nil
}

func (s *Session) startLocked() {
	s.phase = PhaseRunning
	if s.cfg.TickInterval <= 0 || s.loop != nil {
		return
	}
	t := &ticker{stop: make(chan struct{}), done: make(chan struct{})}
	s.loop = t
	go s.run(t)
}

func (s *Session) run(t *ticker) {
	defer close(t.done)
	tk := time.NewTicker(s.cfg.TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-tk.C:
			s.mu.Lock()
			if s.loop != t {
				s.mu.Unlock()
				return
			}
			s.stepLocked()
			s.mu.Unlock()
		}
	}
}

// Stop halts the tick loop and waits for it. No tick runs after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	t := s.loop
	s.loop = nil
	s.mu.Unlock()
	if t != nil {
		close(t.stop)
		<-t.done
	}
}

// Step runs one tick.
func (s *Session) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLocked()
}

func (s *Session) stepLocked() {
	if s.phase != PhaseRunning {
		return
	}

	var alive []domain.Identity
	for _, id := range s.order {
		if s.players[id].alive {
			alive = append(alive, id)
		}
	}
	if len(alive) <= 1 {
		s.finishLocked(alive)
		return
	}

	for _, id := range alive {
		p := s.players[id]
		if p.pending != "" {
			p.direction = p.pending
			p.pending = ""
		}
	}

	food := s.food
	dead := make(map[domain.Identity]bool)
	ate := make(map[domain.Identity]bool)
	next := make(map[domain.Identity][]Position, len(alive))
	for _, id := range alive {
		p := s.players[id]
		head := p.body[0].step(p.direction)
		if !head.inside(s.cfg.GridSize) {
			dead[id] = true
			next[id] = p.body
			continue
		}
		body := make([]Position, 0, len(p.body)+1)
		body = append(body, head)
		if head == food {
			ate[id] = true
			body = append(body, p.body...)
		} else {
			body = append(body, p.body[:len(p.body)-1]...)
		}
		next[id] = body
	}

	for _, id := range alive {
		if dead[id] {
			continue
		}
		head := next[id][0]
		for _, other := range alive {
			segs := next[other]
			start := 0
			if other == id {
				start = 1
			}
			if collides(head, segs[start:]) {
				dead[id] = true
				break
			}
		}
	}

	respawn := false
	for _, id := range alive {
		p := s.players[id]
		p.body = next[id]
		if dead[id] {
			p.alive = false
			log.Debug().Str("module", "snake").Str("room", string(s.roomID)).Str("user", string(id)).Int("tick", s.tick+1).Msg("snake died")
			continue
		}
		if ate[id] {
			p.score++
			respawn = true
		}
	}
	if respawn {
		s.placeFoodLocked()
	}
	s.tick++
	// State goes out on every tick, food moved or not; clients redraw from it.
	s.broadcastStateLocked()
}

func collides(p Position, segs []Position) bool {
	for _, c := range segs {
		if c == p {
			return true
		}
	}
	return false
}

func (s *Session) finishLocked(alive []domain.Identity) {
	s.phase = PhaseOver
	if t := s.loop; t != nil {
		s.loop = nil
		close(t.stop)
	}
	payload := GameOverPayload{RoomID: s.roomID, Players: s.viewLocked()}
	if len(alive) == 1 {
		winner := alive[0]
		payload.Winner = &winner
	}
	if _, err := s.out.Broadcast(s.roomID, EventGameOver, payload, ""); err != nil {
		log.Debug().Err(err).Str("module", "snake").Str("room", string(s.roomID)).Msg("broadcast game over")
	}
	ev := log.Info().Str("module", "snake").Str("room", string(s.roomID)).Int("tick", s.tick)
	if payload.Winner != nil {
		ev = ev.Str("winner", string(*payload.Winner))
	}
	ev.Msg("game over")
}

func (s *Session) occupiedLocked() map[Position]struct{} {
	occ := make(map[Position]struct{})
	for _, p := range s.players {
		for _, c := range p.body {
			occ[c] = struct{}{}
		}
	}
	return occ
}

func (s *Session) resetFoodLocked() {
	if _, taken := s.occupiedLocked()[InitialFood]; !taken && InitialFood.inside(s.cfg.GridSize) {
		s.food = InitialFood
		return
	}
	s.placeFoodLocked()
}

func (s *Session) placeFoodLocked() {
	if p, ok := placeFood(s.cfg.Rand, s.cfg.GridSize, s.occupiedLocked()); ok {
		s.food = p
	}
}

func (s *Session) viewLocked() map[domain.Identity]PlayerView {
	out := make(map[domain.Identity]PlayerView, len(s.players))
	for id, p := range s.players {
		body := make([]Position, len(p.body))
		copy(body, p.body)
		out[id] = PlayerView{Snake: body, Direction: p.direction, Alive: p.alive, Score: p.score, Color: p.color}
	}
	return out
}

// Snapshot returns the current state as broadcast to clients.
func (s *Session) Snapshot() StatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() StatePayload {
	return StatePayload{RoomID: s.roomID, Players: s.viewLocked(), Food: s.food, Tick: s.tick, Phase: s.phase}
}

func (s *Session) broadcastStateLocked() {
	if _, err := s.out.Broadcast(s.roomID, EventState, s.stateLocked(), ""); err != nil {
		log.Debug().Err(err).Str("module", "snake").Str("room", string(s.roomID)).Msg("broadcast state")
	}
}

// Players lists everyone seated at the board in join order.
func (s *Session) Players() []domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Identity, len(s.order))
	copy(out, s.order)
	return out
}

func removeIdentity(list []domain.Identity, id domain.Identity) []domain.Identity {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
