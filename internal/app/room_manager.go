package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connections is the part of the registry rooms fan out through.
type Connections interface {
	IsRegistered(identity domain.Identity) bool
	SendFrame(identity domain.Identity, frame core.Frame) core.PublishResult
}

// Grantor reports who may use a room that is not currently active, so a room
// released by its last member can be entered again.
type Grantor func(roomID domain.RoomID, identity domain.Identity) (allowed []domain.Identity, ok bool)

// Room is a small group of identities. All of its fields are guarded by mu;
// membership and shared state change only while it is held.
type Room struct {
	id        domain.RoomID
	createdAt time.Time

	mu         sync.Mutex
	members    map[domain.Identity]struct{}
	allowed    map[domain.Identity]struct{}
	state      RoomState
	lastActive time.Time
	closed     bool
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) membersLocked() []domain.Identity {
	out := make([]domain.Identity, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoomManager owns the set of active rooms.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room

	conns     Connections
	grant     Grantor
	now       func() time.Time
	onDestroy []func(domain.RoomID)
	onDropped func([]core.Delivery)
}

func NewRoomManager(conns Connections) *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.RoomID]*Room),
		conns: conns,
		now:   time.Now,
	}
}

// SetGrantor installs the authorization source for re-creating rooms.
func (m *RoomManager) SetGrantor(g Grantor) { m.grant = g }

// OnDestroy registers a hook run synchronously before a room is freed.
func (m *RoomManager) OnDestroy(fn func(domain.RoomID)) { m.onDestroy = append(m.onDestroy, fn) }

// OnDropped receives deliveries that failed during a broadcast.
func (m *RoomManager) OnDropped(fn func([]core.Delivery)) { m.onDropped = fn }

// Create returns the room id, creating it when absent. allowed identities are
// added to the room's authorization set.
func (m *RoomManager) Create(id domain.RoomID, allowed ...domain.Identity) *Room {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if !ok {
		now := m.now()
		room = &Room{
			id:         id,
			createdAt:  now,
			members:    make(map[domain.Identity]struct{}),
			allowed:    make(map[domain.Identity]struct{}),
			state:      newRoomState(),
			lastActive: now,
		}
		m.rooms[id] = room
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	}
	m.mu.Unlock()

	room.mu.Lock()
	for _, a := range allowed {
		room.allowed[a] = struct{}{}
	}
	room.mu.Unlock()
	return room
}

func (m *RoomManager) get(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Join adds identity to the room and broadcasts the new membership to every
// member. An absent room is created when the grantor authorizes the caller.
func (m *RoomManager) Join(id domain.RoomID, identity domain.Identity) ([]domain.Identity, error) {
	if id == "" {
		return nil, domain.Errorf(domain.CodeInvalidArgument, "room id is required")
	}
	if !m.conns.IsRegistered(identity) {
		return nil, domain.Errorf(domain.CodeForbidden, "%s is not registered", identity)
	}
	for attempt := 0; attempt < 2; attempt++ {
		room, ok := m.get(id)
		if !ok {
			if m.grant == nil {
				return nil, domain.Errorf(domain.CodeNotFound, "room %s not found", id)
			}
			allowed, granted := m.grant(id, identity)
			if !granted {
				return nil, domain.Errorf(domain.CodeNotFound, "room %s not found", id)
			}
			room = m.Create(id, allowed...)
		}

		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		if _, ok := room.allowed[identity]; !ok {
			room.mu.Unlock()
			return nil, domain.Errorf(domain.CodeForbidden, "%s may not join room %s", identity, id)
		}
		room.members[identity] = struct{}{}
		members := room.membersLocked()
		dropped := m.broadcastLocked(room, core.EventRoomMembers, core.RoomMembersPayload{RoomID: id, Members: members}, "")
		room.mu.Unlock()

		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("user", string(identity)).Int("members", len(members)).Msg("member joined")
		m.dropped(dropped)
		return members, nil
	}
	return nil, domain.Errorf(domain.CodeNotFound, "room %s not found", id)
}

// Leave removes identity. The room is destroyed when nobody is left.
func (m *RoomManager) Leave(id domain.RoomID, identity domain.Identity) error {
	room, ok := m.get(id)
	if !ok {
		return domain.Errorf(domain.CodeNotFound, "room %s not found", id)
	}
	room.mu.Lock()
	if _, ok := room.members[identity]; !ok || room.closed {
		room.mu.Unlock()
		return domain.Errorf(domain.CodeNotAMember, "%s is not in room %s", identity, id)
	}
	delete(room.members, identity)
	members := room.membersLocked()
	var dropped []core.Delivery
	if len(members) == 0 {
		room.closed = true
	} else {
		room.lastActive = m.now()
		dropped = m.broadcastLocked(room, core.EventRoomMembers, core.RoomMembersPayload{RoomID: id, Members: members}, "")
	}
	room.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("user", string(identity)).Int("members", len(members)).Msg("member left")
	m.dropped(dropped)
	if len(members) == 0 {
		m.free(room)
	}
	return nil
}

// LeaveAll removes identity from every room it belongs to.
func (m *RoomManager) LeaveAll(identity domain.Identity) {
	for _, id := range m.RoomsOf(identity) {
		if err := m.Leave(id, identity); err != nil {
			log.Debug().Err(err).Str("module", "app.rooms").Str("room", string(id)).Str("user", string(identity)).Msg("leave all")
		}
	}
}

// Destroy closes a room regardless of its members. Anyone still inside
// gets an empty room-members so they stop relaying into it.
func (m *RoomManager) Destroy(id domain.RoomID) bool {
	room, ok := m.get(id)
	if !ok {
		return false
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return false
	}
	var dropped []core.Delivery
	if len(room.members) > 0 {
		dropped = m.broadcastLocked(room, core.EventRoomMembers, core.RoomMembersPayload{RoomID: id, Members: []domain.Identity{}}, "")
	}
	room.closed = true
	room.members = make(map[domain.Identity]struct{})
	room.mu.Unlock()
	m.dropped(dropped)
	m.free(room)
	return true
}

// free runs destroy hooks, then drops the room from the index. Hooks run
// without the room lock so a game loop broadcasting into it can finish.
func (m *RoomManager) free(room *Room) {
	for _, fn := range m.onDestroy {
		fn(room.id)
	}
	m.mu.Lock()
	if cur, ok := m.rooms[room.id]; ok && cur == room {
		delete(m.rooms, room.id)
	}
	m.mu.Unlock()
	log.Info().Str("module", "app.rooms").Str("room", string(room.id)).Msg("room destroyed")
}

// Members returns the sorted member set of a room.
func (m *RoomManager) Members(id domain.RoomID) ([]domain.Identity, error) {
	room, ok := m.get(id)
	if !ok {
		return nil, domain.Errorf(domain.CodeNotFound, "room %s not found", id)
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return nil, domain.Errorf(domain.CodeNotFound, "room %s not found", id)
	}
	return room.membersLocked(), nil
}

// IsMember reports whether identity is currently in the room.
func (m *RoomManager) IsMember(id domain.RoomID, identity domain.Identity) bool {
	room, ok := m.get(id)
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	_, member := room.members[identity]
	return member && !room.closed
}

// RoomsOf lists the rooms identity is a member of.
func (m *RoomManager) RoomsOf(identity domain.Identity) []domain.RoomID {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	var out []domain.RoomID
	for _, r := range rooms {
		r.mu.Lock()
		if _, ok := r.members[identity]; ok && !r.closed {
			out = append(out, r.id)
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Broadcast delivers event to every connection of every member except
// exclude. Delivery never blocks; full or closed connections are skipped.
func (m *RoomManager) Broadcast(id domain.RoomID, event string, payload any, exclude domain.Identity) (core.PublishResult, error) {
	var res core.PublishResult
	err := m.withRoom(id, func(room *Room) error {
		frame, err := core.Encode(event, payload)
		if err != nil {
			return err
		}
		res = m.sendLocked(room, frame, exclude)
		return nil
	})
	if err != nil {
		return res, err
	}
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	m.dropped(res.Dropped)
	return res, nil
}

// Publish broadcasts on behalf of from, which must be a member of the room.
// The sender never receives its own event.
func (m *RoomManager) Publish(id domain.RoomID, from domain.Identity, event string, payload any) (core.PublishResult, error) {
	var res core.PublishResult
	err := m.withMember(id, from, func(room *Room) error {
		frame, err := core.Encode(event, payload)
		if err != nil {
			return err
		}
		res = m.sendLocked(room, frame, from)
		return nil
	})
	if err != nil {
		return res, err
	}
	m.dropped(res.Dropped)
	return res, nil
}

// withMember is withRoom restricted to current members. An absent room
// reports NotAMember as well.
func (m *RoomManager) withMember(id domain.RoomID, identity domain.Identity, fn func(*Room) error) error {
	room, ok := m.get(id)
	if !ok {
		return domain.Errorf(domain.CodeNotAMember, "%s is not in room %s", identity, id)
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if _, member := room.members[identity]; !member || room.closed {
		return domain.Errorf(domain.CodeNotAMember, "%s is not in room %s", identity, id)
	}
	room.lastActive = m.now()
	return fn(room)
}

// withRoom runs fn under the room lock. Everything that mutates a room goes
// through here, so work on one room is serialized while rooms stay
// independent of each other.
func (m *RoomManager) withRoom(id domain.RoomID, fn func(*Room) error) error {
	room, ok := m.get(id)
	if !ok {
		return domain.Errorf(domain.CodeNotFound, "room %s not found", id)
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return domain.Errorf(domain.CodeNotFound, "room %s not found", id)
	}
	room.lastActive = m.now()
	return fn(room)
}

func (m *RoomManager) broadcastLocked(room *Room, event string, payload any, exclude domain.Identity) []core.Delivery {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("event", event).Msg("encode broadcast")
		return nil
	}
	return m.sendLocked(room, frame, exclude).Dropped
}

func (m *RoomManager) sendLocked(room *Room, frame core.Frame, exclude domain.Identity) core.PublishResult {
	res := core.PublishResult{}
	for member := range room.members {
		if member == exclude {
			continue
		}
		r := m.conns.SendFrame(member, frame)
		res.SendTo += r.SendTo
		res.Dropped = append(res.Dropped, r.Dropped...)
	}
	return res
}

func (m *RoomManager) dropped(d []core.Delivery) {
	if len(d) > 0 && m.onDropped != nil {
		m.onDropped(d)
	}
}

// Touch marks activity on a room without sending anything. It reports
// whether the room is still open.
func (m *RoomManager) Touch(id domain.RoomID) bool {
	return m.withRoom(id, func(*Room) error { return nil }) == nil
}

// SweepIdle destroys rooms with no activity since now-idle.
func (m *RoomManager) SweepIdle(now time.Time, idle time.Duration) []domain.RoomID {
	m.mu.RLock()
	var stale []domain.RoomID
	for id, r := range m.rooms {
		r.mu.Lock()
		if !r.closed && now.Sub(r.lastActive) > idle {
			stale = append(stale, id)
		}
		r.mu.Unlock()
	}
	m.mu.RUnlock()

	var out []domain.RoomID
	for _, id := range stale {
		if m.Destroy(id) {
			out = append(out, id)
		}
	}
	if len(out) > 0 {
		log.Info().Str("module", "app.rooms").Int("count", len(out)).Msg("idle rooms destroyed")
	}
	return out
}

// List returns a snapshot of active rooms.
func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			members := r.membersLocked()
			out = append(out, core.RoomInfo{ID: r.id, Members: members, MemberCount: len(members), CreatedAt: r.createdAt})
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
