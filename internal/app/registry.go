package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	conn     core.SignalConnection
	identity domain.Identity
}

// Registry maps identities to their live connections and derives presence.
// An identity stays online while it holds at least one connection, and for
// a grace period after the last one closes.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnID]*connEntry
	byUser map[domain.Identity]map[domain.ConnID]struct{}
	online map[domain.Identity]struct{}
	timers map[domain.Identity]*time.Timer
	gen    map[domain.Identity]uint64
	grace  time.Duration
	hooks  presenceHooks
}

type presenceHooks struct {
	online  func(domain.Identity)
	offline func(domain.Identity)
}

func NewRegistry(grace time.Duration) *Registry {
	return &Registry{
		conns:  make(map[domain.ConnID]*connEntry),
		byUser: make(map[domain.Identity]map[domain.ConnID]struct{}),
		online: make(map[domain.Identity]struct{}),
		timers: make(map[domain.Identity]*time.Timer),
		gen:    make(map[domain.Identity]uint64),
		grace:  grace,
	}
}

// OnPresence installs presence callbacks. They run outside the registry lock.
func (r *Registry) OnPresence(online, offline func(domain.Identity)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = presenceHooks{online: online, offline: offline}
}

// Attach records a freshly opened transport that is not bound to anyone yet.
func (r *Registry) Attach(cid domain.ConnID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{conn: conn}
	log.Debug().Str("module", "app.registry").Str("conn", string(cid)).Msg("attached connection")
}

// Register binds cid to identity. Registering the same pair again is a no-op;
// other connections of the identity are kept.
func (r *Registry) Register(cid domain.ConnID, identity domain.Identity) error {
	var fire []func()

	r.mu.Lock()
	e, ok := r.conns[cid]
	if !ok {
		r.mu.Unlock()
		return domain.Errorf(domain.CodeNotFound, "connection %s not attached", cid)
	}
	if e.identity == identity {
		r.mu.Unlock()
		return nil
	}
	if e.identity != "" {
		fire = append(fire, r.detachLocked(cid, e.identity)...)
	}
	e.identity = identity
	set, ok := r.byUser[identity]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		r.byUser[identity] = set
	}
	set[cid] = struct{}{}
	r.cancelOfflineLocked(identity)
	if _, was := r.online[identity]; !was {
		r.online[identity] = struct{}{}
		if h := r.hooks.online; h != nil {
			fire = append(fire, func() { h(identity) })
		}
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(identity)).Msg("registered connection")
	for _, f := range fire {
		f()
	}
	return nil
}

// Unregister forgets cid. When it was the identity's last connection the
// identity goes offline after the grace period.
func (r *Registry) Unregister(cid domain.ConnID) (domain.Identity, bool) {
	r.mu.Lock()
	e, ok := r.conns[cid]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.conns, cid)
	var fire []func()
	if e.identity != "" {
		fire = r.detachLocked(cid, e.identity)
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(e.identity)).Msg("unregistered connection")
	for _, f := range fire {
		f()
	}
	return e.identity, e.identity != ""
}

func (r *Registry) detachLocked(cid domain.ConnID, identity domain.Identity) []func() {
	set := r.byUser[identity]
	delete(set, cid)
	if len(set) > 0 {
		return nil
	}
	delete(r.byUser, identity)
	if r.grace <= 0 {
		return r.goOfflineLocked(identity)
	}
	r.gen[identity]++
	gen := r.gen[identity]
	r.timers[identity] = time.AfterFunc(r.grace, func() { r.expire(identity, gen) })
	return nil
}

func (r *Registry) expire(identity domain.Identity, gen uint64) {
	r.mu.Lock()
	if r.gen[identity] != gen || len(r.byUser[identity]) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.timers, identity)
	fire := r.goOfflineLocked(identity)
	r.mu.Unlock()
	for _, f := range fire {
		f()
	}
}

func (r *Registry) goOfflineLocked(identity domain.Identity) []func() {
	if _, was := r.online[identity]; !was {
		return nil
	}
	delete(r.online, identity)
	delete(r.gen, identity)
	log.Info().Str("module", "app.registry").Str("user", string(identity)).Msg("identity offline")
	if h := r.hooks.offline; h != nil {
		return []func(){func() { h(identity) }}
	}
	return nil
}

func (r *Registry) cancelOfflineLocked(identity domain.Identity) {
	if t, ok := r.timers[identity]; ok {
		t.Stop()
		delete(r.timers, identity)
	}
	r.gen[identity]++
}

// IdentityOf returns the identity bound to cid, if any.
func (r *Registry) IdentityOf(cid domain.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.identity == "" {
		return "", false
	}
	return e.identity, true
}

// ConnectionsFor returns the connection ids currently bound to identity.
func (r *Registry) ConnectionsFor(identity domain.Identity) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(r.byUser[identity]))
	for cid := range r.byUser[identity] {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline reports presence as seen by the external presence reader.
func (r *Registry) IsOnline(identity domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[identity]
	return ok
}

// IsRegistered reports whether identity holds a live connection right now.
func (r *Registry) IsRegistered(identity domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[identity]) > 0
}

// Send delivers an already encoded frame to one connection.
func (r *Registry) Send(cid domain.ConnID, frame core.Frame) error {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return core.ErrConnClosed
	}
	return e.conn.TrySend(frame)
}

// SendFrame delivers frame to every connection of identity without blocking.
func (r *Registry) SendFrame(identity domain.Identity, frame core.Frame) core.PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := core.PublishResult{}
	for cid := range r.byUser[identity] {
		if err := r.conns[cid].conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, core.Delivery{Identity: identity, Conn: cid, Err: err})
			continue
		}
		res.SendTo++
	}
	return res
}

// Notify implements core.Notifier.
func (r *Registry) Notify(identity domain.Identity, event string, payload any) core.PublishResult {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("event", event).Msg("encode notification")
		return core.PublishResult{}
	}
	res := r.SendFrame(identity, frame)
	log.Debug().Str("module", "app.registry").Str("user", string(identity)).Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("notify result")
	return res
}

// Close shuts the transport of cid. The adapter observes the close and
// unregisters it.
func (r *Registry) Close(cid domain.ConnID) {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if ok {
		e.conn.Close()
	}
}
