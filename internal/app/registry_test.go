package app

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
)

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0)
	var onlines int
	reg.OnPresence(func(domain.Identity) { onlines++ }, nil)

	c := &fakeConn{}
	reg.Attach("c1", c)
	for i := 0; i < 2; i++ {
		if err := reg.Register("c1", "alice"); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if got := reg.ConnectionsFor("alice"); len(got) != 1 || got[0] != "c1" {
		t.Fatalf("connections = %v, want [c1]", got)
	}
	if onlines != 1 {
		t.Fatalf("online hooks = %d, want 1", onlines)
	}
}

func TestRegisterKeepsOtherTabs(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0)
	a := connect(t, reg, "c1", "alice")
	b := connect(t, reg, "c2", "alice")

	res := reg.Notify("alice", core.EventPong, nil)
	if res.SendTo != 2 {
		t.Fatalf("sent to = %d, want 2", res.SendTo)
	}
	if len(a.received(t, core.EventPong)) != 1 || len(b.received(t, core.EventPong)) != 1 {
		t.Fatal("expected both tabs to receive the event")
	}
}

func TestRegisterUnattachedConnection(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0)
	if err := reg.Register("nope", "alice"); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("code = %q, want %q", domain.CodeOf(err), domain.CodeNotFound)
	}
}

func TestRebindMovesConnection(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0)
	connect(t, reg, "c1", "alice")
	if err := reg.Register("c1", "bob"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if reg.IsRegistered("alice") {
		t.Fatal("expected alice to lose her only connection")
	}
	if id, _ := reg.IdentityOf("c1"); id != "bob" {
		t.Fatalf("identity = %q, want bob", id)
	}
}

func TestPresenceGraceToleratesReconnect(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(30 * time.Millisecond)
	var (
		mu       sync.Mutex
		offlines []domain.Identity
	)
	reg.OnPresence(nil, func(id domain.Identity) {
		mu.Lock()
		offlines = append(offlines, id)
		mu.Unlock()
	})

	connect(t, reg, "c1", "alice")
	reg.Unregister("c1")
	if !reg.IsOnline("alice") {
		t.Fatal("expected alice online during grace")
	}
	if reg.IsRegistered("alice") {
		t.Fatal("expected no live connection during grace")
	}
	connect(t, reg, "c2", "alice")
	time.Sleep(60 * time.Millisecond)
	if !reg.IsOnline("alice") {
		t.Fatal("expected reconnect to cancel the offline timer")
	}

	reg.Unregister("c2")
	deadline := time.Now().Add(time.Second)
	for reg.IsOnline("alice") {
		if time.Now().After(deadline) {
			t.Fatal("alice never went offline")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(offlines) != 1 || offlines[0] != "alice" {
		t.Fatalf("offline hooks = %v, want [alice]", offlines)
	}
}

func TestUnregisterWithoutGraceIsImmediate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0)
	var offline domain.Identity
	reg.OnPresence(nil, func(id domain.Identity) { offline = id })
	connect(t, reg, "c1", "alice")

	id, ok := reg.Unregister("c1")
	if !ok || id != "alice" {
		t.Fatalf("unregister = %q, %v, want alice, true", id, ok)
	}
	if reg.IsOnline("alice") || offline != "alice" {
		t.Fatalf("online = %v offline hook = %q, want offline alice", reg.IsOnline("alice"), offline)
	}
	if _, ok := reg.Unregister("c1"); ok {
		t.Fatal("expected second unregister to be a no-op")
	}
}

func TestSendFrameReportsBackpressure(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(0)
	slow := connect(t, reg, "c1", "alice")
	connect(t, reg, "c2", "alice")
	slow.full = true

	res := reg.SendFrame("alice", core.Frame(`{"type":"pong"}`))
	if res.SendTo != 1 || len(res.Dropped) != 1 {
		t.Fatalf("result = %+v, want one sent and one dropped", res)
	}
	if d := res.Dropped[0]; d.Conn != "c1" || d.Err != core.ErrBackpressure {
		t.Fatalf("dropped = %+v, want c1 backpressure", d)
	}
}
