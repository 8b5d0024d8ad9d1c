package app

import (
	"testing"
	"time"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
)

func newRooms(t *testing.T) (*Registry, *RoomManager) {
	t.Helper()
	reg := NewRegistry(0)
	return reg, NewRoomManager(reg)
}

func TestJoinBroadcastsMembership(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	a := connect(t, reg, "c1", "a")
	b := connect(t, reg, "c2", "b")
	rooms.Create("r1", "a", "b")

	if _, err := rooms.Join("r1", "a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	members, err := rooms.Join("r1", "b")
	if err != nil {
		t.Fatalf("join b: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %v, want [a b]", members)
	}
	got := a.received(t, core.EventRoomMembers)
	if len(got) != 2 {
		t.Fatalf("a membership events = %d, want 2", len(got))
	}
	last := decode[core.RoomMembersPayload](t, got[1])
	if last.RoomID != "r1" || len(last.Members) != 2 {
		t.Fatalf("payload = %+v, want r1 with two members", last)
	}
	if len(b.received(t, core.EventRoomMembers)) != 1 {
		t.Fatal("expected b to receive its own join")
	}
}

func TestJoinRequiresAuthorizationAndRegistration(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	connect(t, reg, "c1", "a")
	connect(t, reg, "c3", "mallory")
	rooms.Create("r1", "a", "b")

	if _, err := rooms.Join("r1", "mallory"); domain.CodeOf(err) != domain.CodeForbidden {
		t.Fatalf("outsider code = %q, want %q", domain.CodeOf(err), domain.CodeForbidden)
	}
	if _, err := rooms.Join("r1", "b"); domain.CodeOf(err) != domain.CodeForbidden {
		t.Fatalf("unregistered code = %q, want %q", domain.CodeOf(err), domain.CodeForbidden)
	}
	if _, err := rooms.Join("missing", "a"); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("missing room code = %q, want %q", domain.CodeOf(err), domain.CodeNotFound)
	}
}

func TestMembersMatchJoinLeaveHistory(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	for _, id := range []domain.Identity{"a", "b", "c"} {
		connect(t, reg, domain.ConnID("conn-"+id), id)
	}
	rooms.Create("r1", "a", "b", "c")

	steps := []struct {
		join bool
		id   domain.Identity
	}{
		{true, "a"}, {true, "b"}, {true, "c"}, {false, "b"}, {true, "b"}, {false, "a"}, {true, "a"}, {false, "c"},
	}
	want := map[domain.Identity]bool{}
	for _, s := range steps {
		if s.join {
			if _, err := rooms.Join("r1", s.id); err != nil {
				t.Fatalf("join %s: %v", s.id, err)
			}
			want[s.id] = true
		} else {
			if err := rooms.Leave("r1", s.id); err != nil {
				t.Fatalf("leave %s: %v", s.id, err)
			}
			delete(want, s.id)
		}
	}
	got, err := rooms.Members("r1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected member %q", id)
		}
	}
}

func TestLastLeaveDestroysRoom(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	connect(t, reg, "c1", "a")
	var destroyed []domain.RoomID
	rooms.OnDestroy(func(id domain.RoomID) { destroyed = append(destroyed, id) })
	rooms.Create("r1", "a")
	if _, err := rooms.Join("r1", "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := rooms.Leave("r1", "a"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(destroyed) != 1 || destroyed[0] != "r1" {
		t.Fatalf("destroyed = %v, want [r1]", destroyed)
	}
	if _, err := rooms.Members("r1"); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("members code = %q, want %q", domain.CodeOf(err), domain.CodeNotFound)
	}
	if err := rooms.Leave("r1", "a"); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("second leave code = %q, want %q", domain.CodeOf(err), domain.CodeNotFound)
	}
}

func TestJoinRecreatesGrantedRoom(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	connect(t, reg, "c1", "a")
	connect(t, reg, "c2", "x")
	rooms.SetGrantor(func(id domain.RoomID, who domain.Identity) ([]domain.Identity, bool) {
		if id == "r1" && (who == "a" || who == "b") {
			return []domain.Identity{"a", "b"}, true
		}
		return nil, false
	})

	if _, err := rooms.Join("r1", "a"); err != nil {
		t.Fatalf("join granted room: %v", err)
	}
	if _, err := rooms.Join("r2", "a"); domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("ungranted code = %q, want %q", domain.CodeOf(err), domain.CodeNotFound)
	}
	if _, err := rooms.Join("r1", "x"); domain.CodeOf(err) != domain.CodeForbidden {
		t.Fatalf("outsider code = %q, want %q", domain.CodeOf(err), domain.CodeForbidden)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	a := connect(t, reg, "c1", "a")
	b := connect(t, reg, "c2", "b")
	rooms.Create("r1", "a", "b")
	for _, id := range []domain.Identity{"a", "b"} {
		if _, err := rooms.Join("r1", id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	res, err := rooms.Broadcast("r1", core.EventScroll, core.ScrollPayload{RoomID: "r1", ScrollTop: 10}, "a")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.SendTo != 1 {
		t.Fatalf("sent to = %d, want 1", res.SendTo)
	}
	if len(a.received(t, core.EventScroll)) != 0 {
		t.Fatal("sender received its own broadcast")
	}
	if len(b.received(t, core.EventScroll)) != 1 {
		t.Fatal("expected b to receive the broadcast")
	}
}

func TestBroadcastReportsDroppedToPolicy(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	connect(t, reg, "c1", "a")
	slow := connect(t, reg, "c2", "b")
	rooms.OnDropped(func(ds []core.Delivery) {
		for _, d := range ds {
			if (KickPolicy{}).OnBackPressure(d) == KickMember {
				reg.Close(d.Conn)
			}
		}
	})
	rooms.Create("r1", "a", "b")
	for _, id := range []domain.Identity{"a", "b"} {
		if _, err := rooms.Join("r1", id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	slow.full = true
	if _, err := rooms.Broadcast("r1", core.EventPong, nil, ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !slow.isClosed() {
		t.Fatal("expected slow connection to be kicked")
	}
}

func TestSweepIdleDestroysStaleRooms(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	a := connect(t, reg, "c1", "a")
	start := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	now := start
	rooms.now = func() time.Time { return now }
	var destroyed []domain.RoomID
	rooms.OnDestroy(func(id domain.RoomID) { destroyed = append(destroyed, id) })

	rooms.Create("old", "a")
	if _, err := rooms.Join("old", "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	now = start.Add(10 * time.Minute)
	rooms.Create("new", "a")

	got := rooms.SweepIdle(now, 5*time.Minute)
	if len(got) != 1 || got[0] != "old" {
		t.Fatalf("swept = %v, want [old]", got)
	}
	if len(destroyed) != 1 {
		t.Fatalf("destroy hooks = %v, want one", destroyed)
	}
	if rooms.IsMember("old", "a") {
		t.Fatal("expected a removed from swept room")
	}
	events := a.received(t, core.EventRoomMembers)
	if last := decode[core.RoomMembersPayload](t, events[len(events)-1]); last.RoomID != "old" || len(last.Members) != 0 {
		t.Fatalf("last membership = %+v, want old emptied", last)
	}
	if list := rooms.List(); len(list) != 1 || list[0].ID != "new" {
		t.Fatalf("list = %+v, want [new]", list)
	}
}

func TestDestroyTellsRemainingMembers(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	a := connect(t, reg, "c1", "a")
	b := connect(t, reg, "c2", "b")
	rooms.Create("r1", "a", "b")
	for _, id := range []domain.Identity{"a", "b"} {
		if _, err := rooms.Join("r1", id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	a.reset()
	b.reset()

	if !rooms.Destroy("r1") {
		t.Fatal("expected destroy to close r1")
	}
	for name, c := range map[string]*fakeConn{"a": a, "b": b} {
		got := c.received(t, core.EventRoomMembers)
		if len(got) != 1 {
			t.Fatalf("%s membership events = %d, want 1", name, len(got))
		}
		p := decode[core.RoomMembersPayload](t, got[0])
		if p.RoomID != "r1" || p.Members == nil || len(p.Members) != 0 {
			t.Fatalf("%s payload = %+v, want r1 with no members", name, p)
		}
	}
	if rooms.Destroy("r1") {
		t.Fatal("expected a second destroy to be a no-op")
	}
}

func TestTouchKeepsRoomOffTheSweep(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	connect(t, reg, "c1", "a")
	start := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	now := start
	rooms.now = func() time.Time { return now }

	rooms.Create("r1", "a")
	if _, err := rooms.Join("r1", "a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	now = start.Add(10 * time.Minute)
	if !rooms.Touch("r1") {
		t.Fatal("touch r1 = false, want true")
	}
	if got := rooms.SweepIdle(now.Add(time.Minute), 5*time.Minute); len(got) != 0 {
		t.Fatalf("swept = %v, want none after touch", got)
	}
	if rooms.Touch("missing") {
		t.Fatal("touch missing = true, want false")
	}
}

func TestLeaveAll(t *testing.T) {
	t.Parallel()

	reg, rooms := newRooms(t)
	connect(t, reg, "c1", "a")
	connect(t, reg, "c2", "b")
	for _, id := range []domain.RoomID{"r1", "r2"} {
		rooms.Create(id, "a", "b")
		for _, who := range []domain.Identity{"a", "b"} {
			if _, err := rooms.Join(id, who); err != nil {
				t.Fatalf("join %s %s: %v", id, who, err)
			}
		}
	}
	rooms.LeaveAll("a")
	if got := rooms.RoomsOf("a"); len(got) != 0 {
		t.Fatalf("rooms of a = %v, want none", got)
	}
	if got := rooms.RoomsOf("b"); len(got) != 2 {
		t.Fatalf("rooms of b = %v, want two", got)
	}
}
