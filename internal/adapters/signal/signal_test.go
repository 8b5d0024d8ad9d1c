package signal

import (
	"context"
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Playroom/internal/app/orch"
	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/dkeye/Playroom/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newServer(t *testing.T) (*orch.Orchestrator, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	o := orch.New(store, orch.Config{Backpressure: "drop"})
	ctx, cancel := context.WithCancel(context.Background())

	ctl := NewSignalWSController(o, Options{})
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c, domain.Identity(c.Query("as")))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		o.Games.StopAll()
	})
	return o, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func emit(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := core.Encode(event, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil returns the first envelope of event and the types seen before it.
func readUntil(t *testing.T, ws *websocket.Conn, event string) (core.Envelope, []string) {
	t.Helper()
	var seen []string
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s (seen %v): %v", event, seen, err)
		}
		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if env.Type == event {
			return env, seen
		}
		seen = append(seen, env.Type)
	}
}

func registerAs(t *testing.T, ws *websocket.Conn, name string) {
	t.Helper()
	emit(t, ws, core.EventRegister, name)
	env, _ := readUntil(t, ws, core.EventRegistered)
	var p core.RegisteredPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode registered: %v", err)
	}
	if string(p.Username) != name || p.Protocol != core.ProtocolVersion {
		t.Fatalf("registered = %+v, want %s on %s", p, name, core.ProtocolVersion)
	}
}

func TestRegisterPingWhoAmI(t *testing.T) {
	_, url := newServer(t)
	ws := dial(t, url)

	registerAs(t, ws, "alice")
	emit(t, ws, core.EventPing, nil)
	readUntil(t, ws, core.EventPong)

	emit(t, ws, core.EventWhoAmI, nil)
	env, _ := readUntil(t, ws, core.EventWhoAmI)
	var p core.WhoAmIPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode whoami: %v", err)
	}
	if p.Username != "alice" || len(p.Rooms) != 0 {
		t.Fatalf("whoami = %+v, want alice in no rooms", p)
	}
}

func TestRequestsBeforeRegisterAreRejected(t *testing.T) {
	_, url := newServer(t)
	ws := dial(t, url)

	emit(t, ws, core.EventJoinRoom, "room-1")
	env, _ := readUntil(t, ws, core.EventError)
	var p core.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.CodeUnauthenticated || p.Request != core.EventJoinRoom {
		t.Fatalf("error = %+v, want UNAUTHENTICATED for join-room", p)
	}
}

func TestAuthenticatedSocketCannotRegisterAsSomeoneElse(t *testing.T) {
	_, url := newServer(t)
	ws := dial(t, url+"?as=alice")

	readUntil(t, ws, core.EventRegistered)
	emit(t, ws, core.EventRegister, map[string]string{"username": "mallory"})
	env, _ := readUntil(t, ws, core.EventError)
	var p core.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.CodeForbidden {
		t.Fatalf("code = %s, want %s", p.Code, domain.CodeForbidden)
	}
}

func TestVoiceOfferRelayedToPeerOnly(t *testing.T) {
	o, url := newServer(t)
	alice := dial(t, url)
	bob := dial(t, url)
	registerAs(t, alice, "alice")
	registerAs(t, bob, "bob")

	ctx := context.Background()
	inv, err := o.Invites.Create(ctx, "alice", "bob", "Snake", "")
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	readUntil(t, bob, core.EventNewInvite)
	roomID, err := o.Invites.Accept(ctx, inv.ID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	readUntil(t, alice, core.EventInviteAccepted)

	emit(t, alice, core.EventVoiceOffer, map[string]any{"offer": map[string]string{"type": "offer", "sdp": "unrouted"}})
	emit(t, alice, core.EventVoiceOffer, map[string]any{"roomId": roomID, "offer": map[string]string{"type": "offer", "sdp": "v=0"}})

	env, _ := readUntil(t, bob, core.EventVoiceOffer)
	var got struct {
		RoomID domain.RoomID `json:"roomId"`
		Offer  struct {
			Type string `json:"type"`
			SDP  string `json:"sdp"`
		} `json:"offer"`
	}
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if got.RoomID != roomID || got.Offer.SDP != "v=0" {
		t.Fatalf("offer = %+v, want the valid offer verbatim", got)
	}

	emit(t, alice, core.EventPing, nil)
	_, seen := readUntil(t, alice, core.EventPong)
	for _, typ := range seen {
		if typ == core.EventVoiceOffer {
			t.Fatal("sender received its own offer")
		}
	}
}

func TestGameSelectedLoserGetsError(t *testing.T) {
	o, url := newServer(t)
	alice := dial(t, url)
	bob := dial(t, url)
	registerAs(t, alice, "alice")
	registerAs(t, bob, "bob")

	ctx := context.Background()
	inv, err := o.Invites.Create(ctx, "alice", "bob", "Chess", "")
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	roomID, err := o.Invites.Accept(ctx, inv.ID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	emit(t, alice, core.EventGameSelected, map[string]any{"roomId": roomID, "game": "Chess"})
	readUntil(t, bob, core.EventGameSelected)
	emit(t, bob, core.EventGameSelected, map[string]any{"roomId": roomID, "game": "Ludo"})

	env, _ := readUntil(t, bob, core.EventError)
	var p core.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.CodeAlreadyDecided {
		t.Fatalf("code = %s, want %s", p.Code, domain.CodeAlreadyDecided)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	o, url := newServer(t)
	ws := dial(t, url)
	registerAs(t, ws, "alice")
	if !o.Registry.IsRegistered("alice") {
		t.Fatal("expected alice registered")
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for o.Registry.IsRegistered("alice") {
		if time.Now().After(deadline) {
			t.Fatal("alice still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScrollOffset(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     float64
		want   int
		wantOK bool
	}{
		{120.4, 120, true},
		{120.5, 121, true},
		{-3, 0, true},
		{1e300, math.MaxInt32, true},
		{-1e300, 0, true},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{math.Inf(-1), 0, false},
	}
	for _, tc := range cases {
		got, ok := scrollOffset(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("scrollOffset(%v) = %d, %v, want %d, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
