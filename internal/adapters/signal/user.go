package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// usernameOf accepts either a bare "username" string or {"username": ...}.
func usernameOf(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var obj struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(raw, &obj)
	return obj.Username
}

func (ctl *SignalWSController) handleRegister(ctx context.Context, s *wsSession, raw json.RawMessage) {
	name := usernameOf(raw)
	if name == "" && s.authed != "" {
		name = string(s.authed)
	}
	id, err := domain.NewIdentity(name)
	if err != nil {
		ctl.sendError(s, core.EventRegister, err)
		return
	}
	if s.authed != "" && id != s.authed {
		log.Warn().Str("module", "signal").Str("conn", string(s.cid)).Str("authed", string(s.authed)).Str("claimed", string(id)).Msg("register mismatch")
		ctl.sendError(s, core.EventRegister, domain.Errorf(domain.CodeForbidden, "connection is authenticated as %s", s.authed))
		return
	}
	ctl.register(ctx, s, id, core.EventRegister)
}

func (ctl *SignalWSController) register(ctx context.Context, s *wsSession, id domain.Identity, request string) {
	if err := ctl.Orch.Register(ctx, s.cid, id); err != nil {
		ctl.sendError(s, request, err)
		return
	}
	s.identity = id
	ctl.send(s, core.EventRegistered, core.RegisteredPayload{Username: id, Protocol: core.ProtocolVersion})
}

func (ctl *SignalWSController) handleWhoAmI(s *wsSession) {
	rooms := ctl.Orch.Rooms.RoomsOf(s.identity)
	if rooms == nil {
		rooms = []domain.RoomID{}
	}
	ctl.send(s, core.EventWhoAmI, core.WhoAmIPayload{Username: s.identity, Rooms: rooms})
}
