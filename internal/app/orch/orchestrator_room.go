package orch

import (
	"encoding/json"

	"github.com/dkeye/Playroom/internal/app"
	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinRoom adds identity to a room and catches the joiner up on state the
// room already holds.
func (o *Orchestrator) JoinRoom(roomID domain.RoomID, identity domain.Identity) ([]domain.Identity, error) {
	members, err := o.Rooms.Join(roomID, identity)
	if err != nil {
		return nil, err
	}
	if st, err := o.UI.Snapshot(roomID); err == nil && st.SelectedGame != "" {
		o.Registry.Notify(identity, core.EventGameSelected, core.GameSelectedPayload{
			RoomID: roomID, Game: st.SelectedGame, By: st.SelectedBy, Final: true,
		})
	}
	if s, ok := o.Games.Session(roomID); ok {
		o.Registry.Notify(identity, core.EventSnakeState, s.Snapshot())
	}
	return members, nil
}

// LeaveRoom forfeits any game first so no input of identity is applied
// after it left.
func (o *Orchestrator) LeaveRoom(roomID domain.RoomID, identity domain.Identity) error {
	o.Games.Leave(roomID, identity)
	return o.Rooms.Leave(roomID, identity)
}

func (o *Orchestrator) ResetRoom(roomID domain.RoomID, identity domain.Identity) error {
	return o.UI.Reset(roomID, identity)
}

// Signal relays a voice-* payload. Failures are only logged.
func (o *Orchestrator) Signal(roomID domain.RoomID, from domain.Identity, kind app.SignalKind, payload json.RawMessage) {
	if _, err := o.Relay.Relay(roomID, from, kind, payload); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("room", string(roomID)).Str("user", string(from)).Str("kind", string(kind)).Msg("signal not relayed")
	}
}

// SnakeJoin seats a room member in the room's game.
func (o *Orchestrator) SnakeJoin(roomID domain.RoomID, identity domain.Identity) error {
	if !o.Rooms.IsMember(roomID, identity) {
		return domain.Errorf(domain.CodeNotAMember, "%s is not in room %s", identity, roomID)
	}
	if err := o.Games.Join(roomID, identity); err != nil {
		return err
	}
	// The caller may have left, or the room been destroyed, since the check.
	if !o.Rooms.IsMember(roomID, identity) {
		o.undoSnakeJoin(roomID, identity)
		return domain.Errorf(domain.CodeNotAMember, "%s is not in room %s", identity, roomID)
	}
	return nil
}

// undoSnakeJoin unseats identity, stopping the session only once the room is gone.
func (o *Orchestrator) undoSnakeJoin(roomID domain.RoomID, identity domain.Identity) {
	if _, err := o.Rooms.Members(roomID); domain.CodeOf(err) == domain.CodeNotFound {
		o.Games.Stop(roomID)
		return
	}
	o.Games.Leave(roomID, identity)
}

// SnakeMove ignores input from non-members. Steering counts as room
// activity, so a match in progress is never swept as idle.
func (o *Orchestrator) SnakeMove(roomID domain.RoomID, identity domain.Identity, direction string) {
	if !o.Rooms.IsMember(roomID, identity) {
		return
	}
	o.Games.Move(roomID, identity, direction)
	o.Rooms.Touch(roomID)
}

func (o *Orchestrator) SnakeRestart(roomID domain.RoomID, identity domain.Identity) error {
	if !o.Rooms.IsMember(roomID, identity) {
		return domain.Errorf(domain.CodeNotAMember, "%s is not in room %s", identity, roomID)
	}
	return o.Games.Restart(roomID, identity)
}
