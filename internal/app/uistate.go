package app

import (
	"strings"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// StateKey names one piece of shared room UI state.
type StateKey string

const (
	KeyMusicPlaying StateKey = "music-playing"
	KeyScrollTop    StateKey = "scroll-top"
	KeySelectedGame StateKey = "selected-game"
)

// RoomState is the shared UI state of one room. Music and scroll are
// last-write-wins; the selected game is sticky until a reset.
type RoomState struct {
	MusicPlaying bool                         `json:"musicPlaying"`
	ScrollTop    int                          `json:"scrollTop"`
	SelectedGame string                       `json:"selectedGame,omitempty"`
	SelectedBy   domain.Identity              `json:"selectedBy,omitempty"`
	UpdatedBy    map[StateKey]domain.Identity `json:"-"`
}

func newRoomState() RoomState {
	return RoomState{UpdatedBy: make(map[StateKey]domain.Identity)}
}

// UIState syncs shared UI state between room members.
type UIState struct {
	rooms *RoomManager
}

func NewUIState(rooms *RoomManager) *UIState {
	return &UIState{rooms: rooms}
}

// Set stores value under key for roomID and tells the other members.
func (u *UIState) Set(roomID domain.RoomID, from domain.Identity, key StateKey, value any) error {
	switch key {
	case KeyMusicPlaying:
		v, ok := value.(bool)
		if !ok {
			return domain.Errorf(domain.CodeInvalidArgument, "%s expects a bool", key)
		}
		return u.SetMusic(roomID, from, v)
	case KeyScrollTop:
		v, ok := value.(int)
		if !ok {
			return domain.Errorf(domain.CodeInvalidArgument, "%s expects an int", key)
		}
		return u.SetScroll(roomID, from, v)
	case KeySelectedGame:
		v, ok := value.(string)
		if !ok {
			return domain.Errorf(domain.CodeInvalidArgument, "%s expects a string", key)
		}
		return u.SelectGame(roomID, from, v)
	}
	return domain.Errorf(domain.CodeInvalidArgument, "unknown state key %q", key)
}

func (u *UIState) SetMusic(roomID domain.RoomID, from domain.Identity, playing bool) error {
	return u.update(roomID, from, KeyMusicPlaying, func(room *Room) (string, any) {
		room.state.MusicPlaying = playing
		return core.EventMusicToggle, core.MusicTogglePayload{RoomID: roomID, IsPlaying: playing, By: from}
	})
}

func (u *UIState) SetScroll(roomID domain.RoomID, from domain.Identity, top int) error {
	return u.update(roomID, from, KeyScrollTop, func(room *Room) (string, any) {
		room.state.ScrollTop = top
		return core.EventScroll, core.ScrollPayload{RoomID: roomID, ScrollTop: top, By: from}
	})
}

func (u *UIState) update(roomID domain.RoomID, from domain.Identity, key StateKey, apply func(*Room) (string, any)) error {
	var dropped []core.Delivery
	err := u.rooms.withMember(roomID, from, func(room *Room) error {
		event, payload := apply(room)
		room.state.UpdatedBy[key] = from
		dropped = u.rooms.broadcastLocked(room, event, payload, from)
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "app.uistate").Str("room", string(roomID)).Str("user", string(from)).Str("key", string(key)).Msg("state update dropped")
		return err
	}
	u.rooms.dropped(dropped)
	return nil
}

// SelectGame decides the room's game. Only the first selection after a reset
// is accepted; a later one gets AlreadyDecided and the decided game is echoed
// back to its sender as final.
func (u *UIState) SelectGame(roomID domain.RoomID, from domain.Identity, game string) error {
	game = strings.TrimSpace(game)
	if game == "" {
		return domain.Errorf(domain.CodeInvalidArgument, "game is required")
	}
	var dropped []core.Delivery
	err := u.rooms.withMember(roomID, from, func(room *Room) error {
		if room.state.SelectedGame != "" {
			echo := core.GameSelectedPayload{RoomID: roomID, Game: room.state.SelectedGame, By: room.state.SelectedBy, Final: true}
			if frame, err := core.Encode(core.EventGameSelected, echo); err == nil {
				dropped = u.rooms.conns.SendFrame(from, frame).Dropped
			}
			if room.state.SelectedGame == game {
				return nil
			}
			return domain.Errorf(domain.CodeAlreadyDecided, "room %s already selected %s", roomID, room.state.SelectedGame)
		}
		room.state.SelectedGame = game
		room.state.SelectedBy = from
		room.state.UpdatedBy[KeySelectedGame] = from
		dropped = u.rooms.broadcastLocked(room, core.EventGameSelected, core.GameSelectedPayload{RoomID: roomID, Game: game, By: from}, from)
		return nil
	})
	u.rooms.dropped(dropped)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.uistate").Str("room", string(roomID)).Str("user", string(from)).Str("game", game).Msg("game selection rejected")
	}
	return err
}

// Reset clears every shared key of the room, releasing the selected game.
func (u *UIState) Reset(roomID domain.RoomID, by domain.Identity) error {
	var dropped []core.Delivery
	err := u.rooms.withMember(roomID, by, func(room *Room) error {
		room.state = newRoomState()
		dropped = u.rooms.broadcastLocked(room, core.EventRoomReset, core.RoomResetPayload{RoomID: roomID, By: by}, "")
		return nil
	})
	if err != nil {
		return err
	}
	u.rooms.dropped(dropped)
	log.Info().Str("module", "app.uistate").Str("room", string(roomID)).Str("user", string(by)).Msg("room state reset")
	return nil
}

// Snapshot returns a copy of the room's shared state.
func (u *UIState) Snapshot(roomID domain.RoomID) (RoomState, error) {
	var out RoomState
	err := u.rooms.withRoom(roomID, func(room *Room) error {
		out = room.state
		out.UpdatedBy = make(map[StateKey]domain.Identity, len(room.state.UpdatedBy))
		for k, v := range room.state.UpdatedBy {
			out.UpdatedBy[k] = v
		}
		return nil
	})
	return out, err
}
