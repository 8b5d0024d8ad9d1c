package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Playroom/internal/app"
	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			// Unblocks the reader so the session unwinds.
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *wsSession) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(s.cid)).Str("user", string(s.identity)).Msg("readPump closing")
		cancel()
		s.conn.Close()
		ctl.Orch.Disconnect(s.cid)
	}()

	ws := s.conn.conn
	ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.cid)).Msg("readPump read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
		ctl.handleSignal(ctx, s, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, s *wsSession, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.cid)).Msg("bad json")
		ctl.sendError(s, "", domain.Errorf(domain.CodeInvalidArgument, "malformed message"))
		return
	}

	switch env.Type {
	case core.EventPing:
		ctl.handlePing(s)
		return
	case core.EventRegister:
		ctl.handleRegister(ctx, s, env.Payload)
		return
	}
	if s.identity == "" {
		ctl.sendError(s, env.Type, domain.Errorf(domain.CodeUnauthenticated, "register first"))
		return
	}

	switch env.Type {
	case core.EventWhoAmI:
		ctl.handleWhoAmI(s)
	case core.EventJoinRoom:
		ctl.handleJoin(s, env.Payload)
	case core.EventLeaveRoom:
		ctl.handleLeave(s, env.Payload)
	case core.EventResetRoom:
		ctl.handleReset(s, env.Payload)
	case core.EventVoiceOffer, core.EventVoiceAnswer, core.EventVoiceICECandidate:
		kind, _ := app.SignalKindOf(env.Type)
		ctl.handleVoice(s, kind, env.Payload)
	case core.EventMusicToggle:
		ctl.handleMusic(s, env.Payload)
	case core.EventScroll:
		ctl.handleScroll(s, env.Payload)
	case core.EventGameSelected:
		ctl.handleGameSelected(s, env.Payload)
	case core.EventSnakeJoin:
		ctl.handleSnakeJoin(s, env.Payload)
	case core.EventSnakeMove:
		ctl.handleSnakeMove(s, env.Payload)
	case core.EventSnakeRestart:
		ctl.handleSnakeRestart(s, env.Payload)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) send(s *wsSession, event string, payload any) {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("send marshal")
		return
	}
	if err := s.conn.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(s.cid)).Str("event", event).Msg("send dropped")
	}
}

// sendError reports a failed request to the connection that made it.
func (ctl *SignalWSController) sendError(s *wsSession, request string, err error) {
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	ctl.send(s, core.EventError, core.ErrorPayload{Code: domain.CodeOf(err), Message: msg, Request: request})
}

// roomIDOf accepts either a bare "roomId" string or an object carrying roomId.
func roomIDOf(raw json.RawMessage) (domain.RoomID, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return "", domain.Errorf(domain.CodeInvalidArgument, "roomId is required")
		}
		return domain.RoomID(id), nil
	}
	var obj struct {
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.RoomID == "" {
		return "", domain.Errorf(domain.CodeInvalidArgument, "roomId is required")
	}
	return obj.RoomID, nil
}
