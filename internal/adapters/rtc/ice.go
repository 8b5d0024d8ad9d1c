// Package rtc holds the WebRTC pieces the server touches. Media never flows
// through here: peers negotiate directly and the server only reads the room
// a signaling payload is addressed to.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Playroom/internal/app"
	"github.com/dkeye/Playroom/internal/config"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{defaultSTUN}}},
	}
}

// Configuration converts configured ICE servers. An empty list falls back
// to the public Google STUN server.
func Configuration(servers []config.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		return DefaultWebRTCConfig()
	}
	out := webrtc.Configuration{ICEServers: make([]webrtc.ICEServer, 0, len(servers))}
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...), Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out.ICEServers = append(out.ICEServers, srv)
	}
	return out
}

// Validate builds a throwaway PeerConnection so bad ICE URLs fail at startup
// rather than in every browser.
func Validate(cfg webrtc.Configuration) error {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("invalid webrtc configuration: %w", err)
	}
	return pc.Close()
}

// Signal is the routing part of a voice-* payload. The rest of the payload
// belongs to the peers and is relayed as sent.
type Signal struct {
	RoomID domain.RoomID `json:"roomId"`
}

var ErrMalformedSignal = errors.New("malformed signal")

// DecodeSignal reads the room a payload of kind is addressed to.
func DecodeSignal(kind app.SignalKind, raw json.RawMessage) (Signal, error) {
	var s Signal
	switch kind {
	case app.SignalOffer, app.SignalAnswer, app.SignalICECandidate:
	default:
		return s, fmt.Errorf("%w: unknown kind %q", ErrMalformedSignal, kind)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if s.RoomID == "" {
		return s, fmt.Errorf("%w: roomId is required", ErrMalformedSignal)
	}
	return s, nil
}
