package signal

import "github.com/dkeye/Playroom/internal/core"

func (ctl *SignalWSController) handlePing(s *wsSession) {
	ctl.send(s, core.EventPong, nil)
}
