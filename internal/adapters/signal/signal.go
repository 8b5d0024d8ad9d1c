package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Playroom/internal/app/orch"
	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait         = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
	defaultReadLimit  = 32 * 1024
	defaultSendBuffer = 64
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = defaultPingPeriod
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

// pongWait is how long a silent peer is tolerated; pings go out at 9/10 of it.
func (o Options) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	opts Options
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch: o,
		opts: opts.withDefaults(),
	}
}

// WsSignalConn is the outbound half of one socket. Frames queue in send and
// are written by writePump; a full queue is reported, never waited on.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// wsSession is the per-socket state owned by its readPump goroutine.
type wsSession struct {
	cid      domain.ConnID
	conn     *WsSignalConn
	authed   domain.Identity
	identity domain.Identity
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request. authed is the identity the HTTP layer
// resolved, or empty when the client will name itself with register.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, authed domain.Identity) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	s := &wsSession{
		cid:    domain.ConnID(uuid.NewString()),
		conn:   &WsSignalConn{conn: ws, send: make(chan core.Frame, ctl.opts.SendBuffer)},
		authed: authed,
	}
	ctl.Orch.Registry.Attach(s.cid, s.conn)
	log.Info().Str("module", "signal").Str("conn", string(s.cid)).Str("user", string(authed)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	if authed != "" {
		ctl.register(ctx, s, authed, "")
	}

	go ctl.writePump(ctx, s.conn)
	go ctl.readPump(ctx, cancel, s)
}
