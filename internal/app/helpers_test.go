package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/Playroom/internal/core"
	"github.com/dkeye/Playroom/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes(t *testing.T) []core.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env core.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("decode frame %s: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

// received returns payloads of event in arrival order.
func (c *fakeConn) received(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range c.envelopes(t) {
		if env.Type == event {
			out = append(out, env.Payload)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func connect(t *testing.T, reg *Registry, cid domain.ConnID, id domain.Identity) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	reg.Attach(cid, c)
	if err := reg.Register(cid, id); err != nil {
		t.Fatalf("register %s as %s: %v", cid, id, err)
	}
	return c
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}
