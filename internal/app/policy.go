package app

import (
	"errors"

	"github.com/dkeye/Playroom/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send queue is full.
// Delivery stays fire-and-forget either way; the frame itself is never retried.
type Policy interface {
	OnBackPressure(d core.Delivery) BackpressureAction
}

// DropPolicy discards the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Delivery) BackpressureAction { return DropFrame }

// KickPolicy closes connections that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(d core.Delivery) BackpressureAction {
	if errors.Is(d.Err, core.ErrBackpressure) {
		return KickMember
	}
	return NoAction
}

// PolicyFor maps a config name to a Policy; unknown names drop.
func PolicyFor(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
