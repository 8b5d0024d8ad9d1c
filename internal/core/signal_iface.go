package core

import "errors"

// Frame is a raw encoded outbound message.
type Frame []byte

var (
	// ErrBackpressure is returned by TrySend when the send queue is full.
	ErrBackpressure = errors.New("backpressure")
	// ErrConnClosed is returned by TrySend after Close.
	ErrConnClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues a frame without blocking.
	TrySend(Frame) error
	Close()
}
