package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrSinkClosed   = errors.New("connection closed")
)

// Frame is one encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport.
// TrySend must be safe to call from any goroutine and must never block;
// frames are delivered in TrySend order.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
