package core

import "errors"

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame is a raw serialized message.
type Frame []byte

// ConnID identifies one live signaling connection.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	// TrySend never blocks; it fails with ErrBackpressure or ErrConnectionClosed.
	TrySend(Frame) error
	Close()
}
