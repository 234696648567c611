package core

// Frame is a raw encoded payload.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking. A full queue returns an error and
	// the frame is lost.
	TrySend(Frame) error
	Close()
}
