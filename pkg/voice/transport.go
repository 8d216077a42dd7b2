package voice

import "context"

// Transport is an opaque live voice connection capable of carrying opus
// frames. The wire protocol behind it is owned by the dialer.
type Transport interface {
	// WriteOpus delivers one 20ms opus frame. A returned error means the
	// handle is unusable and the supervisor should be notified.
	WriteOpus(frame []byte) error

	// Ready reports whether the handle can accept frames.
	Ready() bool

	Close() error
}

// Dialer establishes a new Transport. Implementations own authentication and
// the session handshake.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}
