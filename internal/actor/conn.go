package actor

import (
	"context"
	"errors"

	"github.com/volkzayaz/RR-sub003/internal/wire"
)

// ErrDisconnected is returned when the shared channel drops.
var ErrDisconnected = errors.New("actor: channel disconnected")

// Conn is one live connection to the shared channel. Send must be safe for
// concurrent use. Inbound is closed when the connection ends.
type Conn interface {
	Send(ctx context.Context, env wire.Envelope) error
	Inbound() <-chan wire.Envelope
	Done() <-chan struct{}
	Close() error
}

// Dialer opens connections to the shared channel.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// ConnState is the actor's view of the channel.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}
