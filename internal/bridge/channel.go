// Package bridge carries protocol messages between the privileged host
// and the sandboxed display surface.
//
// The boundary has no shared memory: delivery is asynchronous, ordered,
// and at-most-once, with no request/response correlation beyond message
// shape. Production traffic runs over a websocket; tests use an
// in-memory pipe pair with identical semantics.
package bridge

import (
	"errors"

	"github.com/midiview/midiview/internal/protocol"
)

// ErrClosed is returned once a channel (or its peer) has shut down.
var ErrClosed = errors.New("bridge: channel closed")

// Channel is one end of the isolation boundary.
type Channel interface {
	// Send delivers a message to the peer. Fire-and-forget: there is
	// no acknowledgement.
	Send(msg protocol.Message) error

	// Receive blocks until the next message arrives or the channel
	// closes, in which case it returns ErrClosed.
	Receive() (protocol.Message, error)

	// Close tears the channel down. Idempotent.
	Close() error
}
