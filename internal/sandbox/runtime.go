// Package sandbox is the display-surface side of the bridge: a
// single-threaded, event-driven dispatcher that drives the session
// manager from inbound host messages.
package sandbox

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/bridge"
	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/protocol"
	"github.com/midiview/midiview/internal/session"
)

// Runtime runs the sandbox message loop.
type Runtime struct {
	log      *logging.Logger
	ch       bridge.Channel
	sessions *session.Manager
}

// New wires a sandbox runtime.
func New(ch bridge.Channel, sessions *session.Manager, log *logging.Logger) *Runtime {
	if log == nil {
		log = logging.NewNop()
	}
	return &Runtime{log: log, ch: ch, sessions: sessions}
}

// Run announces readiness, then dispatches inbound messages until the
// channel closes or ctx is cancelled. The live session is torn down
// synchronously before Run returns; nothing asynchronous is left
// pending when the sandbox context disappears.
func (r *Runtime) Run(ctx context.Context) error {
	defer r.sessions.Close()

	if err := r.ch.Send(protocol.Message{Kind: protocol.KindReady}); err != nil {
		return err
	}

	for {
		msg, err := r.ch.Receive()
		if err != nil {
			if errors.Is(err, bridge.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		r.dispatch(ctx, msg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindMIDIData:
		// Load reports its own failures; the sandbox stays alive.
		_ = r.sessions.Load(ctx, msg.Data, msg.Filename)
	case protocol.KindSettingsLoaded:
		r.sessions.ApplySettings(msg.Settings)
	case protocol.KindFileAdded:
		r.sessions.AddFile(msg.Data, msg.Filename)
	default:
		r.log.Warn("unexpected message in sandbox", zap.String("kind", string(msg.Kind)))
	}
}
