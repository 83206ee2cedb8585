// Package engine declares the contract of the external rendering and
// playback component. The bridge treats it as an opaque collaborator:
// drawing, audio synthesis, and MIDI byte-level parsing all live behind
// this interface.
package engine

import (
	"fmt"

	"github.com/midiview/midiview/internal/layout"
	"github.com/midiview/midiview/internal/protocol"
	"github.com/midiview/midiview/internal/transport"
)

// Source is one pseudo-file the engine renders from.
type Source struct {
	Handle *transport.Handle
	Name   string
}

// Options configures engine construction.
type Options struct {
	// ExportHandler is invoked with raw bytes and a suggested filename
	// whenever the user triggers an export inside the engine's own UI.
	ExportHandler func(data []byte, filename string)
}

// Unsubscribe detaches one event subscription. Safe to call once.
type Unsubscribe func()

// Engine is one live rendering-engine instance.
type Engine interface {
	// Dispose tears the instance down. The instance must not emit
	// events after Dispose returns.
	Dispose()

	// ApplyAppearanceSettings applies stored display preferences. The
	// engine may fire appearance-change events synchronously while
	// applying.
	ApplyAppearanceSettings(settings protocol.Appearance) error

	// OnAppearanceChange subscribes to user-driven appearance edits.
	OnAppearanceChange(cb func(protocol.Appearance)) Unsubscribe

	// OnFileAddRequest subscribes to the engine's "add MIDI files"
	// control.
	OnFileAddRequest(cb func()) Unsubscribe

	// OnAudioFileAddRequest subscribes to the engine's "add audio
	// file" control.
	OnAudioFileAddRequest(cb func()) Unsubscribe

	// AddFileFromData feeds an additional file into the running
	// instance.
	AddFileFromData(data []byte, name string) error
}

// Factory constructs an engine instance against a stabilized container.
type Factory func(container layout.Container, sources []Source, opts Options) (Engine, error)

// ConstructionError wraps an opaque failure from the external engine.
type ConstructionError struct {
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("engine construction failed: %v", e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}
