// Package session owns the lifecycle of the rendering-engine instance
// inside the sandbox.
//
// At most one Session is live at any time: the tuple (engine instance,
// its event subscriptions, its binary handle). Replacement is strictly
// sequential: the old session is fully torn down before the new one is
// constructed, so a partially-torn-down engine can never receive events
// meant for its successor.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/engine"
	"github.com/midiview/midiview/internal/layout"
	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/protocol"
	"github.com/midiview/midiview/internal/transport"
)

// State is the load state machine. Errored is terminal per attempt and
// re-enterable by a fresh load.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateErrored:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sender delivers outbound messages to the host.
type Sender interface {
	Send(msg protocol.Message) error
}

// StatusView is the sandbox's visible status surface.
type StatusView interface {
	ShowLoading(filename string)
	ShowReady(filename string)
	ShowError(text string)
}

// NopStatus discards status updates.
type NopStatus struct{}

func (NopStatus) ShowLoading(string) {}
func (NopStatus) ShowReady(string) {}
func (NopStatus) ShowError(string) {}

// Manager drives the single live session.
type Manager struct {
	log       *logging.Logger
	factory   engine.Factory
	container layout.Container
	sender    Sender
	status    StatusView
	gate      layout.Options

	// suppress is held while a settings fetch is outstanding so that
	// appearance-change events fired while applying the fetched
	// settings are not re-saved as user edits. Read lock-free from
	// engine callbacks.
	suppress atomic.Bool

	mu       sync.Mutex
	state    State
	eng      engine.Engine
	handle   *transport.Handle
	unsubs   []engine.Unsubscribe
	filename string
}

// NewManager wires a session manager. status may be nil.
func NewManager(factory engine.Factory, container layout.Container, sender Sender, status StatusView, gate layout.Options, log *logging.Logger) *Manager {
	if status == nil {
		status = NopStatus{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		log:       log,
		factory:   factory,
		container: container,
		sender:    sender,
		status:    status,
		gate:      gate,
	}
}

// State returns the current load state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle returns the live binary handle, or nil outside a session.
func (m *Manager) Handle() *transport.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Load tears down any prior session and builds a new one from encoded
// document bytes. Every failure is caught here: the status surface is
// updated, a diagnostic is forwarded to the host, and the sandbox stays
// alive for the next load.
func (m *Manager) Load(ctx context.Context, encoded, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	m.state = StateLoading
	m.filename = filename
	m.status.ShowLoading(filename)

	data, err := transport.Decode(encoded)
	if err != nil {
		return m.failLocked("decoding document", err)
	}

	m.handle = transport.NewHandle(data)

	if err := layout.Await(ctx, m.container, m.gate); err != nil {
		return m.failLocked("waiting for layout", err)
	}

	eng, err := m.factory(m.container, []engine.Source{{Handle: m.handle, Name: filename}}, engine.Options{
		ExportHandler: m.handleExport,
	})
	if err != nil {
		var ce *engine.ConstructionError
		if !errors.As(err, &ce) {
			err = &engine.ConstructionError{Err: err}
		}
		return m.failLocked("constructing engine", err)
	}

	m.eng = eng
	m.unsubs = []engine.Unsubscribe{
		eng.OnAppearanceChange(m.handleAppearanceChange),
		eng.OnFileAddRequest(m.handleFileAddRequest),
		eng.OnAudioFileAddRequest(m.handleAudioFileAddRequest),
	}

	m.state = StateReady
	m.status.ShowReady(filename)
	m.log.Info("session ready", zap.String("filename", filename), zap.Int("bytes", len(data)))

	// Single in-flight settings fetch; echo suppression holds until
	// the response has been processed.
	m.suppress.Store(true)
	m.send(protocol.Message{Kind: protocol.KindGetSettings})

	return nil
}

// ApplySettings processes a settings-loaded reply. A reply arriving
// with no live engine is dropped silently: the load that requested it
// was superseded.
func (m *Manager) ApplySettings(settings protocol.Appearance) {
	// Cleared the instant processing finishes, successful or not.
	defer m.suppress.Store(false)

	m.mu.Lock()
	eng := m.eng
	ready := m.state == StateReady
	m.mu.Unlock()

	if eng == nil || !ready {
		m.log.Debug("dropping settings reply with no live engine")
		return
	}
	if settings == nil {
		return
	}
	if err := eng.ApplyAppearanceSettings(settings); err != nil {
		// Stored records are passed through unvalidated; a corrupt or
		// future-shaped record surfaces here as an apply error, never
		// a crash. The session stays ready.
		m.log.Warn("failed to apply stored settings", zap.Error(err))
		m.send(protocol.Error(fmt.Sprintf("failed to apply settings: %v", err)))
	}
}

// AddFile feeds a host-pushed file into the live engine.
func (m *Manager) AddFile(encoded, name string) {
	m.mu.Lock()
	eng := m.eng
	m.mu.Unlock()

	if eng == nil {
		m.log.Debug("dropping file-added with no live engine", zap.String("name", name))
		return
	}

	data, err := transport.Decode(encoded)
	if err != nil {
		m.log.Warn("malformed file-added payload", zap.String("name", name), zap.Error(err))
		m.send(protocol.Error(fmt.Sprintf("failed to add %s: %v", name, err)))
		return
	}
	if err := eng.AddFileFromData(data, name); err != nil {
		m.log.Warn("engine rejected added file", zap.String("name", name), zap.Error(err))
		m.send(protocol.Error(fmt.Sprintf("failed to add %s: %v", name, err)))
	}
}

// Close tears the live session down synchronously. Called on sandbox
// unload, where no asynchronous cleanup is guaranteed to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.state = StateEmpty
}

// teardownLocked disposes the engine, detaches its subscriptions, and
// releases the binary handle, in that order.
func (m *Manager) teardownLocked() {
	if m.eng != nil {
		m.eng.Dispose()
		m.eng = nil
	}
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil

	m.handle.Release()
	m.handle = nil
}

func (m *Manager) failLocked(stage string, err error) error {
	m.state = StateErrored
	m.handle.Release()
	m.handle = nil

	text := fmt.Sprintf("%s: %v", stage, err)
	m.status.ShowError(text)
	m.send(protocol.Error(text))
	m.log.Error("load failed", zap.String("stage", stage), zap.Error(err))
	return err
}

func (m *Manager) handleAppearanceChange(a protocol.Appearance) {
	if m.suppress.Load() {
		// Side effect of applying fetched settings, not a user edit.
		return
	}
	m.send(protocol.Message{Kind: protocol.KindSaveSettings, Settings: a})
}

func (m *Manager) handleFileAddRequest() {
	m.send(protocol.Message{Kind: protocol.KindAddMIDIFiles})
}

func (m *Manager) handleAudioFileAddRequest() {
	m.send(protocol.Message{Kind: protocol.KindAddAudioFile})
}

func (m *Manager) handleExport(data []byte, filename string) {
	m.send(protocol.Message{
		Kind:     protocol.KindExportMIDI,
		Data:     transport.Encode(data),
		Filename: filename,
	})
}

func (m *Manager) send(msg protocol.Message) {
	if err := m.sender.Send(msg); err != nil {
		m.log.Warn("failed to send message to host", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}
