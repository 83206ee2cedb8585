// Package host is the privileged side of the bridge: it dispatches
// inbound sandbox messages and drives the settings store, export
// resolver, and file picker accordingly.
package host

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/bridge"
	"github.com/midiview/midiview/internal/document"
	"github.com/midiview/midiview/internal/export"
	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/monitoring"
	"github.com/midiview/midiview/internal/protocol"
	"github.com/midiview/midiview/internal/settings"
	"github.com/midiview/midiview/internal/transport"
)

var (
	midiPatterns  = []string{"*.mid", "*.midi"}
	audioPatterns = []string{"*.wav", "*.mp3", "*.ogg", "*.flac"}
)

// Router serves one sandbox connection bound to one open document.
// Exactly one handler fires per inbound message, chosen synchronously
// by kind; I/O is awaited inside the handler.
type Router struct {
	log      *logging.Logger
	doc      *document.Document
	ch       bridge.Channel
	store    *settings.Store
	picker   FilePicker
	notifier Notifier
	metrics  *monitoring.Metrics
}

// Config wires a router.
type Config struct {
	Document *document.Document
	Channel  bridge.Channel
	Store    *settings.Store
	Picker   FilePicker
	Notifier Notifier
	Metrics  *monitoring.Metrics
	Log      *logging.Logger
}

// NewRouter builds a router for one connection.
func NewRouter(cfg Config) *Router {
	log := cfg.Log
	if log == nil {
		log = logging.NewNop()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	picker := cfg.Picker
	if picker == nil {
		picker = DirectoryPicker{Dir: cfg.Document.Dir()}
	}
	return &Router{
		log:      log,
		doc:      cfg.Document,
		ch:       cfg.Channel,
		store:    cfg.Store,
		picker:   picker,
		notifier: notifier,
		metrics:  cfg.Metrics,
	}
}

// Serve dispatches inbound messages until the channel closes.
func (r *Router) Serve(ctx context.Context) error {
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
		r.Dispatch(ctx, msg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Dispatch routes one inbound message. Never panics, never crashes the
// host: every failure ends in a log line and, where user-visible, a
// notification.
func (r *Router) Dispatch(ctx context.Context, msg protocol.Message) {
	r.count(msg.Kind, "in")

	switch msg.Kind {
	case protocol.KindReady:
		r.handleReady()
	case protocol.KindGetSettings:
		r.handleGetSettings()
	case protocol.KindSaveSettings:
		r.handleSaveSettings(msg)
	case protocol.KindExportMIDI:
		r.handleExport(msg)
	case protocol.KindAddMIDIFiles:
		r.handleAddFiles(ctx, PickOptions{Multiple: true, Patterns: midiPatterns}, sniffMIDI)
	case protocol.KindAddAudioFile:
		r.handleAddFiles(ctx, PickOptions{Multiple: false, Patterns: audioPatterns}, sniffAudio)
	case protocol.KindError:
		r.handleError(msg)
	default:
		r.log.Warn("unexpected message on host", zap.String("kind", string(msg.Kind)))
	}
}

func (r *Router) handleReady() {
	r.send(protocol.Message{
		Kind:     protocol.KindMIDIData,
		Data:     transport.Encode(r.doc.Bytes()),
		Filename: r.doc.Name(),
	})
}

func (r *Router) handleGetSettings() {
	if r.metrics != nil {
		r.metrics.SettingsFetches.Inc()
	}
	// Always reply, stored value or explicit none; the sandbox is
	// waiting on this before it does anything else.
	msg := protocol.Message{Kind: protocol.KindSettingsLoaded}
	if stored, ok := r.store.Load(r.doc.URI()); ok {
		msg.Settings = stored
	}
	r.send(msg)
}

func (r *Router) handleSaveSettings(msg protocol.Message) {
	if err := r.store.Save(r.doc.URI(), msg.Settings); err != nil {
		r.log.Error("settings save failed", zap.String("uri", r.doc.URI()), zap.Error(err))
		r.notifier.Error(fmt.Sprintf("Failed to save display settings: %v", err))
		return
	}
	if r.metrics != nil {
		r.metrics.SettingsSaves.Inc()
	}
}

func (r *Router) handleExport(msg protocol.Message) {
	data, err := transport.Decode(msg.Data)
	if err != nil {
		r.exportFailed(msg.Filename, err)
		return
	}

	filename := msg.Filename
	if filename == "" {
		filename = r.doc.Name()
	}

	path, err := export.Write(r.doc.Dir(), filename, data)
	if err != nil {
		r.exportFailed(filename, err)
		return
	}

	if r.metrics != nil {
		r.metrics.ExportsTotal.Inc()
	}
	r.log.Info("exported document", zap.String("path", path), zap.Int("bytes", len(data)))
	r.notifier.Info(fmt.Sprintf("Exported to %s", path))
}

func (r *Router) exportFailed(filename string, err error) {
	if r.metrics != nil {
		r.metrics.ExportFailures.Inc()
	}
	r.log.Error("export failed", zap.String("filename", filename), zap.Error(err))
	r.notifier.Error(fmt.Sprintf("Export of %s failed: %v", filename, err))
}

// sniff validates a picked file's content before it is pushed into the
// sandbox; the picker's name filter alone is not trusted.
type sniff func(data []byte) error

func sniffMIDI(data []byte) error {
	if !mimetype.Detect(data).Is("audio/midi") {
		return errors.New("not a MIDI file")
	}
	return nil
}

func sniffAudio(data []byte) error {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "audio/") {
		return fmt.Errorf("not an audio file (%s)", mt.String())
	}
	return nil
}

func (r *Router) handleAddFiles(ctx context.Context, opts PickOptions, check sniff) {
	picked, err := r.picker.Pick(ctx, opts)
	if err != nil {
		r.log.Error("file picker failed", zap.Error(err))
		r.notifier.Error(fmt.Sprintf("Could not pick files: %v", err))
		return
	}

	for _, file := range picked {
		name := filepath.Base(file.Path)
		if err := check(file.Data); err != nil {
			r.log.Warn("skipping picked file", zap.String("name", name), zap.Error(err))
			r.notifier.Error(fmt.Sprintf("Skipped %s: %v", name, err))
			continue
		}
		if r.metrics != nil {
			r.metrics.FilesAdded.Inc()
		}
		r.send(protocol.Message{
			Kind:     protocol.KindFileAdded,
			Data:     transport.Encode(file.Data),
			Filename: name,
		})
	}
}

func (r *Router) handleError(msg protocol.Message) {
	if r.metrics != nil {
		r.metrics.SandboxErrors.Inc()
	}
	r.log.Error("sandbox reported error",
		zap.String("uri", r.doc.URI()),
		zap.String("message", msg.Message))
	r.notifier.Error(msg.Message)
}

func (r *Router) send(msg protocol.Message) {
	r.count(msg.Kind, "out")
	if err := r.ch.Send(msg); err != nil {
		r.log.Warn("failed to send message to sandbox", zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}

func (r *Router) count(kind protocol.Kind, direction string) {
	if r.metrics != nil {
		r.metrics.Messages.WithLabelValues(string(kind), direction).Inc()
	}
}
