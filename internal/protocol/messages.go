// Package protocol defines the message vocabulary crossing the
// host/sandbox isolation boundary.
//
// Messages are a tagged union: every message carries a Kind, and the
// remaining fields are populated according to that kind. There are no
// request IDs; request/response pairs are correlated by message shape
// alone, so senders must enforce their own single-flight discipline.
package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Kind identifies a message across the boundary.
type Kind string

// Sandbox -> host.
const (
	KindReady        Kind = "ready"
	KindGetSettings  Kind = "get-settings"
	KindSaveSettings Kind = "save-settings"
	KindExportMIDI   Kind = "export-midi"
	KindAddMIDIFiles Kind = "add-midi-files"
	KindAddAudioFile Kind = "add-audio-file"
	KindError        Kind = "error"
)

// Host -> sandbox.
const (
	KindMIDIData       Kind = "midi-data"
	KindSettingsLoaded Kind = "settings-loaded"
	KindFileAdded      Kind = "file-added"
)

// Appearance is the open, versionless set of per-document display
// preferences (palette identifier, note color, onset-marker shape, ...).
// It is persisted wholesale; there is no field-level merge.
type Appearance map[string]any

// Message is the envelope for every boundary crossing.
//
// Data always carries base64 text, never raw bytes: the boundary is a
// text channel with no shared memory.
type Message struct {
	Kind     Kind       `json:"kind"`
	Data     string     `json:"data,omitempty"`
	Filename string     `json:"filename,omitempty"`
	Settings Appearance `json:"settings,omitempty"`
	Message  string     `json:"message,omitempty"`
}

var known = map[Kind]bool{
	KindReady:          true,
	KindGetSettings:    true,
	KindSaveSettings:   true,
	KindExportMIDI:     true,
	KindAddMIDIFiles:   true,
	KindAddAudioFile:   true,
	KindError:          true,
	KindMIDIData:       true,
	KindSettingsLoaded: true,
	KindFileAdded:      true,
}

// Known reports whether k is part of the protocol vocabulary.
func Known(k Kind) bool {
	return known[k]
}

// Marshal encodes a message for the wire.
func Marshal(m Message) ([]byte, error) {
	if !Known(m.Kind) {
		return nil, fmt.Errorf("protocol: unknown message kind %q", m.Kind)
	}
	return sonic.Marshal(m)
}

// Unmarshal decodes a wire payload into a message. Unknown kinds are
// rejected here so dispatchers only ever see vocabulary messages.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: malformed message: %w", err)
	}
	if !Known(m.Kind) {
		return Message{}, fmt.Errorf("protocol: unknown message kind %q", m.Kind)
	}
	return m, nil
}

// Error builds a sandbox->host diagnostic message.
func Error(text string) Message {
	return Message{Kind: KindError, Message: text}
}
