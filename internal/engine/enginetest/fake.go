// Package enginetest provides a scriptable in-memory rendering engine
// for exercising session lifecycle behavior without a real renderer.
package enginetest

import (
	"sync"

	"github.com/midiview/midiview/internal/engine"
	"github.com/midiview/midiview/internal/layout"
	"github.com/midiview/midiview/internal/protocol"
)

// AddedFile records one AddFileFromData call.
type AddedFile struct {
	Name string
	Data []byte
}

// Fake is one constructed engine instance.
type Fake struct {
	Sources []engine.Source
	Options engine.Options

	// EchoOnApply makes ApplyAppearanceSettings fire the appearance
	// subscribers synchronously, the way real engines re-emit change
	// events while applying fetched settings.
	EchoOnApply bool

	// ApplyErr, when set, is returned by ApplyAppearanceSettings.
	ApplyErr error

	mu             sync.Mutex
	disposed       bool
	applied        []protocol.Appearance
	added          []AddedFile
	appearanceSubs map[int]func(protocol.Appearance)
	fileAddSubs    map[int]func()
	audioAddSubs   map[int]func()
	nextSub        int

	onDispose func()
}

// Dispose implements engine.Engine.
func (f *Fake) Dispose() {
	f.mu.Lock()
	already := f.disposed
	f.disposed = true
	cb := f.onDispose
	f.mu.Unlock()
	if !already && cb != nil {
		cb()
	}
}

// Disposed reports whether Dispose has been called.
func (f *Fake) Disposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// ApplyAppearanceSettings implements engine.Engine.
func (f *Fake) ApplyAppearanceSettings(settings protocol.Appearance) error {
	f.mu.Lock()
	f.applied = append(f.applied, settings)
	echo := f.EchoOnApply
	err := f.ApplyErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if echo {
		f.FireAppearanceChange(settings)
	}
	return nil
}

// Applied returns every settings payload applied so far.
func (f *Fake) Applied() []protocol.Appearance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Appearance, len(f.applied))
	copy(out, f.applied)
	return out
}

// OnAppearanceChange implements engine.Engine.
func (f *Fake) OnAppearanceChange(cb func(protocol.Appearance)) engine.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.appearanceSubs[id] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.appearanceSubs, id)
	}
}

// OnFileAddRequest implements engine.Engine.
func (f *Fake) OnFileAddRequest(cb func()) engine.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.fileAddSubs[id] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.fileAddSubs, id)
	}
}

// OnAudioFileAddRequest implements engine.Engine.
func (f *Fake) OnAudioFileAddRequest(cb func()) engine.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.audioAddSubs[id] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.audioAddSubs, id)
	}
}

// AddFileFromData implements engine.Engine.
func (f *Fake) AddFileFromData(data []byte, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	f.added = append(f.added, AddedFile{Name: name, Data: buf})
	return nil
}

// Added returns every file fed into the instance.
func (f *Fake) Added() []AddedFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AddedFile, len(f.added))
	copy(out, f.added)
	return out
}

// SubscriberCount returns the number of live subscriptions.
func (f *Fake) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appearanceSubs) + len(f.fileAddSubs) + len(f.audioAddSubs)
}

// FireAppearanceChange invokes every appearance subscriber.
func (f *Fake) FireAppearanceChange(a protocol.Appearance) {
	f.mu.Lock()
	subs := make([]func(protocol.Appearance), 0, len(f.appearanceSubs))
	for _, cb := range f.appearanceSubs {
		subs = append(subs, cb)
	}
	f.mu.Unlock()
	for _, cb := range subs {
		cb(a)
	}
}

// FireFileAddRequest invokes every file-add subscriber.
func (f *Fake) FireFileAddRequest() {
	f.mu.Lock()
	subs := make([]func(), 0, len(f.fileAddSubs))
	for _, cb := range f.fileAddSubs {
		subs = append(subs, cb)
	}
	f.mu.Unlock()
	for _, cb := range subs {
		cb()
	}
}

// FireAudioFileAddRequest invokes every audio-add subscriber.
func (f *Fake) FireAudioFileAddRequest() {
	f.mu.Lock()
	subs := make([]func(), 0, len(f.audioAddSubs))
	for _, cb := range f.audioAddSubs {
		subs = append(subs, cb)
	}
	f.mu.Unlock()
	for _, cb := range subs {
		cb()
	}
}

// TriggerExport simulates the user hitting export inside the engine UI.
func (f *Fake) TriggerExport(data []byte, filename string) {
	if f.Options.ExportHandler != nil {
		f.Options.ExportHandler(data, filename)
	}
}

// Harness builds fakes and records lifecycle ordering across them.
type Harness struct {
	// EchoOnApply is copied onto every constructed fake.
	EchoOnApply bool

	mu       sync.Mutex
	engines  []*Fake
	events   []string
	failNext error
}

// NewHarness returns an empty harness.
func NewHarness() *Harness {
	return &Harness{}
}

// Factory returns an engine.Factory wired to this harness.
func (h *Harness) Factory() engine.Factory {
	return func(container layout.Container, sources []engine.Source, opts engine.Options) (engine.Engine, error) {
		h.mu.Lock()
		if err := h.failNext; err != nil {
			h.failNext = nil
			h.mu.Unlock()
			return nil, &engine.ConstructionError{Err: err}
		}
		f := &Fake{
			Sources:        sources,
			Options:        opts,
			EchoOnApply:    h.EchoOnApply,
			appearanceSubs: map[int]func(protocol.Appearance){},
			fileAddSubs:    map[int]func(){},
			audioAddSubs:   map[int]func(){},
		}
		f.onDispose = func() { h.record("dispose") }
		h.engines = append(h.engines, f)
		h.events = append(h.events, "construct")
		h.mu.Unlock()
		return f, nil
	}
}

// FailNext makes the next construction fail with err.
func (h *Harness) FailNext(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = err
}

// Engines returns every instance constructed so far.
func (h *Harness) Engines() []*Fake {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Fake, len(h.engines))
	copy(out, h.engines)
	return out
}

// Events returns the construct/dispose sequence observed so far.
func (h *Harness) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	copy(out, h.events)
	return out
}

func (h *Harness) record(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}
