package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midiview/midiview/internal/engine"
	"github.com/midiview/midiview/internal/engine/enginetest"
	"github.com/midiview/midiview/internal/layout"
	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/protocol"
	"github.com/midiview/midiview/internal/transport"
)

type stableContainer struct{ w, h int }

func (c stableContainer) Bounds() (int, int) { return c.w, c.h }

type recordingSender struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (s *recordingSender) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSender) ofKind(kind protocol.Kind) []protocol.Message {
	var out []protocol.Message
	for _, m := range s.messages() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type recordingStatus struct {
	mu     sync.Mutex
	states []string
}

func (s *recordingStatus) ShowLoading(string) { s.push("loading") }
func (s *recordingStatus) ShowReady(string)   { s.push("ready") }
func (s *recordingStatus) ShowError(string)   { s.push("error") }

func (s *recordingStatus) push(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingStatus) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return ""
	}
	return s.states[len(s.states)-1]
}

func fastGate() layout.Options {
	return layout.Options{Timeout: 200 * time.Millisecond, Interval: time.Millisecond}
}

func newFixture(t *testing.T) (*Manager, *enginetest.Harness, *recordingSender, *recordingStatus) {
	t.Helper()
	harness := enginetest.NewHarness()
	sender := &recordingSender{}
	status := &recordingStatus{}
	m := NewManager(harness.Factory(), stableContainer{w: 400, h: 200}, sender, status, fastGate(), logging.NewNop())
	return m, harness, sender, status
}

func midiPayload() string {
	return transport.Encode([]byte{0x4d, 0x54, 0x68, 0x64, 0, 0, 0, 6})
}

func TestLoadReachesReady(t *testing.T) {
	m, harness, sender, status := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))

	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, "ready", status.last())

	engines := harness.Engines()
	require.Len(t, engines, 1)
	require.Len(t, engines[0].Sources, 1)
	assert.Equal(t, "song.mid", engines[0].Sources[0].Name)
	assert.Equal(t, []byte{0x4d, 0x54, 0x68, 0x64, 0, 0, 0, 6}, engines[0].Sources[0].Handle.Bytes())
	assert.Equal(t, 3, engines[0].SubscriberCount())

	fetches := sender.ofKind(protocol.KindGetSettings)
	assert.Len(t, fetches, 1)
}

// TestSequentialLoads tests the arena-of-one invariant: N loads produce
// N constructions and N disposals, each disposal strictly preceding the
// next construction.
func TestSequentialLoads(t *testing.T) {
	m, harness, _, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, m.Load(ctx, midiPayload(), "a.mid"))
	firstHandle := m.Handle()
	require.NoError(t, m.Load(ctx, midiPayload(), "b.mid"))
	require.NoError(t, m.Load(ctx, midiPayload(), "c.mid"))

	assert.Equal(t, []string{
		"construct",
		"dispose", "construct",
		"dispose", "construct",
	}, harness.Events())

	engines := harness.Engines()
	require.Len(t, engines, 3)
	assert.True(t, engines[0].Disposed())
	assert.True(t, engines[1].Disposed())
	assert.False(t, engines[2].Disposed())

	// Superseded sessions hold no subscriptions or handles.
	assert.Equal(t, 0, engines[0].SubscriberCount())
	assert.Equal(t, 0, engines[1].SubscriberCount())
	assert.True(t, firstHandle.Released())
	assert.False(t, m.Handle().Released())

	m.Close()
	assert.True(t, engines[2].Disposed())
	assert.True(t, m.Handle().Released())
	assert.Equal(t, StateEmpty, m.State())
}

func TestDecodeFailure(t *testing.T) {
	m, harness, sender, status := newFixture(t)

	err := m.Load(context.Background(), "%%%not-base64%%%", "bad.mid")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrMalformedPayload)

	assert.Equal(t, StateErrored, m.State())
	assert.Equal(t, "error", status.last())
	assert.Empty(t, harness.Engines())
	assert.NotEmpty(t, sender.ofKind(protocol.KindError))

	// The sandbox stays alive: a subsequent load succeeds.
	require.NoError(t, m.Load(context.Background(), midiPayload(), "good.mid"))
	assert.Equal(t, StateReady, m.State())
}

func TestLayoutTimeoutFailure(t *testing.T) {
	harness := enginetest.NewHarness()
	sender := &recordingSender{}
	m := NewManager(harness.Factory(), stableContainer{w: 0, h: 0}, sender, nil,
		layout.Options{Timeout: 30 * time.Millisecond, Interval: time.Millisecond}, logging.NewNop())

	err := m.Load(context.Background(), midiPayload(), "song.mid")

	var te *layout.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StateErrored, m.State())
	assert.Empty(t, harness.Engines())
	assert.NotEmpty(t, sender.ofKind(protocol.KindError))
}

func TestEngineConstructionFailure(t *testing.T) {
	m, harness, sender, _ := newFixture(t)
	harness.FailNext(errors.New("renderer exploded"))

	err := m.Load(context.Background(), midiPayload(), "song.mid")

	var ce *engine.ConstructionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StateErrored, m.State())
	assert.NotEmpty(t, sender.ofKind(protocol.KindError))

	// Recoverable by a fresh load.
	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))
	assert.Equal(t, StateReady, m.State())
}

// TestSettingsEchoSuppression tests that appearance-change events fired
// while applying fetched settings are not re-saved, while a later event
// is.
func TestSettingsEchoSuppression(t *testing.T) {
	m, harness, sender, _ := newFixture(t)
	harness.EchoOnApply = true

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))

	stored := protocol.Appearance{"palette": "warm"}
	m.ApplySettings(stored)

	fake := harness.Engines()[0]
	assert.Equal(t, []protocol.Appearance{stored}, fake.Applied())
	assert.Empty(t, sender.ofKind(protocol.KindSaveSettings), "echoed change must not be saved")

	// A genuine user edit after the response is processed does save.
	edited := protocol.Appearance{"palette": "cold"}
	fake.FireAppearanceChange(edited)

	saves := sender.ofKind(protocol.KindSaveSettings)
	require.Len(t, saves, 1)
	assert.Equal(t, edited, saves[0].Settings)
}

// TestSettingsNoneClearsSuppression tests that an empty settings reply
// still releases the echo guard.
func TestSettingsNoneClearsSuppression(t *testing.T) {
	m, harness, sender, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))
	m.ApplySettings(nil)

	fake := harness.Engines()[0]
	assert.Empty(t, fake.Applied())

	fake.FireAppearanceChange(protocol.Appearance{"palette": "warm"})
	assert.Len(t, sender.ofKind(protocol.KindSaveSettings), 1)
}

// TestSettingsWithoutEngineDropped tests that a reply arriving after
// its load was superseded (or before any load) is silently dropped.
func TestSettingsWithoutEngineDropped(t *testing.T) {
	m, _, sender, _ := newFixture(t)

	assert.NotPanics(t, func() {
		m.ApplySettings(protocol.Appearance{"palette": "warm"})
	})
	assert.Empty(t, sender.messages())
}

func TestSettingsApplyErrorKeepsSessionAlive(t *testing.T) {
	m, harness, sender, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))
	harness.Engines()[0].ApplyErr = errors.New("unrecognized palette")

	m.ApplySettings(protocol.Appearance{"palette": "from-the-future"})

	assert.Equal(t, StateReady, m.State())
	assert.NotEmpty(t, sender.ofKind(protocol.KindError))
}

func TestExportRelay(t *testing.T) {
	m, harness, sender, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))

	exported := []byte{9, 8, 7}
	harness.Engines()[0].TriggerExport(exported, "song-edit.mid")

	exports := sender.ofKind(protocol.KindExportMIDI)
	require.Len(t, exports, 1)
	assert.Equal(t, "song-edit.mid", exports[0].Filename)

	decoded, err := transport.Decode(exports[0].Data)
	require.NoError(t, err)
	assert.Equal(t, exported, decoded)
}

func TestFileAddRequestsRelay(t *testing.T) {
	m, harness, sender, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))

	fake := harness.Engines()[0]
	fake.FireFileAddRequest()
	fake.FireAudioFileAddRequest()

	assert.Len(t, sender.ofKind(protocol.KindAddMIDIFiles), 1)
	assert.Len(t, sender.ofKind(protocol.KindAddAudioFile), 1)
}

func TestAddFileFeedsEngine(t *testing.T) {
	m, harness, _, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))

	extra := []byte{5, 5, 5}
	m.AddFile(transport.Encode(extra), "extra.mid")

	added := harness.Engines()[0].Added()
	require.Len(t, added, 1)
	assert.Equal(t, "extra.mid", added[0].Name)
	assert.Equal(t, extra, added[0].Data)
}

func TestAddFileMalformedPayload(t *testing.T) {
	m, harness, sender, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))
	m.AddFile("$$$", "broken.mid")

	assert.Empty(t, harness.Engines()[0].Added())
	assert.NotEmpty(t, sender.ofKind(protocol.KindError))
	assert.Equal(t, StateReady, m.State(), "add failure must not kill the session")
}

func TestAddFileWithoutEngineDropped(t *testing.T) {
	m, _, sender, _ := newFixture(t)
	assert.NotPanics(t, func() { m.AddFile(transport.Encode([]byte{1}), "x.mid") })
	assert.Empty(t, sender.messages())
}

func TestCloseIsIdempotent(t *testing.T) {
	m, harness, _, _ := newFixture(t)

	require.NoError(t, m.Load(context.Background(), midiPayload(), "song.mid"))
	m.Close()
	m.Close()

	engines := harness.Engines()
	require.Len(t, engines, 1)
	assert.True(t, engines[0].Disposed())
	assert.Equal(t, StateEmpty, m.State())
}
