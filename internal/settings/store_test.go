package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/protocol"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := NewStore(dir, logging.NewNop())
	require.NoError(t, err)
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := newStore(t, t.TempDir())

	saved := protocol.Appearance{"palette": "warm", "noteColor": "#ff8800"}
	require.NoError(t, s.Save("/music/song.mid", saved))

	got, ok := s.Load("/music/song.mid")
	require.True(t, ok)
	assert.Equal(t, saved, got)
}

// TestLoadUnknownReturnsNone tests that a never-saved document yields
// the explicit "none" marker, not an error.
func TestLoadUnknownReturnsNone(t *testing.T) {
	s := newStore(t, t.TempDir())

	got, ok := s.Load("/music/never-seen.mid")
	assert.False(t, ok)
	assert.Nil(t, got)
}

// TestSaveOverwritesWholesale tests that saves replace the whole
// record; there is no field-level merge.
func TestSaveOverwritesWholesale(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.Save("/a.mid", protocol.Appearance{"palette": "warm", "shape": "diamond"}))
	require.NoError(t, s.Save("/a.mid", protocol.Appearance{"noteColor": "#00ff00"}))

	got, ok := s.Load("/a.mid")
	require.True(t, ok)
	assert.Equal(t, protocol.Appearance{"noteColor": "#00ff00"}, got)
	assert.NotContains(t, got, "palette")
}

// TestPersistsAcrossInstances tests durability: a fresh store over the
// same directory sees prior saves.
func TestPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	first := newStore(t, dir)
	require.NoError(t, first.Save("/b.mid", protocol.Appearance{"palette": "mono"}))

	second := newStore(t, dir)
	got, ok := second.Load("/b.mid")
	require.True(t, ok)
	assert.Equal(t, "mono", got["palette"])
}

func TestDocumentsAreIsolated(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.Save("/one.mid", protocol.Appearance{"palette": "warm"}))
	require.NoError(t, s.Save("/two.mid", protocol.Appearance{"palette": "cold"}))

	one, ok := s.Load("/one.mid")
	require.True(t, ok)
	two, ok := s.Load("/two.mid")
	require.True(t, ok)
	assert.Equal(t, "warm", one["palette"])
	assert.Equal(t, "cold", two["palette"])
}

func TestDelete(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.Save("/c.mid", protocol.Appearance{"palette": "warm"}))
	require.NoError(t, s.Delete("/c.mid"))

	_, ok := s.Load("/c.mid")
	assert.False(t, ok)

	// Deleting an absent record is not an error.
	assert.NoError(t, s.Delete("/c.mid"))
}

// TestUnparseableRecordTreatedAsAbsent tests the conservative handling
// of a corrupted on-disk record.
func TestUnparseableRecordTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t, dir)

	require.NoError(t, s.Save("/d.mid", protocol.Appearance{"palette": "warm"}))

	// Corrupt the record behind the store's back, then read through a
	// fresh instance so the cache cannot mask it.
	entries, err := os.ReadDir(filepath.Join(dir, "appearance"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "appearance", entries[0].Name()), []byte("{broken"), 0o644))

	fresh := newStore(t, dir)
	_, ok := fresh.Load("/d.mid")
	assert.False(t, ok)
}
