// Package settings persists per-document display preferences in
// host-durable storage, keyed by document identity.
package settings

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/midiview/midiview/internal/logging"
	"github.com/midiview/midiview/internal/protocol"
)

// namespace isolates appearance records from anything else sharing the
// storage directory.
const namespace = "appearance"

// record is the on-disk shape of one settings entry.
type record struct {
	URI       string              `json:"uri"`
	Settings  protocol.Appearance `json:"settings"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Store persists appearance settings, one record per document URI,
// overwritten wholesale on each save. A sync.Map front caches reads.
type Store struct {
	log   *logging.Logger
	dir   string
	cache sync.Map // uri -> protocol.Appearance
}

// NewStore opens (creating if needed) a store under dir.
func NewStore(dir string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNop()
	}
	full := filepath.Join(dir, namespace)
	if err := os.MkdirAll(full, 0o755); err != nil {
		return nil, fmt.Errorf("settings: create %s: %w", full, err)
	}
	return &Store{log: log, dir: full}, nil
}

// Save overwrites the record for uri wholesale. No field-level merge.
func (s *Store) Save(uri string, a protocol.Appearance) error {
	rec := record{URI: uri, Settings: a, UpdatedAt: time.Now()}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("settings: marshal for %s: %w", uri, err)
	}
	if err := os.WriteFile(s.path(uri), data, 0o644); err != nil {
		return fmt.Errorf("settings: persist for %s: %w", uri, err)
	}
	s.cache.Store(uri, a)
	return nil
}

// Load fetches the stored settings for uri. A never-saved document
// returns (nil, false): an explicit "none", not an error. Stored
// records are passed through as-is, without schema validation; only a
// record that fails to parse at all is treated as absent.
func (s *Store) Load(uri string) (protocol.Appearance, bool) {
	if val, ok := s.cache.Load(uri); ok {
		return val.(protocol.Appearance), true
	}

	data, err := os.ReadFile(s.path(uri))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("settings read failed", zap.String("uri", uri), zap.Error(err))
		}
		return nil, false
	}

	var rec record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		s.log.Warn("discarding unparseable settings record", zap.String("uri", uri), zap.Error(err))
		return nil, false
	}

	s.cache.Store(uri, rec.Settings)
	return rec.Settings, true
}

// Delete removes the record for uri, if any.
func (s *Store) Delete(uri string) error {
	s.cache.Delete(uri)
	if err := os.Remove(s.path(uri)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("settings: delete for %s: %w", uri, err)
	}
	return nil
}

// path maps a URI to its record file. URIs contain separators and
// scheme characters, so the filename is a digest of the key.
func (s *Store) path(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return filepath.Join(s.dir, fmt.Sprintf("%x.json", sum[:12]))
}
