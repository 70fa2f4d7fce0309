package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatbridge/pkg/constants"

	"github.com/sirupsen/logrus"
)

const envelopeVersion = 1

// envelope is the on-disk document. Entries map a message fingerprint to
// the unix timestamp at which its reply was delivered.
type envelope struct {
	Version int              `json:"version"`
	Entries map[string]int64 `json:"entries"`
}

// Store is the persisted set of processed-message fingerprints. A
// fingerprint present in the store is never reprocessed, even across
// restarts. Writes replace the whole file atomically so an external
// reader never observes a partial document.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]int64
	logger  *logrus.Logger
}

func NewStore(path string, logger *logrus.Logger) *Store {
	return &Store{
		path:    path,
		entries: make(map[string]int64),
		logger:  logger,
	}
}

// Load reads the persisted fingerprint set. A missing, unreadable, or
// corrupt file yields an empty cache with a warning, never an error, so
// a damaged cache cannot block startup. The cost of failing open is a
// possible duplicate reply, which is preferred over a dead process.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]int64)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", s.path).Warn("Failed to read cache file, starting empty")
		}
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Cache file is corrupt, starting empty")
		return
	}
	if env.Version != envelopeVersion {
		s.logger.WithFields(logrus.Fields{
			"path":    s.path,
			"version": env.Version,
		}).Warn("Cache file has unknown version, starting empty")
		return
	}

	if env.Entries != nil {
		s.entries = env.Entries
	}

	s.logger.WithField("count", len(s.entries)).Debug("Loaded processed-message cache")
}

// Seen reports whether the fingerprint has already been processed.
func (s *Store) Seen(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[fingerprint]
	return ok
}

// Mark records the fingerprint as processed and persists synchronously.
// The write must be durable before the caller treats the delivery as
// final, so a crash after delivery never causes redelivery on restart.
// A failed write rolls the entry back; Seen never reports a fingerprint
// the file does not hold.
func (s *Store) Mark(fingerprint string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entries[fingerprint]
	s.entries[fingerprint] = processedAt.Unix()
	if err := s.flushLocked(); err != nil {
		if existed {
			s.entries[fingerprint] = prev
		} else {
			delete(s.entries, fingerprint)
		}
		return err
	}
	return nil
}

// Flush persists the current fingerprint set. Mark and PruneOlderThan
// flush on their own; this exists for shutdown paths that want a final
// write regardless.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Size returns the number of cached fingerprints.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PruneOlderThan drops entries processed more than the given number of
// days ago and persists the result. Zero or negative days disables
// pruning. Returns the number of entries removed.
func (s *Store) PruneOlderThan(days int) (int, error) {
	if days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for fingerprint, processedAt := range s.entries {
		if processedAt < cutoff {
			delete(s.entries, fingerprint)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.flushLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// flushLocked writes the envelope to a temp file in the target directory
// and renames it over the cache file. Rename within one filesystem is
// atomic, so concurrent readers see either the old document or the new
// one, never a partial write. Caller must hold the write lock.
func (s *Store) flushLocked() error {
	data, err := json.Marshal(envelope{Version: envelopeVersion, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, constants.DefaultDirectoryPermissions); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "cache_*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}

	// CreateTemp modes are umask-dependent; the replaced file keeps the
	// temp file's mode, so pin it.
	if err := tempFile.Chmod(constants.DefaultFilePermissions); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to set cache file mode: %w", err)
	}

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
