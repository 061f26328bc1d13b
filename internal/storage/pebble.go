package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
)

var log = logging.For("storage")

// keyPrefix namespaces client keys inside the pebble keyspace.
const keyPrefix = "client:"

// PebbleStore persists client state in a local pebble database.
type PebbleStore struct {
	mu sync.RWMutex
	db *pebble.DB
}

// OpenPebble opens (or creates) the database under dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	return OpenPebbleWithOptions(dir, &pebble.Options{})
}

// OpenPebbleWithOptions opens the database with caller supplied options; tests
// pass an in-memory vfs.
func OpenPebbleWithOptions(dir string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		log.WithError(err).WithField("path", dir).Error("pebble open failed")
		return nil, fmt.Errorf("open storage %s: %w", dir, err)
	}
	log.WithField("path", dir).Debug("pebble opened")
	return &PebbleStore{db: db}, nil
}

// Get returns the stored value or ErrNotFound.
func (s *PebbleStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return "", errClosed
	}

	value, closer, err := s.db.Get([]byte(keyPrefix + key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	return string(value), nil
}

// Set stores value under key with a synced write.
func (s *PebbleStore) Set(key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return errClosed
	}
	if err := s.db.Set([]byte(keyPrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *PebbleStore) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return errClosed
	}
	if err := s.db.Delete([]byte(keyPrefix+key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database. Closing twice is a no-op.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

var errClosed = errors.New("storage closed")
