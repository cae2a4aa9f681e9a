package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/cloudx-io/sealedbid/core"
)

const (
	snapshotKey     = "auction:snapshot"
	auctionIDKey    = "auction:id"
	settlementKey   = "auction:settlement"
	payoutSeqKey    = "payout:seq"
	payoutKeyPrefix = "payout:entry:"
)

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = errors.New("store closed")

// Store persists the auction host's state in LevelDB: the core snapshot, the payout
// journal and the settlement record.
type Store struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) a LevelDB database under dir.
func Open(dir string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("store directory required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a store backed by in-memory LevelDB storage.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// LoadSnapshot returns the persisted auction state. ok is false if none was saved.
func (s *Store) LoadSnapshot() (snap core.Snapshot, ok bool, err error) {
	data, ok, err := s.get(snapshotKey, "load snapshot")
	if err != nil || !ok {
		return core.Snapshot{}, ok, err
	}
	snap, err = core.UnmarshalSnapshot(data)
	if err != nil {
		return core.Snapshot{}, false, err
	}
	return snap, true, nil
}

// AuctionID returns the persisted auction identifier.
func (s *Store) AuctionID() (string, bool, error) {
	data, ok, err := s.get(auctionIDKey, "load auction id")
	return string(data), ok, err
}

// PutAuctionID records the auction identifier.
func (s *Store) PutAuctionID(id string) error {
	if id == "" {
		return fmt.Errorf("empty auction id")
	}
	return s.put(auctionIDKey, []byte(id), "save auction id")
}

func (s *Store) put(key string, value []byte, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) get(key string, op string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, false, ErrClosed
	}
	data, err := s.db.Get([]byte(key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return data, true, nil
}
