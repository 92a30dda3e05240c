// Package store provides the run archive for Muninn.
//
// A synthesis run is keyed by its corpus content hash, so re-running the
// engine over an unchanged corpus overwrites the same entry instead of
// piling up duplicates. Two engines implement the Store interface:
// MemoryStore for tests and single-shot runs, BadgerStore for a
// persistent archive on disk.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrNotFound is returned when no report exists under a key.
	ErrNotFound = errors.New("store: report not found")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// Meta describes an archived report without loading its body.
type Meta struct {
	// Key is the corpus content hash the report was produced from.
	Key string `json:"key"`

	// CreatedAt is when the report was archived.
	CreatedAt time.Time `json:"created_at"`

	// Records is the number of corpus records behind the report.
	Records int `json:"records"`

	// Insights is the number of synthesized insights in the report.
	Insights int `json:"insights"`
}

// Store archives synthesis reports as opaque JSON bodies.
type Store interface {
	// SaveReport archives a report body under meta.Key, replacing any
	// previous entry for the same key.
	SaveReport(meta Meta, body []byte) error

	// GetReport returns the archived body and metadata for key.
	// Returns ErrNotFound if the key has never been archived.
	GetReport(key string) ([]byte, Meta, error)

	// ListReports returns metadata for every archived report, ordered
	// by key.
	ListReports() ([]Meta, error)

	// Close releases the store. Further operations return ErrClosed.
	Close() error
}

// ====== MEMORY STORE ======

// MemoryStore keeps the archive in process memory.
//
// Useful for tests and for runs that only need the archive within a
// single process lifetime. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	bodies  map[string][]byte
	metas   map[string]Meta
	closed  bool
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bodies: make(map[string][]byte),
		metas:  make(map[string]Meta),
	}
}

// SaveReport archives a report body under meta.Key.
func (s *MemoryStore) SaveReport(meta Meta, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if meta.Key == "" {
		return fmt.Errorf("store: empty report key")
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	s.bodies[meta.Key] = buf
	s.metas[meta.Key] = meta
	return nil
}

// GetReport returns the archived body and metadata for key.
func (s *MemoryStore) GetReport(key string) ([]byte, Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, Meta{}, ErrClosed
	}
	body, ok := s.bodies[key]
	if !ok {
		return nil, Meta{}, ErrNotFound
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, s.metas[key], nil
}

// ListReports returns metadata for every archived report, ordered by key.
func (s *MemoryStore) ListReports() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	metas := make([]Meta, 0, len(s.metas))
	for _, m := range s.metas {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key < metas[j].Key })
	return metas, nil
}

// Close releases the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ====== BADGER STORE ======

// Key prefixes for BadgerDB storage organization.
// Using single-byte prefixes for efficiency.
const (
	prefixBody = byte(0x01) // 0x01 + key -> report JSON
	prefixMeta = byte(0x02) // 0x02 + key -> JSON(Meta)
)

// BadgerStore persists the archive on disk using BadgerDB.
//
// Key Structure:
//   - Bodies: 0x01 + corpus hash -> report JSON
//   - Metas:  0x02 + corpus hash -> JSON(Meta)
//
// Example:
//
//	archive, err := store.NewBadgerStore("./data/muninn")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer archive.Close()
type BadgerStore struct {
	db     *badger.DB
	mu     sync.Mutex
	closed bool
}

// BadgerOptions configures the BadgerDB archive.
type BadgerOptions struct {
	// DataDir is the directory for storing data files. Required unless
	// InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing;
	// data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool
}

// NewBadgerStore opens a persistent archive in dataDir with default
// settings. The directory is created if it doesn't exist.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreWithOptions opens an archive with custom configuration.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	// Modest buffer sizes: the archive holds reports, not a live graph.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: opening badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens an in-memory BadgerDB archive for
// testing. Data is lost when the store is closed.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// SaveReport archives a report body under meta.Key.
func (s *BadgerStore) SaveReport(meta Meta, body []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if meta.Key == "" {
		return fmt.Errorf("store: empty report key")
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: encoding meta: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(prefixed(prefixBody, meta.Key), body); err != nil {
			return err
		}
		return txn.Set(prefixed(prefixMeta, meta.Key), metaJSON)
	})
	if err != nil {
		return fmt.Errorf("store: saving report %s: %w", meta.Key, err)
	}
	return nil
}

// GetReport returns the archived body and metadata for key.
func (s *BadgerStore) GetReport(key string) ([]byte, Meta, error) {
	if err := s.check(); err != nil {
		return nil, Meta{}, err
	}
	var (
		body []byte
		meta Meta
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(prefixBody, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get(prefixed(prefixMeta, key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &meta)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Meta{}, ErrNotFound
		}
		return nil, Meta{}, fmt.Errorf("store: loading report %s: %w", key, err)
	}
	return body, meta, nil
}

// ListReports returns metadata for every archived report, ordered by key.
func (s *BadgerStore) ListReports() ([]Meta, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var metas []Meta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixMeta}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m Meta
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &m)
			}); err != nil {
				return err
			}
			metas = append(metas, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing reports: %w", err)
	}
	// Badger iterates keys in byte order, which already matches the key
	// ordering contract; keep the explicit sort in case that changes.
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key < metas[j].Key })
	return metas, nil
}

// Close releases the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *BadgerStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func prefixed(prefix byte, key string) []byte {
	out := make([]byte, 0, len(key)+1)
	out = append(out, prefix)
	return append(out, key...)
}
