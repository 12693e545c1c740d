package memo

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/buildcached/pkg/cachetypes"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Store is the badger-backed memoization store. One Store owns one badger
// database; fingerprintLocks serializes add_or_get's read-decide-write
// cycle per StrongFingerprint the same way the metadata store's
// lockFile/lockDir serialize per-file and per-directory operations.
type Store struct {
	db      *badger.DB
	cfg     Config
	metrics metrics.MemoMetrics

	fingerprintLocks sync.Map // string -> *sync.Mutex
}

// Open creates or reopens a Store rooted at cfg.Dir.
func Open(cfg Config, m metrics.MemoMetrics) (*Store, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("memo: open: %w", err)
	}
	return &Store{db: db, cfg: cfg, metrics: m}, nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// lockFingerprint returns fp's mutex, locked, creating it on first use.
func (s *Store) lockFingerprint(fp cachetypes.StrongFingerprint) *sync.Mutex {
	v, _ := s.fingerprintLocks.LoadOrStore(fp.String(), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}
