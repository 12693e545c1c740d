package localcas

import (
	"cmp"
	"context"
	"os"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/buildcached/pkg/hash"
)

type journalAccess struct {
	key        string
	size       int64
	lastAccess int64
}

// maybeEvict triggers a GC pass if adding justWritten bytes would push the
// store over its configured maximum.
func (s *Store) maybeEvict(ctx context.Context, justWritten int64) {
	if s.cfg.MaxSizeBytes <= 0 {
		return
	}
	if s.totalSize.Load() <= s.cfg.MaxSizeBytes {
		return
	}

	fraction := s.cfg.GCTargetFraction
	if fraction <= 0 || fraction >= 1 {
		fraction = 0.9
	}
	target := int64(float64(s.cfg.MaxSizeBytes) * fraction)
	s.evictToTarget(ctx, target)
}

// evictToTarget snapshots every journal entry under a read-only
// transaction, sorts oldest-first by last access, and removes entries
// until the running total is at or below targetSize — checking ctx.Err()
// between removals the same way the two-level cache's in-memory LRU does,
// so a long GC pass stays cancellable.
func (s *Store) evictToTarget(ctx context.Context, targetSize int64) (int64, error) {
	var entries []journalAccess
	err := s.journal.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(val []byte) error {
				e := decodeEntry(val)
				entries = append(entries, journalAccess{
					key:        key,
					size:       e.Size,
					lastAccess: e.LastAccess,
				})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slices.SortFunc(entries, func(a, b journalAccess) int {
		return cmp.Compare(a.lastAccess, b.lastAccess)
	})

	threshold := s.cfg.TouchThreshold
	cutoff := time.Now().Add(-threshold).UnixNano()

	var evicted int64
	var removed int
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if s.totalSize.Load() <= targetSize {
			break
		}
		if threshold > 0 && e.lastAccess >= cutoff {
			// Entries are sorted oldest-first: once we hit one younger
			// than the threshold, every later entry is too.
			break
		}

		h, parseErr := hash.Parse(e.key)
		if parseErr != nil {
			continue
		}

		if err := s.journal.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(e.key))
		}); err != nil {
			continue
		}
		_ = os.Remove(s.filePath(h))

		s.totalSize.Add(-e.size)
		evicted += e.size
		removed++
	}

	if s.metrics != nil {
		s.metrics.RecordEviction(evicted, removed)
		s.metrics.SetCurrentSize(s.totalSize.Load())
	}
	return evicted, nil
}

// EvictToTarget runs an explicit GC pass down to targetSize, for callers
// that manage GC on their own schedule rather than relying on the
// automatic trigger in PutStream/PutFile.
func (s *Store) EvictToTarget(ctx context.Context, targetSize int64) (int64, error) {
	return s.evictToTarget(ctx, targetSize)
}
