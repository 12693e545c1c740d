package localcas

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Store is the local content-addressed store. One Store owns one root
// directory; the journal (a badger database under root/.journal) records
// each entry's size and last-access time for LRU eviction. BadgerDB's own
// LSM files are memory-mapped, so the journal gets mmap'd durability
// without the store hand-rolling its own mapped file format.
type Store struct {
	root     string
	lockFile *os.File
	journal  *badger.DB
	cfg      Config
	metrics  metrics.LocalCASMetrics

	totalSize atomic.Int64
}

type journalEntry struct {
	Size       int64
	LastAccess int64 // unix nanos
}

func encodeEntry(e journalEntry) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.Size))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.LastAccess))
	return buf
}

func decodeEntry(b []byte) journalEntry {
	return journalEntry{
		Size:       int64(binary.BigEndian.Uint64(b[0:8])),
		LastAccess: int64(binary.BigEndian.Uint64(b[8:16])),
	}
}

// Open creates or reopens a Store rooted at cfg.RootDir.
func Open(cfg Config, m metrics.LocalCASMetrics) (*Store, error) {
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("localcas: create root: %w", err)
	}

	lockFile, err := lockRoot(cfg.RootDir)
	if err != nil {
		return nil, err
	}

	journalDir := filepath.Join(cfg.RootDir, ".journal")
	opts := badger.DefaultOptions(journalDir).WithLogger(nil)
	journal, err := badger.Open(opts)
	if err != nil {
		_ = unlockRoot(lockFile)
		return nil, fmt.Errorf("localcas: open journal: %w", err)
	}

	s := &Store{root: cfg.RootDir, lockFile: lockFile, journal: journal, cfg: cfg, metrics: m}

	var total int64
	_ = journal.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			_ = item.Value(func(val []byte) error {
				total += decodeEntry(val).Size
				return nil
			})
		}
		return nil
	})
	s.totalSize.Store(total)
	if m != nil {
		m.SetCurrentSize(total)
	}
	return s, nil
}

// Close releases the root lock and journal handle.
func (s *Store) Close() error {
	err := s.journal.Close()
	if unlockErr := unlockRoot(s.lockFile); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

func (s *Store) filePath(h hash.ContentHash) string {
	return filepath.Join(s.root, hash.BlobPath(h))
}

// Contains reports whether content h is present locally, without
// refreshing its last-access time.
func (s *Store) Contains(ctx context.Context, h hash.ContentHash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, cacheerr.NewCancelledError("")
	}
	hit := s.hasEntry(h)
	if s.metrics != nil {
		s.metrics.RecordContains(hit)
	}
	return hit, nil
}

func (s *Store) hasEntry(h hash.ContentHash) bool {
	var found bool
	_ = s.journal.View(func(txn *badger.Txn) error {
		_, err := txn.Get(journalKey(h))
		found = err == nil
		return nil
	})
	return found
}

// entrySize returns h's recorded size and whether an entry exists at all,
// used by the trusted put paths to report a correct size on the
// already-exists branch without re-reading the blob's bytes.
func (s *Store) entrySize(h hash.ContentHash) (int64, bool) {
	var size int64
	found := false
	_ = s.journal.View(func(txn *badger.Txn) error {
		item, err := txn.Get(journalKey(h))
		if err != nil {
			return nil
		}
		found = true
		return item.Value(func(val []byte) error {
			size = decodeEntry(val).Size
			return nil
		})
	})
	return size, found
}

// Pin marks content h as recently used, refreshing its place in LRU
// ordering without returning its bytes. Returns cacheerr.NotFound if h is
// not present locally.
func (s *Store) Pin(ctx context.Context, h hash.ContentHash) error {
	if err := ctx.Err(); err != nil {
		return cacheerr.NewCancelledError("")
	}

	var entry journalEntry
	found := false
	err := s.journal.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(journalKey(h))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			entry = decodeEntry(val)
			entry.LastAccess = time.Now().UnixNano()
			return txn.Set(journalKey(h), encodeEntry(entry))
		})
	})
	if s.metrics != nil {
		s.metrics.RecordPin(found)
	}
	if err != nil {
		return cacheerr.NewTerminalError("pin", h.String(), err)
	}
	if !found {
		return cacheerr.NewNotFoundError(h.String())
	}
	return nil
}

func journalKey(h hash.ContentHash) []byte {
	return []byte(h.String())
}

// OpenStream returns a reader for content h, refreshing its last-access
// time. Returns cacheerr.NotFound if h is not present locally.
func (s *Store) OpenStream(ctx context.Context, h hash.ContentHash) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, cacheerr.NewCancelledError("")
	}

	f, err := os.Open(s.filePath(h))
	if os.IsNotExist(err) {
		return nil, cacheerr.NewNotFoundError(h.String())
	}
	if err != nil {
		return nil, cacheerr.NewTerminalError("open", h.String(), err)
	}

	_ = s.touchAccess(h)
	return f, nil
}

// PlaceFile materializes content h at destPath using DefaultPlaceFileOptions
// (replace unconditionally, store-chosen realization, read-only).
func (s *Store) PlaceFile(ctx context.Context, h hash.ContentHash, destPath string) error {
	return s.PlaceFileWithOptions(ctx, h, destPath, DefaultPlaceFileOptions())
}

// PlaceFileWithOptions materializes content h at destPath honoring the
// full place_file parameter set from spec.md §4.3: Replacement governs
// what happens when destPath already exists, Realization chooses between
// a hard link and a copy, and Access sets the placed file's write mode.
// destPath's parent directory must already exist. Refreshes h's
// last-access time on success.
func (s *Store) PlaceFileWithOptions(ctx context.Context, h hash.ContentHash, destPath string, opts PlaceFileOptions) error {
	if err := ctx.Err(); err != nil {
		return cacheerr.NewCancelledError("")
	}

	if _, statErr := os.Lstat(destPath); statErr == nil {
		switch opts.Replacement {
		case FailIfExists:
			return cacheerr.NewAlreadyExistsError(destPath)
		case SkipIfExists:
			return nil
		case ReplaceExisting:
			if err := os.Remove(destPath); err != nil {
				return cacheerr.NewTerminalError("place_file: remove existing", destPath, err)
			}
		}
	} else if !os.IsNotExist(statErr) {
		return cacheerr.NewTerminalError("place_file: stat destination", destPath, statErr)
	}

	start := time.Now()
	n, err := s.placeBytes(h, destPath, opts.Realization)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o444)
	if opts.Access == AccessWrite {
		mode = 0o644
	}
	_ = os.Chmod(destPath, mode)

	_ = s.touchAccess(h)
	metrics.ObserveRead(s.metrics, n, time.Since(start))
	return nil
}

// placeBytes materializes h's bytes at destPath per realization, returning
// the number of bytes placed. PlaceHardLink links directly to the store's
// backing file (the source for h must exist, checked first);
// PlaceAny tries a hard link first and falls back to a copy; PlaceCopy
// always copies.
func (s *Store) placeBytes(h hash.ContentHash, destPath string, realization PlaceRealization) (int64, error) {
	src := s.filePath(h)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return 0, cacheerr.NewNotFoundError(h.String())
		}
		return 0, cacheerr.NewTerminalError("place_file: stat source", src, err)
	}

	switch realization {
	case PlaceHardLink:
		if err := os.Link(src, destPath); err != nil {
			return 0, cacheerr.NewTerminalError("place_file: hard link", destPath, err)
		}
		info, _ := os.Stat(destPath)
		return info.Size(), nil
	case PlaceAny:
		if err := os.Link(src, destPath); err == nil {
			info, _ := os.Stat(destPath)
			return info.Size(), nil
		}
		return s.copyToDest(src, destPath)
	default: // PlaceCopy
		return s.copyToDest(src, destPath)
	}
}

func (s *Store) copyToDest(src, destPath string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, cacheerr.NewTerminalError("place_file: open source", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, cacheerr.NewTerminalError("place_file: create destination", destPath, err)
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, in)
	if err != nil {
		return n, cacheerr.NewTerminalError("place_file: copy", destPath, err)
	}
	return n, nil
}

func (s *Store) touchAccess(h hash.ContentHash) error {
	return s.journal.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(journalKey(h))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			entry := decodeEntry(val)
			entry.LastAccess = time.Now().UnixNano()
			return txn.Set(journalKey(h), encodeEntry(entry))
		})
	})
}
