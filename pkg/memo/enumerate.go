package memo

import (
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/buildcached/pkg/cachetypes"
)

// EnumerateStrongFingerprints walks every memoized entry and invokes fn
// with the fingerprint, its value, and its last-access time. fn returning
// false stops the walk early. No component in this module calls it; it
// performs a full prefix scan, not an indexed lookup.
func (s *Store) EnumerateStrongFingerprints(fn func(fp cachetypes.StrongFingerprint, value cachetypes.ContentHashListWithDeterminism, lastAccessUnixNS int64) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			item := it.Item()
			fp, ok := parseKey(item.Key())
			if !ok {
				continue
			}

			var rec record
			if err := item.Value(func(val []byte) error {
				var err error
				rec, err = decodeRecord(val)
				return err
			}); err != nil {
				return err
			}

			if !fn(fp, rec.Value, rec.LastAccessUnixNS) {
				return nil
			}
		}
		return nil
	})
}

// parseKey recovers the StrongFingerprint encoded by key.
func parseKey(k []byte) (cachetypes.StrongFingerprint, bool) {
	rest := strings.TrimPrefix(string(k), keyPrefix)
	parts := strings.SplitN(rest, "\x00", 2)
	if len(parts) != 2 {
		return cachetypes.StrongFingerprint{}, false
	}
	return cachetypes.StrongFingerprint{WeakFingerprint: parts[0], Selector: parts[1]}, true
}
