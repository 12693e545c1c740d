package memo

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/marmos91/buildcached/pkg/cachetypes"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// CompareExchange replaces strongFingerprint's entry with newValue, but
// only if the entry currently matches expectedToken (the token a prior
// Get/add_or_get attempt observed) — or, when expectMissing is true, only
// if no entry exists yet. Badger's own transaction conflict detection
// catches a concurrent writer that touched the same key between this
// call's read and its commit; a token mismatch observed within this call
// is reported the same way, as ok=false, not an error.
func (s *Store) CompareExchange(fp cachetypes.StrongFingerprint, expectedToken string, expectMissing bool, newValue cachetypes.ContentHashListWithDeterminism) (ok bool, newToken string, err error) {
	newToken = uuid.NewString()

	err = s.db.Update(func(txn *badger.Txn) error {
		item, getErr := txn.Get(key(fp))
		switch {
		case getErr == badger.ErrKeyNotFound:
			if !expectMissing {
				ok = false
				return nil
			}
		case getErr != nil:
			return getErr
		default:
			if expectMissing {
				ok = false
				return nil
			}
			var current record
			if valErr := item.Value(func(val []byte) error {
				var decodeErr error
				current, decodeErr = decodeRecord(val)
				return decodeErr
			}); valErr != nil {
				return valErr
			}
			if current.ReplacementToken != expectedToken {
				ok = false
				return nil
			}
		}

		buf, encErr := encodeRecord(record{
			Value:            newValue,
			ReplacementToken: newToken,
			LastAccessUnixNS: time.Now().UnixNano(),
		})
		if encErr != nil {
			return encErr
		}
		ok = true
		return txn.Set(key(fp), buf)
	})

	if err == badger.ErrConflict {
		ok, err = false, nil
	}
	metrics.RecordCompareExchange(s.metrics, ok)
	return ok, newToken, err
}
