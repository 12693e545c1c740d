package memo

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cachetypes"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Get resolves strongFingerprint to its memoized value, returning
// cachetypes.SourceLocal (this store has only one tier, so preferShared is
// accepted for interface symmetry with a future remote-backed
// implementation but does not change where the read happens). found is
// false on a miss. A hit updates the entry's last-access time regardless
// of whether the caller goes on to replace it.
func (s *Store) Get(ctx context.Context, fp cachetypes.StrongFingerprint, preferShared bool) (value cachetypes.ContentHashListWithDeterminism, replacementToken string, source cachetypes.Source, found bool, err error) {
	_, span := telemetry.StartComponentSpan(ctx, "memo", "Get", telemetry.WeakFingerprint(fp.WeakFingerprint))
	defer span.End()

	rec, found, err := s.read(fp)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return cachetypes.ContentHashListWithDeterminism{}, "", cachetypes.SourceLocal, false, err
	}
	metrics.RecordGet(s.metrics, found)
	if !found {
		return cachetypes.ContentHashListWithDeterminism{}, "", cachetypes.SourceLocal, false, nil
	}

	if err := s.touch(fp, rec); err != nil {
		telemetry.RecordError(ctx, err)
		return cachetypes.ContentHashListWithDeterminism{}, "", cachetypes.SourceLocal, false, err
	}

	return rec.Value, rec.ReplacementToken, cachetypes.SourceLocal, true, nil
}

func (s *Store) read(fp cachetypes.StrongFingerprint) (record, bool, error) {
	var rec record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(fp))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			rec, err = decodeRecord(val)
			return err
		})
	})
	return rec, found, err
}

// touch updates rec's last-access time in place without altering its
// replacement token, so a concurrent CompareExchange against the same
// token still succeeds.
func (s *Store) touch(fp cachetypes.StrongFingerprint, rec record) error {
	rec.LastAccessUnixNS = time.Now().UnixNano()
	buf, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(fp), buf)
	})
}
