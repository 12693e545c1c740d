package memo

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/buildcached/pkg/cachetypes"
)

// record is the on-disk representation of a memoization entry: the
// memoized value plus bookkeeping compare-exchange and last-access need.
// JSON, matching the teacher's badger metadata store convention of
// self-describing values over a hand-rolled binary layout for anything
// beyond a fixed-width counter.
type record struct {
	Value            cachetypes.ContentHashListWithDeterminism `json:"value"`
	ReplacementToken string                                    `json:"replacement_token"`
	LastAccessUnixNS int64                                     `json:"last_access_unix_ns"`
}

func encodeRecord(r record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("memo: encode record: %w", err)
	}
	return b, nil
}

func decodeRecord(b []byte) (record, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return record{}, fmt.Errorf("memo: decode record: %w", err)
	}
	return r, nil
}

// key is the badger key for a StrongFingerprint's memo entry.
func key(fp cachetypes.StrongFingerprint) []byte {
	return []byte("fp:" + fp.WeakFingerprint + "\x00" + fp.Selector)
}

const keyPrefix = "fp:"
