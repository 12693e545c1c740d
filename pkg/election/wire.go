package election

import (
	"encoding/json"
	"time"

	"github.com/marmos91/buildcached/pkg/cachetypes"
)

// wireLease is the self-describing lease record persisted at
// {container}/{key}. time.Time marshals as RFC3339 (ISO-8601) by default;
// the zero value for every field is the "no lease" record.
type wireLease struct {
	Master            string    `json:"master"`
	CreationTimeUTC   time.Time `json:"creationTimeUtc"`
	LastUpdateTimeUTC time.Time `json:"lastUpdateTimeUtc"`
	LeaseExpiryUTC    time.Time `json:"leaseExpiryTimeUtc"`
}

func (w wireLease) toLease() cachetypes.MasterLease {
	return cachetypes.MasterLease{
		MasterLocation:    cachetypes.MasterLocation(w.Master),
		CreationTimeUTC:   w.CreationTimeUTC,
		LastUpdateTimeUTC: w.LastUpdateTimeUTC,
		LeaseExpiryUTC:    w.LeaseExpiryUTC,
	}
}

func fromLease(l cachetypes.MasterLease) wireLease {
	return wireLease{
		Master:            string(l.MasterLocation),
		CreationTimeUTC:   l.CreationTimeUTC,
		LastUpdateTimeUTC: l.LastUpdateTimeUTC,
		LeaseExpiryUTC:    l.LeaseExpiryUTC,
	}
}

// decodeLease parses raw (nil meaning the blob does not yet exist) into a
// lease, treating both a missing blob and an explicit empty record as "no
// lease currently held".
func decodeLease(raw []byte) (cachetypes.MasterLease, error) {
	if len(raw) == 0 {
		return cachetypes.MasterLease{}, nil
	}
	var w wireLease
	if err := json.Unmarshal(raw, &w); err != nil {
		return cachetypes.MasterLease{}, err
	}
	return w.toLease(), nil
}

func encodeLease(l cachetypes.MasterLease) ([]byte, error) {
	return json.Marshal(fromLease(l))
}
