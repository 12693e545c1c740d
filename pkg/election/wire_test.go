package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/buildcached/pkg/cachetypes"
)

func TestDecodeLeaseNilIsNoLease(t *testing.T) {
	lease, err := decodeLease(nil)
	require.NoError(t, err)
	assert.True(t, lease.MasterLocation.IsNull())
}

func TestEncodeDecodeLeaseRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	lease := cachetypes.MasterLease{
		MasterLocation:    "node-a",
		CreationTimeUTC:   now,
		LastUpdateTimeUTC: now,
		LeaseExpiryUTC:    now.Add(10 * time.Minute),
	}

	raw, err := encodeLease(lease)
	require.NoError(t, err)

	got, err := decodeLease(raw)
	require.NoError(t, err)
	assert.Equal(t, lease.MasterLocation, got.MasterLocation)
	assert.True(t, lease.CreationTimeUTC.Equal(got.CreationTimeUTC))
	assert.True(t, lease.LeaseExpiryUTC.Equal(got.LeaseExpiryUTC))
}

func TestRoleOfExpiredLeaseIsNullMasterWorker(t *testing.T) {
	now := time.Now().UTC()
	lease := cachetypes.MasterLease{MasterLocation: "node-a", LeaseExpiryUTC: now.Add(-time.Second)}

	master, role := roleOf(lease, "node-a", now)
	assert.True(t, master.IsNull())
	assert.Equal(t, cachetypes.Worker, role)
}

func TestRoleOfHeldLeaseMatchingMeIsMaster(t *testing.T) {
	now := time.Now().UTC()
	lease := cachetypes.MasterLease{MasterLocation: "node-a", LeaseExpiryUTC: now.Add(time.Minute)}

	master, role := roleOf(lease, "node-a", now)
	assert.Equal(t, cachetypes.MasterLocation("node-a"), master)
	assert.Equal(t, cachetypes.Master, role)
}

func TestRoleOfHeldLeaseOtherParticipantIsWorker(t *testing.T) {
	now := time.Now().UTC()
	lease := cachetypes.MasterLease{MasterLocation: "node-a", LeaseExpiryUTC: now.Add(time.Minute)}

	master, role := roleOf(lease, "node-b", now)
	assert.Equal(t, cachetypes.MasterLocation("node-a"), master)
	assert.Equal(t, cachetypes.Worker, role)
}
