package cachetypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMasterLeaseHeld(t *testing.T) {
	now := time.Now()
	lease := MasterLease{LeaseExpiryUTC: now.Add(time.Minute)}
	assert.True(t, lease.Held(now))

	expired := MasterLease{LeaseExpiryUTC: now.Add(-time.Minute)}
	assert.False(t, expired.Held(now))
}

func TestMasterLocationIsNull(t *testing.T) {
	var loc MasterLocation
	assert.True(t, loc.IsNull())
	assert.False(t, MasterLocation("node-1").IsNull())
}
