package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryLifecycle(t *testing.T) {
	Reset()
	assert.False(t, IsEnabled())

	reg := InitRegistry()
	assert.NotNil(t, reg)
	assert.True(t, IsEnabled())

	// Second call is idempotent and returns the same registry.
	assert.Same(t, reg, InitRegistry())

	Reset()
	assert.False(t, IsEnabled())
}

func TestMetricsNilWhenDisabled(t *testing.T) {
	Reset()

	assert.Nil(t, NewLocalCASMetrics())
	assert.Nil(t, NewBlobstoreMetrics())
	assert.Nil(t, NewMemoMetrics())
	assert.Nil(t, NewElectionMetrics())
	assert.Nil(t, NewEventStreamMetrics())
	assert.Nil(t, NewCopyClientMetrics())
}
