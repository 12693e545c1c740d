// Package eventstream propagates CAS state changes (pkg/events.Event)
// between peers: a publisher batches and sends them over a pluggable
// transport, a subscriber partitions incoming batches by sender so that
// per-sender order is preserved while distinct senders are processed in
// parallel, and a pending-queue advance routine tracks how far the
// consumer has caught up without ever skipping an incomplete batch.
package eventstream

import "time"

// ValidationMode controls how the codec's structural checks are enforced.
type ValidationMode int

const (
	// ValidationOff skips structural validation entirely.
	ValidationOff ValidationMode = iota

	// ValidationTrace logs discrepancies but still accepts the message.
	ValidationTrace

	// ValidationFail rejects a message that fails structural validation.
	ValidationFail
)

// Config configures a Publisher or Subscriber.
type Config struct {
	// Epoch tags every published event; a Subscriber configured with a
	// different Epoch drops the event instead of dispatching it.
	Epoch string

	// SenderMachine identifies this process as an event producer.
	SenderMachine string

	// MaxBatchSize bounds how many events one published batch carries;
	// Publish splits larger calls into several batches. Consume does not
	// check the size of incoming batches.
	MaxBatchSize int

	// Partitions is the per-store parallelism P: incoming batches are
	// sharded by hash(sender) mod P so that same-sender events process in
	// order while distinct senders proceed concurrently.
	Partitions int

	// PartitionCapacity bounds each partition's queue; a full partition
	// makes its submitter await room (backpressure), never drop.
	PartitionCapacity int

	// Validation controls the structural validation a Subscriber applies
	// to each decoded event before dispatching it.
	Validation ValidationMode

	// MaxPublishAttempts bounds the publish retry wrapper's attempts for a
	// single batch.
	MaxPublishAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(epoch, senderMachine string) Config {
	return Config{
		Epoch:              epoch,
		SenderMachine:      senderMachine,
		MaxBatchSize:       100,
		Partitions:         8,
		PartitionCapacity:  64,
		Validation:         ValidationTrace,
		MaxPublishAttempts: 5,
		InitialBackoff:     100 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
	}
}
