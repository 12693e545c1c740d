package eventstream

import "github.com/marmos91/buildcached/pkg/events"

// Batch is one published unit: a sequence of events from a single sender,
// tagged with the sequence number of its last event.
type Batch struct {
	SenderMachine string
	Epoch         string
	OperationID   string
	Events        []events.Event
	Seq           uint64
}
