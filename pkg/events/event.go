// Package events defines the CAS event envelope that pkg/remotecas emits
// and pkg/eventstream publishes and replays to peers.
// It exists as its own package so that the content-store layers can emit
// events without importing the event stream's transport and ordering
// machinery, and so pkg/eventstream can consume events without importing
// the stores that produce them.
package events

// Kind identifies which state change an Event reports.
type Kind int

const (
	// Add reports that content was newly written to a store.
	Add Kind = iota

	// Touch reports that existing content had its last-access time
	// refreshed, keeping it alive against GC.
	Touch

	// Delete reports that content is no longer present — either evicted,
	// or found missing where it was expected (a corrupt or GC'd remote
	// blob, surfaced as a Delete so peers drop it from their view too).
	Delete
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Touch:
		return "touch"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is the tagged union of CAS state changes propagated through the
// event stream. Hash identifies the content; Size is zero for Delete.
type Event struct {
	Kind Kind
	Hash string // hash.ContentHash.String(); kept as a string to avoid an import cycle with pkg/hash callers that don't need the type
	Size int64

	// Epoch and SenderMachine are filled in by the publisher
	// (pkg/eventstream) from its own configuration, not by the emitting
	// component; OperationID is threaded through from the originating
	// call for tracing correlation.
	Epoch         string
	SenderMachine string
	OperationID   string
}

// Emitter accepts CAS events for publication. pkg/remotecas holds one to
// report Add/Touch/Delete as a side effect of pin/open_stream/put_stream;
// pkg/eventstream's publisher satisfies it. A nil Emitter is valid and
// silently drops events, the same convention pkg/metrics uses for a
// disabled collector.
type Emitter interface {
	Emit(e Event)
}

// Emit calls e.Emit if e is non-nil, letting callers hold a possibly-nil
// Emitter without a nil check at every call site.
func Emit(e Emitter, ev Event) {
	if e == nil {
		return
	}
	e.Emit(ev)
}
