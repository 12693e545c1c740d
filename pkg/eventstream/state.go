package eventstream

import (
	"sync/atomic"
	"time"
)

// State is the subscriber's lifecycle state: Idle before the first Start,
// Processing while consuming, Suspended when told to drop its in-flight
// pending queue, Stopped once shut down for good.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateSuspended
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// sharedState tracks one consumed batch's completion. It is enqueued onto
// the subscriber's pending queue before any of its messages are
// dispatched, so the advance routine can never observe a sequence number
// higher than every batch published before it, even though batches from
// distinct senders complete in arbitrary order.
type sharedState struct {
	seq         uint64
	publishedAt time.Time
	remaining   atomic.Int64
	complete    atomic.Bool
}

func newSharedState(seq uint64, publishedAt time.Time, count int) *sharedState {
	s := &sharedState{seq: seq, publishedAt: publishedAt}
	s.remaining.Store(int64(count))
	if count == 0 {
		s.complete.Store(true)
	}
	return s
}

// markOne records one message's completion (dispatched, dropped, or
// failed — every outcome still counts) and reports whether this call
// observed the batch's last remaining message.
func (s *sharedState) markOne() bool {
	if s.remaining.Add(-1) == 0 {
		s.complete.Store(true)
		return true
	}
	return false
}
