package eventstream

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Handler dispatches one decoded event to the application. A Handler error
// is counted and traced, never fatal to the subscriber: per spec.md §7,
// the event-stream consumer never fails the process over a single event.
type Handler func(ctx context.Context, ev events.Event) error

// workItem is one message queued onto a partition, carrying back a
// reference to the batch-level sharedState it must mark done on
// completion regardless of outcome.
type workItem struct {
	ctx   context.Context
	state *sharedState
	frame FrameResult
}

// Subscriber consumes published event envelopes, partitioning messages by
// hash(sender) mod P so that a given sender's events are always dispatched
// in publish order while distinct senders proceed in parallel, and
// advancing a monotonic sequence point only once every message of a batch
// — success, drop, or failure alike — has been accounted for.
type Subscriber struct {
	cfg     Config
	codec   Codec
	handler Handler
	metrics metrics.EventStreamMetrics

	mu      sync.Mutex
	state   State
	pending []*sharedState
	lastSeq atomic.Uint64

	partitions []chan workItem
	group      *errgroup.Group
	groupStop  context.CancelFunc

	advancing atomic.Bool
	dirty     atomic.Bool
}

// NewSubscriber constructs a Subscriber in the Idle state.
func NewSubscriber(cfg Config, codec Codec, handler Handler, m metrics.EventStreamMetrics) *Subscriber {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.PartitionCapacity <= 0 {
		cfg.PartitionCapacity = 64
	}
	return &Subscriber{cfg: cfg, codec: codec, handler: handler, metrics: m, state: StateIdle}
}

// State reports the subscriber's current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastProcessedSequence returns the highest sequence number known to have
// every earlier batch fully dispatched.
func (s *Subscriber) LastProcessedSequence() uint64 {
	return s.lastSeq.Load()
}

// Start transitions Idle/Suspended/Stopped → Processing: it creates a
// fresh pending queue, seeds the sequence point at seed (the caller's
// last known-good position, e.g. from a prior session), and spawns one
// worker goroutine per partition.
func (s *Subscriber) Start(ctx context.Context, seed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateProcessing
	s.pending = nil
	s.lastSeq.Store(seed)

	groupCtx, cancel := context.WithCancel(ctx)
	g, groupCtx := errgroup.WithContext(groupCtx)
	s.group = g
	s.groupStop = cancel

	s.partitions = make([]chan workItem, s.cfg.Partitions)
	for i := range s.partitions {
		ch := make(chan workItem, s.cfg.PartitionCapacity)
		s.partitions[i] = ch
		g.Go(func() error {
			s.runPartition(groupCtx, ch)
			return nil
		})
	}
}

// Suspend transitions Processing → Suspended, dropping the in-flight
// pending queue (its batches will never advance the sequence point) and
// draining the current partition workers so a later Start doesn't leak
// them. A caller must Start again with a fresh seed to resume.
func (s *Subscriber) Suspend() {
	s.mu.Lock()
	if s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	s.state = StateSuspended
	s.pending = nil
	partitions, group, cancel := s.detachWorkersLocked()
	s.mu.Unlock()

	drainWorkers(partitions, group, cancel)
}

// Stop transitions to Stopped permanently, draining in-flight partitions
// before returning.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	partitions, group, cancel := s.detachWorkersLocked()
	s.mu.Unlock()

	drainWorkers(partitions, group, cancel)
}

// detachWorkersLocked clears the subscriber's worker bookkeeping under mu
// and returns it to the caller for draining outside the lock.
func (s *Subscriber) detachWorkersLocked() ([]chan workItem, *errgroup.Group, context.CancelFunc) {
	partitions, group, cancel := s.partitions, s.group, s.groupStop
	s.partitions, s.group, s.groupStop = nil, nil, nil
	return partitions, group, cancel
}

// drainWorkers stops partition workers via context cancellation rather
// than closing their channels: a concurrent Consume call may still be
// racing to submit to one of these channels (it took its partitions
// snapshot under the lock before this Suspend/Stop observed the state
// change), and closing a channel a sender might still write to panics.
// Cancelling lets runPartition's select exit instead, leaving the channel
// to be garbage collected.
func drainWorkers(_ []chan workItem, group *errgroup.Group, cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
}

// Consume processes one received envelope: an epoch mismatch drops the
// whole batch without decoding it; otherwise the payload is split into
// per-message frames (a single malformed frame fails only that message),
// a sharedState is enqueued onto the pending queue before any message is
// dispatched, and each frame is submitted to its sender's partition.
// Submission blocks — applying backpressure — when that partition's queue
// is full.
func (s *Subscriber) Consume(ctx context.Context, env envelope) error {
	s.mu.Lock()
	active := s.state == StateProcessing
	partitions := s.partitions
	s.mu.Unlock()
	if !active {
		return fmt.Errorf("eventstream: subscriber is not processing (state=%s)", s.State())
	}

	if env.Epoch != s.cfg.Epoch {
		metrics.RecordDropped(s.metrics, "epoch_mismatch")
		st := newSharedState(env.Seq, env.PublishedAt, 0)
		s.enqueuePending(st)
		s.onMessageDone()
		return nil
	}

	frames := s.codec.DecodeFrames(env.Payload)
	st := newSharedState(env.Seq, env.PublishedAt, len(frames))
	s.enqueuePending(st)

	if len(frames) == 0 {
		s.onMessageDone()
		return nil
	}

	for _, fr := range frames {
		sender := env.SenderMachine
		if fr.Err == nil && fr.Event.SenderMachine != "" {
			sender = fr.Event.SenderMachine
		}
		part := partitionOf(sender, len(partitions))
		item := workItem{ctx: ctx, state: st, frame: fr}
		select {
		case partitions[part] <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Subscriber) enqueuePending(st *sharedState) {
	s.mu.Lock()
	s.pending = append(s.pending, st)
	s.mu.Unlock()
}

// onMessageDone is called whenever any message's outcome is final; it
// wakes the advance routine, which is safe to call redundantly (the CAS
// gate ensures only one goroutine ever walks the pending queue).
func (s *Subscriber) onMessageDone() {
	s.advance()
}

func (s *Subscriber) runPartition(ctx context.Context, ch chan workItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-ch:
			s.process(item)
		}
	}
}

func (s *Subscriber) process(item workItem) {
	defer func() {
		if item.state.markOne() {
			s.advance()
		}
	}()

	if item.frame.Err != nil {
		metrics.RecordDropped(s.metrics, "deserialize_failed")
		logger.Warn("eventstream: dropping malformed event", "error", item.frame.Err)
		return
	}
	if kept, _ := applyValidation("subscriber", s.cfg.Validation, []events.Event{item.frame.Event}); len(kept) == 0 {
		metrics.RecordDropped(s.metrics, "validation_failed")
		return
	}
	if err := s.handler(item.ctx, item.frame.Event); err != nil {
		metrics.RecordDropped(s.metrics, "handler_failed")
		logger.Warn("eventstream: handler failed", "error", err, "content_hash", item.frame.Event.Hash)
	}
}

// advance is the dedicated advance routine: it walks the pending queue
// from the head, dequeuing and folding every contiguous complete batch
// into lastSeq, and never skips past an incomplete one. The CAS gate plus
// dirty bit guarantee at most one goroutine runs the walk at a time while
// never missing a completion that arrived mid-walk.
func (s *Subscriber) advance() {
	s.dirty.Store(true)
	for {
		if !s.advancing.CompareAndSwap(false, true) {
			return
		}
		s.dirty.Store(false)
		s.advanceOnce()
		s.advancing.Store(false)
		if !s.dirty.Load() {
			return
		}
	}
}

func (s *Subscriber) advanceOnce() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		head := s.pending[0]
		if !head.complete.Load() {
			s.mu.Unlock()
			return
		}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.lastSeq.Store(head.seq)
		metrics.SetSequencePoint(s.metrics, s.cfg.SenderMachine, head.seq)
		if !head.publishedAt.IsZero() {
			metrics.RecordLagSeconds(s.metrics, s.cfg.SenderMachine, time.Since(head.publishedAt).Seconds())
		}
	}
}

// partitionOf computes the partition index for sender, matching spec.md
// §4.8's hash(sender) mod P.
func partitionOf(sender string, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	return int(h.Sum32() % uint32(partitions))
}
