package eventstream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Publisher batches and sends events to peers over a Transport, retrying a
// transient send failure with bounded exponential backoff the way
// pkg/blobstore retries a transient storage call.
type Publisher struct {
	cfg       Config
	codec     Codec
	transport Transport
	metrics   metrics.EventStreamMetrics

	// seq assigns each published batch the sequence number of its last
	// event; monotonic for the lifetime of this Publisher.
	seq atomic.Uint64
}

// NewPublisher constructs a Publisher over an already-connected transport.
func NewPublisher(cfg Config, codec Codec, transport Transport, m metrics.EventStreamMetrics) *Publisher {
	if cfg.MaxPublishAttempts <= 0 {
		cfg.MaxPublishAttempts = 5
	}
	return &Publisher{cfg: cfg, codec: codec, transport: transport, metrics: m}
}

// Emit implements events.Emitter, letting pkg/remotecas hold a Publisher
// as its event sink without knowing about batching or
// retries. A single-event publish failure is traced, not returned — the
// emitting call already completed its own work by the time it emits.
func (p *Publisher) Emit(ev events.Event) {
	if err := p.Publish(context.Background(), []events.Event{ev}); err != nil {
		metrics.RecordDropped(p.metrics, "publish_failed")
	}
}

// Publish sends evs as one or more batches bounded by cfg.MaxBatchSize. A
// zero-length evs is a no-op: no batch is sent and no sequence number is
// consumed.
func (p *Publisher) Publish(ctx context.Context, evs []events.Event) error {
	for start := 0; start < len(evs); start += p.cfg.MaxBatchSize {
		end := min(start+p.cfg.MaxBatchSize, len(evs))
		if err := p.publishBatch(ctx, evs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, evs []events.Event) error {
	seq := p.seq.Add(uint64(len(evs)))

	tagged := make([]events.Event, len(evs))
	for i, ev := range evs {
		ev.Epoch = p.cfg.Epoch
		ev.SenderMachine = p.cfg.SenderMachine
		tagged[i] = ev
	}

	payload, err := p.codec.EncodeBatch(tagged)
	if err != nil {
		return cacheerr.NewTerminalError("eventstream: encode batch", p.cfg.SenderMachine, err)
	}

	env := envelope{
		SenderMachine: p.cfg.SenderMachine,
		Epoch:         p.cfg.Epoch,
		OperationID:   uuid.NewString(),
		Seq:           seq,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}

	if err := p.sendWithRetry(ctx, env); err != nil {
		return err
	}
	metrics.RecordPublished(p.metrics, p.cfg.SenderMachine, len(evs))
	return nil
}

// sendWithRetry wraps transport.Send in bounded exponential backoff,
// retrying only errors classified as transient (timeouts, throttling,
// connection failures) and giving up immediately on terminal ones
// (authorization hard-fail, schema mismatch).
func (p *Publisher) sendWithRetry(ctx context.Context, env envelope) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.InitialBackoff
	policy.MaxInterval = p.cfg.MaxBackoff
	policy.MaxElapsedTime = 0 // bounded by attempt count below, not elapsed wall time

	bounded := backoff.WithMaxRetries(policy, uint64(max(p.cfg.MaxPublishAttempts-1, 0)))

	return backoff.Retry(func() error {
		err := p.transport.Send(ctx, env)
		if err == nil {
			return nil
		}
		if isRetryableSendError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bounded, ctx))
}
