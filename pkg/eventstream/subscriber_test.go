package eventstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/buildcached/pkg/events"
)

func testEnvelope(codec Codec, epoch, sender string, seq uint64, evs []events.Event) envelope {
	payload, err := codec.EncodeBatch(evs)
	if err != nil {
		panic(err)
	}
	return envelope{SenderMachine: sender, Epoch: epoch, Seq: seq, Payload: payload, PublishedAt: time.Now()}
}

func newTestSubscriber(t *testing.T, handler Handler) *Subscriber {
	t.Helper()
	cfg := DefaultConfig(epochV1, "node-a")
	cfg.Partitions = 4
	sub := NewSubscriber(cfg, NewCodec(), handler, nil)
	sub.Start(context.Background(), 0)
	t.Cleanup(sub.Stop)
	return sub
}

const epochV1 = "epoch-v1"

func TestSubscriberDispatchesEventsInOrderPerSender(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	sub := newTestSubscriber(t, func(_ context.Context, ev events.Event) error {
		mu.Lock()
		seen = append(seen, ev.Hash)
		mu.Unlock()
		return nil
	})

	evs := []events.Event{
		{Kind: events.Add, Hash: "h1", Size: 1},
		{Kind: events.Add, Hash: "h2", Size: 2},
		{Kind: events.Touch, Hash: "h3", Size: 3},
	}
	env := testEnvelope(NewCodec(), epochV1, "sender-a", 3, evs)
	require.NoError(t, sub.Consume(context.Background(), env))

	require.Eventually(t, func() bool {
		return sub.LastProcessedSequence() == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"h1", "h2", "h3"}, seen)
}

func TestSubscriberOutOfOrderPublishInOrderAdvance(t *testing.T) {
	var blockH1 = make(chan struct{})
	var mu sync.Mutex
	var seen []string

	sub := newTestSubscriber(t, func(_ context.Context, ev events.Event) error {
		if ev.Hash == "h1" {
			<-blockH1 // hold sender-a's batch incomplete until released
		}
		mu.Lock()
		seen = append(seen, ev.Hash)
		mu.Unlock()
		return nil
	})

	codec := NewCodec()
	b1 := testEnvelope(codec, epochV1, "sender-a", 10, []events.Event{{Kind: events.Add, Hash: "h1"}})
	b2 := testEnvelope(codec, epochV1, "sender-b", 20, []events.Event{{Kind: events.Add, Hash: "h2"}})

	require.NoError(t, sub.Consume(context.Background(), b1))
	require.NoError(t, sub.Consume(context.Background(), b2))

	// b2 (different sender, different partition almost certainly) can
	// complete while b1 is still blocked; the sequence point must not
	// jump to 20 until b1 (seq=10, published first) is done.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, h := range seen {
			if h == "h2" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	assert.Less(t, sub.LastProcessedSequence(), uint64(10))

	close(blockH1)
	require.Eventually(t, func() bool {
		return sub.LastProcessedSequence() == 20
	}, time.Second, time.Millisecond)
}

func TestSubscriberEpochMismatchDropsWithoutDispatch(t *testing.T) {
	var called bool
	sub := newTestSubscriber(t, func(_ context.Context, ev events.Event) error {
		called = true
		return nil
	})

	env := testEnvelope(NewCodec(), "wrong-epoch", "sender-a", 5, []events.Event{{Kind: events.Add, Hash: "h1"}})
	require.NoError(t, sub.Consume(context.Background(), env))

	require.Eventually(t, func() bool {
		return sub.LastProcessedSequence() == 5
	}, time.Second, time.Millisecond)
	assert.False(t, called)
}

func TestSubscriberEmptyBatchIsNoOp(t *testing.T) {
	sub := newTestSubscriber(t, func(context.Context, events.Event) error { return nil })

	env := testEnvelope(NewCodec(), epochV1, "sender-a", 1, nil)
	require.NoError(t, sub.Consume(context.Background(), env))

	require.Eventually(t, func() bool {
		return sub.LastProcessedSequence() == 1
	}, time.Second, time.Millisecond)
}

func TestSubscriberHandlerErrorStillAdvances(t *testing.T) {
	sub := newTestSubscriber(t, func(context.Context, events.Event) error {
		return assertionError{}
	})

	env := testEnvelope(NewCodec(), epochV1, "sender-a", 7, []events.Event{{Kind: events.Add, Hash: "h1"}})
	require.NoError(t, sub.Consume(context.Background(), env))

	require.Eventually(t, func() bool {
		return sub.LastProcessedSequence() == 7
	}, time.Second, time.Millisecond)
}

type assertionError struct{}

func (assertionError) Error() string { return "handler failed" }

func TestSubscriberSuspendDropsPendingAndStartResets(t *testing.T) {
	sub := newTestSubscriber(t, func(context.Context, events.Event) error { return nil })

	env := testEnvelope(NewCodec(), epochV1, "sender-a", 1, []events.Event{{Kind: events.Add, Hash: "h1"}})
	require.NoError(t, sub.Consume(context.Background(), env))
	require.Eventually(t, func() bool { return sub.LastProcessedSequence() == 1 }, time.Second, time.Millisecond)

	sub.Suspend()
	assert.Equal(t, StateSuspended, sub.State())

	sub.Start(context.Background(), 100)
	assert.Equal(t, StateProcessing, sub.State())
	assert.Equal(t, uint64(100), sub.LastProcessedSequence())
}
