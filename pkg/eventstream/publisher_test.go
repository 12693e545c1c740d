package eventstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/buildcached/pkg/events"
)

// fakeTransport is an in-memory Transport used by tests in place of a live
// gRPC connection; it records every envelope it was asked to send and can
// be configured to fail the first N sends to exercise the retry wrapper.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []envelope
	failFirst int
}

func (f *fakeTransport) Send(_ context.Context, env envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst > 0 {
		f.failFirst--
		return errUnavailable{}
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Recv(context.Context) (envelope, error) {
	return envelope{}, errors.New("fakeTransport: Recv not used by publisher tests")
}

type errUnavailable struct{}

func (errUnavailable) Error() string { return "unavailable" }

func TestPublisherBatchesBySize(t *testing.T) {
	ft := &fakeTransport{}
	cfg := DefaultConfig(epochV1, "node-a")
	cfg.MaxBatchSize = 2
	pub := NewPublisher(cfg, NewCodec(), ft, nil)

	evs := []events.Event{
		{Kind: events.Add, Hash: "h1"},
		{Kind: events.Add, Hash: "h2"},
		{Kind: events.Add, Hash: "h3"},
	}
	require.NoError(t, pub.Publish(context.Background(), evs))

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Len(t, ft.sent, 2)
	assert.Equal(t, uint64(2), ft.sent[0].Seq)
	assert.Equal(t, uint64(3), ft.sent[1].Seq)
	for _, env := range ft.sent {
		assert.Equal(t, epochV1, env.Epoch)
		assert.Equal(t, "node-a", env.SenderMachine)
	}
}

func TestPublisherEmptyEventsIsNoOp(t *testing.T) {
	ft := &fakeTransport{}
	pub := NewPublisher(DefaultConfig(epochV1, "node-a"), NewCodec(), ft, nil)

	require.NoError(t, pub.Publish(context.Background(), nil))
	assert.Empty(t, ft.sent)
}

func TestPublisherRetriesTransientSendFailure(t *testing.T) {
	ft := &fakeTransport{failFirst: 2}
	cfg := DefaultConfig(epochV1, "node-a")
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	pub := NewPublisher(cfg, NewCodec(), ft, nil)

	require.NoError(t, pub.Publish(context.Background(), []events.Event{{Kind: events.Add, Hash: "h1"}}))
	assert.Len(t, ft.sent, 1)
}

func TestPublisherEmitSendsSingleEvent(t *testing.T) {
	ft := &fakeTransport{}
	pub := NewPublisher(DefaultConfig(epochV1, "node-a"), NewCodec(), ft, nil)

	pub.Emit(events.Event{Kind: events.Touch, Hash: "h1", Size: 10})

	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return len(ft.sent) == 1
	}, time.Second, time.Millisecond)
}
