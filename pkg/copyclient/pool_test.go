package copyclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// fakeDialer hands back a distinct unconnected *grpc.ClientConn per
// location without touching the network, enough to exercise the pool's
// bookkeeping independently of a live server.
func fakeDialer(_ context.Context, _ string) (*grpc.ClientConn, error) {
	return grpc.NewClient("passthrough:///fake", grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func TestPoolReusesConnectionForSameLocation(t *testing.T) {
	var dialCount atomic.Int32
	dial := func(ctx context.Context, loc string) (*grpc.ClientConn, error) {
		dialCount.Add(1)
		return fakeDialer(ctx, loc)
	}
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerPeer = 4
	pool := NewPool(cfg, dial, nil)
	defer pool.Close()

	l1, err := pool.Acquire(context.Background(), "peer-a")
	require.NoError(t, err)
	l1.Release()

	l2, err := pool.Acquire(context.Background(), "peer-a")
	require.NoError(t, err)
	l2.Release()

	assert.Equal(t, int32(1), dialCount.Load())
}

func TestPoolBlocksBeyondMaxConnectionsPerPeer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerPeer = 1
	pool := NewPool(cfg, fakeDialer, nil)
	defer pool.Close()

	l1, err := pool.Acquire(context.Background(), "peer-a")
	require.NoError(t, err)

	var mu sync.Mutex
	var acquiredSecond bool
	done := make(chan struct{})
	go func() {
		l2, err := pool.Acquire(context.Background(), "peer-a")
		require.NoError(t, err)
		mu.Lock()
		acquiredSecond = true
		mu.Unlock()
		l2.Release()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.False(t, acquiredSecond, "second acquire should still be waiting for the held lease")
	mu.Unlock()

	l1.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}

func TestPoolAcquireRespectsContextCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerPeer = 1
	pool := NewPool(cfg, fakeDialer, nil)
	defer pool.Close()

	l1, err := pool.Acquire(context.Background(), "peer-a")
	require.NoError(t, err)
	defer l1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx, "peer-a")
	require.Error(t, err)
}

func TestPoolReapEvictsIdleConnectionAndCancelsLinkedLease(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsPerPeer = 2
	cfg.IdleWindow = time.Millisecond
	cfg.ReapInterval = 5 * time.Millisecond
	pool := NewPool(cfg, fakeDialer, nil)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background(), "peer-a")
	require.NoError(t, err)

	// The lease is released immediately (the reaper only evicts
	// zero-lease entries), so the entry should be idle and eligible once
	// the idle window elapses.
	lease.Release()

	require.Eventually(t, func() bool {
		pool.mu.Lock()
		_, exists := pool.entries["peer-a"]
		pool.mu.Unlock()
		return !exists
	}, time.Second, 5*time.Millisecond)
}

func TestPoolAcquireAfterCloseFails(t *testing.T) {
	pool := NewPool(DefaultConfig(), fakeDialer, nil)
	pool.Close()

	_, err := pool.Acquire(context.Background(), "peer-a")
	assert.Error(t, err)
}
