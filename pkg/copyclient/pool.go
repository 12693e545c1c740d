package copyclient

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Dialer opens a new connection to a peer location (host:port or a resolved
// service address). Kept as a function value rather than baking in
// grpc.Dial so tests can substitute an in-process connection.
type Dialer func(ctx context.Context, location string) (*grpc.ClientConn, error)

// poolEntry is one peer's pooled connection. sem bounds concurrent leases
// to cfg.MaxConnectionsPerPeer; shutdownCtx is the resource's own
// cancellation token, cancelled when the reaper evicts the entry, which in
// turn cancels every Lease still linked to it.
type poolEntry struct {
	location       string
	conn           *grpc.ClientConn
	sem            chan struct{}
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	lastUsed       time.Time
}

// Pool is a resource pool of gRPC connections keyed by remote machine
// location, matching spec.md §4.9: entries are kept warm for a configured
// idle window and evicted by a background reaper when unused past it.
type Pool struct {
	cfg     Config
	dial    Dialer
	metrics metrics.CopyClientMetrics

	mu      sync.Mutex
	entries map[string]*poolEntry
	closed  bool

	reapCancel context.CancelFunc
	reapDone   chan struct{}
}

// NewPool constructs a Pool and starts its background idle-connection
// reaper.
func NewPool(cfg Config, dial Dialer, m metrics.CopyClientMetrics) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		dial:       dial,
		metrics:    m,
		entries:    make(map[string]*poolEntry),
		reapCancel: cancel,
		reapDone:   make(chan struct{}),
	}
	go p.reapLoop(ctx)
	return p
}

// Close stops the reaper and closes every pooled connection. Leases held by
// in-flight callers are cancelled via their linked shutdown token.
func (p *Pool) Close() {
	p.reapCancel()
	<-p.reapDone

	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.closed = true
	p.mu.Unlock()

	for _, e := range entries {
		p.evict(e)
	}
}

// Lease is a checked-out connection. Ctx is the caller's context linked
// with the pool entry's own shutdown token: it is cancelled either when the
// caller cancels ctx or when the reaper evicts the underlying connection
// out from under the lease.
type Lease struct {
	Conn *grpc.ClientConn
	Ctx  context.Context

	pool     *Pool
	entry    *poolEntry
	unlink   context.CancelFunc
	location string
}

// Release returns the lease's slot to the pool and updates the entry's
// idle clock.
func (l *Lease) Release() {
	l.unlink()
	select {
	case <-l.entry.sem:
	default:
	}
	l.pool.mu.Lock()
	if !l.pool.closed {
		l.entry.lastUsed = time.Now()
	}
	active := l.pool.activeCountLocked(l.entry)
	l.pool.mu.Unlock()
	metrics.SetActiveConnections(l.pool.metrics, l.location, active)
}

// Acquire checks out a connection to location, dialing one if the pool
// holds none yet, and blocks (respecting ctx) until a lease slot under
// cfg.MaxConnectionsPerPeer is available.
func (p *Pool) Acquire(ctx context.Context, location string) (*Lease, error) {
	e, err := p.getOrDialEntry(ctx, location)
	if err != nil {
		return nil, err
	}

	select {
	case e.sem <- struct{}{}:
	case <-e.shutdownCtx.Done():
		return nil, cacheerr.NewTransientError("peer connection evicted while waiting for a lease", location, nil)
	case <-ctx.Done():
		return nil, cacheerr.NewCancelledError(location)
	}

	leaseCtx, unlink := context.WithCancel(ctx)
	go func() {
		select {
		case <-e.shutdownCtx.Done():
			unlink()
		case <-leaseCtx.Done():
		}
	}()

	p.mu.Lock()
	e.lastUsed = time.Now()
	active := p.activeCountLocked(e)
	p.mu.Unlock()
	metrics.SetActiveConnections(p.metrics, location, active)

	return &Lease{Conn: e.conn, Ctx: leaseCtx, pool: p, entry: e, unlink: unlink, location: location}, nil
}

// getOrDialEntry returns the pool's existing entry for location, or dials a
// new one. The dial itself happens without holding p.mu so a slow connect
// to one peer never blocks Acquire calls for other peers; if two callers
// race to create the same location's entry, the loser's connection is
// closed and discarded in favor of the winner's.
func (p *Pool) getOrDialEntry(ctx context.Context, location string) (*poolEntry, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, cacheerr.NewTerminalError("copy client pool is closed", location, nil)
	}
	if e, ok := p.entries[location]; ok {
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	conn, err := p.dial(dialCtx, location)
	cancel()
	if err != nil {
		return nil, cacheerr.NewTransientError("dial peer", location, err)
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	capacity := p.cfg.MaxConnectionsPerPeer
	if capacity <= 0 {
		capacity = 1
	}
	e := &poolEntry{
		location:       location,
		conn:           conn,
		sem:            make(chan struct{}, capacity),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
		lastUsed:       time.Now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		shutdownCancel()
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("copyclient: error closing connection dialed after pool close", "peer", location, "error", cerr)
		}
		return nil, cacheerr.NewTerminalError("copy client pool is closed", location, nil)
	}
	if existing, ok := p.entries[location]; ok {
		shutdownCancel()
		if cerr := conn.Close(); cerr != nil {
			logger.Warn("copyclient: error closing redundant dial after a racing Acquire won", "peer", location, "error", cerr)
		}
		return existing, nil
	}
	p.entries[location] = e
	return e, nil
}

// activeCountLocked reports how many of e's lease slots are currently
// checked out. Callers must hold p.mu.
func (p *Pool) activeCountLocked(e *poolEntry) int {
	return len(e.sem)
}

func (p *Pool) reapLoop(ctx context.Context) {
	defer close(p.reapDone)
	interval := p.cfg.ReapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	now := time.Now()
	var stale []*poolEntry

	p.mu.Lock()
	for loc, e := range p.entries {
		if len(e.sem) == 0 && now.Sub(e.lastUsed) >= p.cfg.IdleWindow {
			stale = append(stale, e)
			delete(p.entries, loc)
		}
	}
	p.mu.Unlock()

	for _, e := range stale {
		p.evict(e)
	}
}

func (p *Pool) evict(e *poolEntry) {
	e.shutdownCancel()
	if err := e.conn.Close(); err != nil {
		logger.Warn("copyclient: error closing evicted peer connection", "peer", e.location, "error", err)
	}
}
