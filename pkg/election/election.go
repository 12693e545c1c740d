package election

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/blobstore"
	"github.com/marmos91/buildcached/pkg/cachetypes"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Participant holds one node's view of the master lease, serialized
// through a single-machine mutex the way pkg/localcas serializes its root
// directory with a single advisory lock file.
type Participant struct {
	store   *blobstore.Store
	cfg     Config
	mu      sync.Mutex
	metrics metrics.ElectionMetrics

	lastRole cachetypes.Role
}

// New constructs a Participant over store.
func New(store *blobstore.Store, cfg Config, m metrics.ElectionMetrics) *Participant {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Participant{store: store, cfg: cfg, metrics: m, lastRole: cachetypes.Worker}
}

// GetRole performs try_extend under the participant's mutex: renews or
// acquires the lease if this participant is eligible and entitled to, then
// reports the resulting master location, this participant's role, and the
// lease's expiry.
func (p *Participant) GetRole(ctx context.Context) (cachetypes.MasterLocation, cachetypes.Role, time.Time, error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "election", "GetRole")
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	var final cachetypes.MasterLease

	err := p.store.ReadModifyWrite(ctx, p.cfg.Container, p.cfg.Key, p.cfg.MaxAttempts, func(current []byte) ([]byte, error) {
		old, decodeErr := decodeLease(current)
		if decodeErr != nil {
			return nil, decodeErr
		}

		now := time.Now().UTC()
		if !p.cfg.Eligible {
			final = old
			return nil, blobstore.ErrNoChange
		}

		expired := !old.Held(now)
		if !expired && old.MasterLocation != cachetypes.MasterLocation(p.cfg.Me) {
			final = old
			return nil, blobstore.ErrNoChange
		}

		creation := now
		if old.MasterLocation == cachetypes.MasterLocation(p.cfg.Me) {
			creation = old.CreationTimeUTC
		}
		next := cachetypes.MasterLease{
			MasterLocation:    cachetypes.MasterLocation(p.cfg.Me),
			CreationTimeUTC:   creation,
			LastUpdateTimeUTC: now,
			LeaseExpiryUTC:    now.Add(p.cfg.LeaseExpiry),
		}
		final = next
		return encodeLease(next)
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return "", cachetypes.Worker, time.Time{}, err
	}

	now := time.Now().UTC()
	master, role := roleOf(final, p.cfg.Me, now)
	p.recordTransition(role)
	return master, role, final.LeaseExpiryUTC, nil
}

// ReleaseIfNecessary performs try_release under the participant's mutex:
// if this participant is eligible and currently holds an unexpired lease,
// it expires the lease immediately; otherwise it is a no-op.
func (p *Participant) ReleaseIfNecessary(ctx context.Context) error {
	ctx, span := telemetry.StartComponentSpan(ctx, "election", "ReleaseIfNecessary")
	defer span.End()

	if !p.cfg.Eligible {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.store.ReadModifyWrite(ctx, p.cfg.Container, p.cfg.Key, p.cfg.MaxAttempts, func(current []byte) ([]byte, error) {
		old, decodeErr := decodeLease(current)
		if decodeErr != nil {
			return nil, decodeErr
		}

		now := time.Now().UTC()
		if old.MasterLocation != cachetypes.MasterLocation(p.cfg.Me) || !old.Held(now) {
			return nil, blobstore.ErrNoChange
		}

		released := old
		released.LeaseExpiryUTC = now
		return encodeLease(released)
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	p.recordTransition(cachetypes.Worker)
	return nil
}

func roleOf(lease cachetypes.MasterLease, me string, now time.Time) (cachetypes.MasterLocation, cachetypes.Role) {
	if !lease.Held(now) {
		return "", cachetypes.Worker
	}
	if lease.MasterLocation == cachetypes.MasterLocation(me) {
		return lease.MasterLocation, cachetypes.Master
	}
	return lease.MasterLocation, cachetypes.Worker
}

func (p *Participant) recordTransition(role cachetypes.Role) {
	if role != p.lastRole {
		metrics.RecordTransition(p.metrics, p.lastRole.String(), role.String())
		p.lastRole = role
	}
}
