package twolevel

import (
	"context"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cachetypes"
)

// MemoSession is the add_or_get surface a local or shared memoization
// store exposes; pkg/memo.Store satisfies this. Defined here rather than
// imported from pkg/memo so twolevel only depends on the data model
// (pkg/cachetypes), not the memoization store's badger-backed
// implementation.
type MemoSession interface {
	AddOrGet(ctx context.Context, fp cachetypes.StrongFingerprint, newValue cachetypes.ContentHashListWithDeterminism) (cachetypes.ContentHashListWithDeterminism, error)
}

// AddOrGet implements the two-level memoization path (spec 4.5): when
// remote writes are allowed, the remote store is consulted first, and if
// it returns a value published by a concurrent peer, that value — not
// newValue — is what gets published into local. This ordering prevents a
// node from publishing a local memo entry for which the remote has
// already diverged; the local store's own add_or_get still applies its
// determinism-dominance check, so a genuinely dominant local write is
// never silently dropped.
func (s *Session) AddOrGet(ctx context.Context, local, remote MemoSession, fp cachetypes.StrongFingerprint, newValue cachetypes.ContentHashListWithDeterminism) (cachetypes.ContentHashListWithDeterminism, error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "twolevel", "AddOrGet", telemetry.WeakFingerprint(fp.WeakFingerprint))
	defer span.End()

	if s.cfg.RemoteReadOnly {
		return local.AddOrGet(ctx, fp, newValue)
	}

	remoteResult, err := remote.AddOrGet(ctx, fp, newValue)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return cachetypes.ContentHashListWithDeterminism{}, err
	}

	return local.AddOrGet(ctx, fp, remoteResult)
}
