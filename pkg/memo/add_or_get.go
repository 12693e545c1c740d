package memo

import (
	"context"
	"time"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cachetypes"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// ContentChecker verifies that the content hashes backing a memoized value
// are still available, used by the AllowPinElision and PinAlways
// replacement-check policies. A two-level cache session satisfies this by
// pinning (or confirming containment of) each hash.
type ContentChecker interface {
	EnsureContentAvailable(ctx context.Context, value cachetypes.ContentHashListWithDeterminism) (allAvailable bool, err error)
}

// AssociatedContentRegistrar receives a hint about the content hashes in a
// newly added value, ahead of the add_or_get decision itself, so a
// database that tracks content liveness separately from the memo entry
// can warm that bookkeeping up front. Optional: nil disables the hint.
type AssociatedContentRegistrar interface {
	RegisterAssociatedContent(ctx context.Context, fp cachetypes.StrongFingerprint, value cachetypes.ContentHashListWithDeterminism)
}

// AddOrGet implements the memoization store's core conflict-resolution
// algorithm: publish newValue under fp unless a concurrent or prior writer
// already holds a value this one isn't allowed to replace.
func (s *Store) AddOrGet(ctx context.Context, fp cachetypes.StrongFingerprint, newValue cachetypes.ContentHashListWithDeterminism) (cachetypes.ContentHashListWithDeterminism, error) {
	return s.addOrGet(ctx, fp, newValue, nil, nil)
}

// AddOrGetWithChecker is AddOrGet with an explicit ContentChecker and
// AssociatedContentRegistrar, for callers (the two-level cache session,
// primarily) that need the AllowPinElision/PinAlways verification step or
// the register_associated_content hint.
func (s *Store) AddOrGetWithChecker(ctx context.Context, fp cachetypes.StrongFingerprint, newValue cachetypes.ContentHashListWithDeterminism, checker ContentChecker, registrar AssociatedContentRegistrar) (cachetypes.ContentHashListWithDeterminism, error) {
	return s.addOrGet(ctx, fp, newValue, checker, registrar)
}

func (s *Store) addOrGet(ctx context.Context, fp cachetypes.StrongFingerprint, newValue cachetypes.ContentHashListWithDeterminism, checker ContentChecker, registrar AssociatedContentRegistrar) (cachetypes.ContentHashListWithDeterminism, error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "memo", "AddOrGet", telemetry.WeakFingerprint(fp.WeakFingerprint))
	defer span.End()

	mu := s.lockFingerprint(fp)
	defer mu.Unlock()

	if registrar != nil {
		registrar.RegisterAssociatedContent(ctx, fp, newValue)
	}

	now := time.Now()
	attempts := 0

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		var (
			old       cachetypes.ContentHashListWithDeterminism
			oldToken  string
			oldExists bool
			err       error
		)
		if s.cfg.OptimizeWrites && attempt == 1 {
			oldExists = false
		} else {
			old, oldToken, _, oldExists, err = s.Get(ctx, fp, true)
			if err != nil {
				telemetry.RecordError(ctx, err)
				return cachetypes.ContentHashListWithDeterminism{}, err
			}
		}

		if oldExists && old.Determinism.IsSinglePhaseNonDeterministic() != newValue.Determinism.IsSinglePhaseNonDeterministic() {
			err := SinglePhaseMixingError(fp.String())
			telemetry.RecordError(ctx, err)
			return cachetypes.ContentHashListWithDeterminism{}, err
		}

		canReplace, err := s.canReplace(ctx, oldExists, old, newValue, now, checker)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return cachetypes.ContentHashListWithDeterminism{}, err
		}

		if canReplace {
			ok, _, err := s.CompareExchange(fp, oldToken, !oldExists, newValue)
			if err != nil {
				telemetry.RecordError(ctx, err)
				return cachetypes.ContentHashListWithDeterminism{}, err
			}
			if ok {
				outcome := "added"
				if oldExists {
					outcome = "replaced"
				}
				metrics.RecordAddOrGet(s.metrics, outcome)
				metrics.RecordAddOrGetAttempts(s.metrics, attempts)
				return newValue, nil
			}
			continue // lost the race: another writer changed the entry, retry
		}

		if oldExists && newValue.Equal(old) {
			metrics.RecordAddOrGet(s.metrics, "existing")
			metrics.RecordAddOrGetAttempts(s.metrics, attempts)
			return old, nil
		}

		if newValue.Determinism.IsDeterministicTool() {
			err := InvalidToolDeterminismError(fp.String())
			telemetry.RecordError(ctx, err)
			return cachetypes.ContentHashListWithDeterminism{}, err
		}

		metrics.RecordAddOrGet(s.metrics, "existing")
		metrics.RecordAddOrGetAttempts(s.metrics, attempts)
		return old, nil
	}

	err := RaceExhaustedError(fp.String())
	telemetry.RecordError(ctx, err)
	return cachetypes.ContentHashListWithDeterminism{}, err
}

// canReplace decides step 4 of add_or_get: whether newValue is allowed to
// overwrite old.
func (s *Store) canReplace(ctx context.Context, oldExists bool, old, newValue cachetypes.ContentHashListWithDeterminism, now time.Time, checker ContentChecker) (bool, error) {
	if !oldExists {
		return true, nil
	}
	if newValue.Determinism.StrictlyDominates(old.Determinism, now) {
		return true, nil
	}

	switch s.cfg.Policy {
	case ReplaceAlways:
		return true, nil
	case ReplaceNever:
		return false, nil
	case AllowPinElision, PinAlways:
		if checker == nil {
			// No way to verify availability: behave like ReplaceNever
			// rather than silently destroying an entry we can't confirm
			// is still redundant.
			return false, nil
		}
		allAvailable, err := checker.EnsureContentAvailable(ctx, old)
		if err != nil {
			return false, err
		}
		return !allAvailable, nil
	default:
		return false, nil
	}
}
