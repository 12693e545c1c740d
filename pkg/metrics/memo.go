package metrics

// MemoMetrics provides observability for the memoization store: get/
// add_or_get outcomes, compare-exchange contention, and replacement-check
// decisions made while resolving a weak fingerprint to a strong one.
type MemoMetrics interface {
	// RecordGet records a get() call and whether it resolved to an entry.
	RecordGet(hit bool)

	// RecordAddOrGet records the outcome of an add_or_get call: "added" when
	// this call's content became authoritative, "existing" when a prior
	// entry won the race, "replaced" when this call's content overwrote an
	// existing entry (through determinism dominance or the replacement
	// policy).
	RecordAddOrGet(outcome string)

	// RecordCompareExchange records one CompareExchange attempt against the
	// backing store, true if the expected version matched.
	RecordCompareExchange(ok bool)

	// RecordAddOrGetAttempts records how many compare-exchange attempts an
	// add_or_get call needed before terminating (success or MaxAttempts
	// exhausted).
	RecordAddOrGetAttempts(attempts int)
}

// NewMemoMetrics returns a Prometheus-backed MemoMetrics, or nil if
// InitRegistry has not been called.
func NewMemoMetrics() MemoMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusMemoMetrics()
}

var newPrometheusMemoMetrics func() MemoMetrics

// RegisterMemoMetricsConstructor is called by
// pkg/metrics/prometheus/memo.go during package initialization.
func RegisterMemoMetricsConstructor(constructor func() MemoMetrics) {
	newPrometheusMemoMetrics = constructor
}

// RecordGet is a nil-safe wrapper for MemoMetrics.RecordGet.
func RecordGet(m MemoMetrics, hit bool) {
	if m != nil {
		m.RecordGet(hit)
	}
}

// RecordAddOrGet is a nil-safe wrapper for MemoMetrics.RecordAddOrGet.
func RecordAddOrGet(m MemoMetrics, outcome string) {
	if m != nil {
		m.RecordAddOrGet(outcome)
	}
}

// RecordCompareExchange is a nil-safe wrapper for
// MemoMetrics.RecordCompareExchange.
func RecordCompareExchange(m MemoMetrics, ok bool) {
	if m != nil {
		m.RecordCompareExchange(ok)
	}
}

// RecordAddOrGetAttempts is a nil-safe wrapper for
// MemoMetrics.RecordAddOrGetAttempts.
func RecordAddOrGetAttempts(m MemoMetrics, attempts int) {
	if m != nil {
		m.RecordAddOrGetAttempts(attempts)
	}
}
