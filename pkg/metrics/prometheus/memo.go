package prometheus

import (
	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterMemoMetricsConstructor(func() metrics.MemoMetrics {
		return newMemoMetrics()
	})
}

// memoMetrics is the Prometheus implementation of metrics.MemoMetrics.
type memoMetrics struct {
	getTotal             *prometheus.CounterVec
	addOrGetTotal        *prometheus.CounterVec
	compareExchangeTotal *prometheus.CounterVec
	attempts             prometheus.Histogram
}

func newMemoMetrics() *memoMetrics {
	reg := metrics.GetRegistry()

	return &memoMetrics{
		getTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_memo_get_total",
			Help: "Total memoization get() calls by outcome",
		}, []string{"outcome"}),
		addOrGetTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_memo_add_or_get_total",
			Help: "Total add_or_get() calls by resolution outcome",
		}, []string{"outcome"}), // "added", "existing", "replaced"
		compareExchangeTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_memo_compare_exchange_total",
			Help: "Total CompareExchange attempts against the backing store",
		}, []string{"outcome"}),
		attempts: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "buildcache_memo_add_or_get_attempts",
			Help:    "Number of compare-exchange attempts an add_or_get call needed",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}
}

func (m *memoMetrics) RecordGet(hit bool) {
	m.getTotal.WithLabelValues(outcomeLabel(hit)).Inc()
}

func (m *memoMetrics) RecordAddOrGet(outcome string) {
	m.addOrGetTotal.WithLabelValues(outcome).Inc()
}

func (m *memoMetrics) RecordCompareExchange(ok bool) {
	m.compareExchangeTotal.WithLabelValues(successLabel(ok)).Inc()
}

func (m *memoMetrics) RecordAddOrGetAttempts(attempts int) {
	m.attempts.Observe(float64(attempts))
}
