package orm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Manager reports to.
type Metrics struct {
	queryDuration   *prometheus.HistogramVec
	acquireFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relcount",
			Name:      "count_query_duration_seconds",
			Help:      "Time a relationship count query held its store connection.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store"}),
		acquireFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relcount",
			Name:      "store_acquire_failures_total",
			Help:      "Connection acquisitions that failed, by store.",
		}, []string{"store"}),
	}
	for _, c := range []prometheus.Collector{m.queryDuration, m.acquireFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
	}
	return m, nil
}

func (m *Metrics) observeHeld(store string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(store).Observe(d.Seconds())
}

func (m *Metrics) acquireFailed(store string) {
	if m == nil {
		return
	}
	m.acquireFailures.WithLabelValues(store).Inc()
}
