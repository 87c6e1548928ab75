package rbac

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records permission check telemetry. Telemetry never alters a
// check's boolean result.
type Metrics struct {
	ChecksTotal   *prometheus.CounterVec
	MemoLookups   *prometheus.CounterVec
	CheckDuration prometheus.Histogram
	SlowChecks    prometheus.Counter
}

// NewMetrics creates and registers permission check metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkdeck_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"outcome"},
		),
		MemoLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkdeck_permission_memo_lookups_total",
				Help: "Per-request membership memo lookups",
			},
			[]string{"result"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linkdeck_permission_check_duration_seconds",
				Help:    "Permission check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SlowChecks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linkdeck_permission_checks_slow_total",
				Help: "Permission checks slower than the slow-check threshold",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ChecksTotal, m.MemoLookups, m.CheckDuration, m.SlowChecks)
	}

	return m
}
