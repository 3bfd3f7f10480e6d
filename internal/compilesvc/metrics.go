package compilesvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics self-registers via promauto against the default registerer,
// scoped to compile outcomes: counts and latency per compile call.
type Metrics struct {
	compilesTotal   *prometheus.CounterVec
	compileDuration prometheus.Histogram
}

// NewMetrics registers the compiler's counters and histogram against the
// default registerer. Constructing more than one Service in a process
// (e.g. across tests) would panic on duplicate registration, so tests
// should share a single Metrics or use NewMetricsForTest.
func NewMetrics() *Metrics {
	return &Metrics{
		compilesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tomblang",
			Subsystem: "compiler",
			Name:      "compiles_total",
			Help:      "Total compile attempts, labeled by the phase that produced the outcome and its result",
		}, []string{"phase", "result"}),

		compileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tomblang",
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Wall-clock time spent compiling one source unit",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewMetricsForTest registers against a fresh, unshared registry so
// multiple Service instances can coexist within one test binary.
func NewMetricsForTest() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		compilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tomblang",
			Subsystem: "compiler",
			Name:      "compiles_total",
			Help:      "Total compile attempts, labeled by the phase that produced the outcome and its result",
		}, []string{"phase", "result"}),

		compileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tomblang",
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Wall-clock time spent compiling one source unit",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordCompile(phase, result string) {
	m.compilesTotal.WithLabelValues(phase, result).Inc()
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	m.compileDuration.Observe(d.Seconds())
}
