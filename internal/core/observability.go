package core

import (
	"expvar"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trackcore/pkg/domain"
)

// MetricsRecorder captures write-coordinator activity. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	RecordWrite(op string, outcome string, elapsed time.Duration)
	RecordRetry(op string)
	RecordViolation(kind domain.ViolationKind)
}

// Write outcomes reported to metrics recorders.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// NoopMetricsRecorder discards all observations.
type NoopMetricsRecorder struct{}

// RecordWrite implements MetricsRecorder.
func (NoopMetricsRecorder) RecordWrite(string, string, time.Duration) {}

// RecordRetry implements MetricsRecorder.
func (NoopMetricsRecorder) RecordRetry(string) {}

// RecordViolation implements MetricsRecorder.
func (NoopMetricsRecorder) RecordViolation(domain.ViolationKind) {}

// ExpvarMetricsRecorder publishes counters under the process expvar tree.
// Re-creating a recorder with the same prefix reuses the published maps, so
// tests can construct it repeatedly.
type ExpvarMetricsRecorder struct {
	writes     *expvar.Map
	retries    *expvar.Map
	violations *expvar.Map
	latency    *expvar.Map
}

// NewExpvarMetricsRecorder publishes the metric maps under the given prefix.
func NewExpvarMetricsRecorder(prefix string) *ExpvarMetricsRecorder {
	return &ExpvarMetricsRecorder{
		writes:     publishedMap(prefix + ".writes"),
		retries:    publishedMap(prefix + ".retries"),
		violations: publishedMap(prefix + ".violations"),
		latency:    publishedMap(prefix + ".write_millis"),
	}
}

func publishedMap(name string) *expvar.Map {
	if v := expvar.Get(name); v != nil {
		if m, ok := v.(*expvar.Map); ok {
			return m
		}
	}
	return expvar.NewMap(name)
}

// RecordWrite counts a finished write and accumulates its latency.
func (r *ExpvarMetricsRecorder) RecordWrite(op string, outcome string, elapsed time.Duration) {
	r.writes.Add(fmt.Sprintf("%s.%s", op, outcome), 1)
	r.latency.Add(op, elapsed.Milliseconds())
}

// RecordRetry counts a retried write cycle.
func (r *ExpvarMetricsRecorder) RecordRetry(op string) {
	r.retries.Add(op, 1)
}

// RecordViolation counts a reported violation by kind.
func (r *ExpvarMetricsRecorder) RecordViolation(kind domain.ViolationKind) {
	r.violations.Add(string(kind), 1)
}

// PrometheusMetricsRecorder exposes the same observations as Prometheus
// counters and a latency histogram.
type PrometheusMetricsRecorder struct {
	writes     *prometheus.CounterVec
	retries    *prometheus.CounterVec
	violations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the collectors with the given
// registerer. Passing prometheus.DefaultRegisterer wires process-wide metrics.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	r := &PrometheusMetricsRecorder{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackcore",
			Name:      "writes_total",
			Help:      "Completed write operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackcore",
			Name:      "write_retries_total",
			Help:      "Write cycles retried after a retryable store error.",
		}, []string{"op"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackcore",
			Name:      "rule_violations_total",
			Help:      "Rule violations reported by kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trackcore",
			Name:      "write_duration_seconds",
			Help:      "Write operation latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(r.writes, r.retries, r.violations, r.latency)
	return r
}

// RecordWrite counts a finished write and observes its latency.
func (r *PrometheusMetricsRecorder) RecordWrite(op string, outcome string, elapsed time.Duration) {
	r.writes.WithLabelValues(op, outcome).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordRetry counts a retried write cycle.
func (r *PrometheusMetricsRecorder) RecordRetry(op string) {
	r.retries.WithLabelValues(op).Inc()
}

// RecordViolation counts a reported violation by kind.
func (r *PrometheusMetricsRecorder) RecordViolation(kind domain.ViolationKind) {
	r.violations.WithLabelValues(string(kind)).Inc()
}
