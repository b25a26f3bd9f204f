package metrics

import (
	"net/http"
	"time"

	"bulksync/core/bulk/op"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Observation is the outcome of one bulk call.
type Observation struct {
	Engine    string
	Table     string
	Operation string
	// Status is StatusSuccess or StatusFailure.
	Status string
	// Reason is the failure reason, empty on success.
	Reason string
	// Loaded is the number of rows written to staging or the target.
	Loaded int64
	// Stats holds the per action counts when they were calculated.
	Stats    *op.Stats
	Duration time.Duration
}

// Reporter receives one observation per bulk call.
type Reporter interface {
	Observe(o Observation)
}

// Nop discards observations.
type Nop struct{}

// Observe implements Reporter.
func (Nop) Observe(Observation) {}

// Prometheus records observations as Prometheus metrics on a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	rows     *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewPrometheus creates a reporter whose metric names start with namespace.
func NewPrometheus(namespace string) *Prometheus {
	labels := []string{"engine", "table", "operation", "status"}
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of bulk operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, labels),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_total",
			Help:      "Total number of bulk operations",
		}, labels),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows processed by bulk operations, by action",
		}, []string{"engine", "table", "operation", "action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed bulk operations, by reason",
		}, []string{"engine", "table", "operation", "reason"}),
	}
	p.registry.MustRegister(p.duration, p.total, p.rows, p.failures)
	return p
}

// Observe implements Reporter.
func (p *Prometheus) Observe(o Observation) {
	status := o.Status
	if status == "" {
		status = StatusSuccess
	}
	p.duration.WithLabelValues(o.Engine, o.Table, o.Operation, status).Observe(o.Duration.Seconds())
	p.total.WithLabelValues(o.Engine, o.Table, o.Operation, status).Inc()

	if status == StatusFailure {
		reason := o.Reason
		if reason == "" {
			reason = "unknown"
		}
		p.failures.WithLabelValues(o.Engine, o.Table, o.Operation, reason).Inc()
		return
	}
	p.rows.WithLabelValues(o.Engine, o.Table, o.Operation, "loaded").Add(float64(o.Loaded))
	if o.Stats != nil {
		p.rows.WithLabelValues(o.Engine, o.Table, o.Operation, "inserted").Add(float64(o.Stats.Inserted))
		p.rows.WithLabelValues(o.Engine, o.Table, o.Operation, "updated").Add(float64(o.Stats.Updated))
		p.rows.WithLabelValues(o.Engine, o.Table, o.Operation, "deleted").Add(float64(o.Stats.Deleted))
	}
}

// Registry returns the registry the metrics live on.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
