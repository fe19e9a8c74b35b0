// File: internal/observability/metrics.go
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for chaining, recovery and
// verification. All methods are safe on a nil *Metrics, which records
// nothing.
type Metrics struct {
	registry prometheus.Gatherer

	plansTotal          *prometheus.CounterVec
	chainLength         prometheus.Histogram
	recoveryTotal       *prometheus.CounterVec
	lengthMismatchTotal prometheus.Counter
	verdictsTotal       *prometheus.CounterVec
	escalationsTotal    *prometheus.CounterVec
	tierDuration        *prometheus.HistogramVec
	tokensTotal         *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers the collectors on reg.
func NewMetricsWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		plansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "plans_total",
			Help:      "Planning steps by generation path.",
		}, []string{"path"}),

		chainLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "length",
			Help:      "Number of actions in generated chains.",
			Buckets:   prometheus.LinearBuckets(2, 1, 9),
		}),

		recoveryTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "recovery_total",
			Help:      "Recovery decisions by strategy and reported error code.",
		}, []string{"strategy", "code"}),

		lengthMismatchTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "length_mismatch_total",
			Help:      "Partial failure reports whose chain length disagreed with the original chain.",
		}),

		verdictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "verdicts_total",
			Help:      "Verification verdicts by tier and outcome.",
		}, []string{"tier", "action_succeeded", "task_completed"}),

		escalationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "escalations_total",
			Help:      "Escalations out of a tier.",
		}, []string{"tier"}),

		tierDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "tier_duration_seconds",
			Help:      "Latency of each verification tier.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"tier"}),

		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by verification model calls.",
		}, []string{"tier", "type"}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Gatherer exposes the registry for the /metrics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObservePlan records a planning step; length is zero for single actions.
func (m *Metrics) ObservePlan(path string, length int) {
	if m == nil {
		return
	}
	m.plansTotal.WithLabelValues(path).Inc()
	if length > 0 {
		m.chainLength.Observe(float64(length))
	}
}

// ObserveRecovery records a recovery decision.
func (m *Metrics) ObserveRecovery(strategy, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "none"
	}
	m.recoveryTotal.WithLabelValues(strategy, code).Inc()
}

// ObserveLengthMismatch records a soft totalActionsInChain mismatch.
func (m *Metrics) ObserveLengthMismatch() {
	if m == nil {
		return
	}
	m.lengthMismatchTotal.Inc()
}

// ObserveVerdict records a verdict produced by tier.
func (m *Metrics) ObserveVerdict(tier string, actionSucceeded, taskCompleted bool) {
	if m == nil {
		return
	}
	m.verdictsTotal.WithLabelValues(tier, strconv.FormatBool(actionSucceeded), strconv.FormatBool(taskCompleted)).Inc()
}

// ObserveEscalation records that tier could not decide.
func (m *Metrics) ObserveEscalation(tier string) {
	if m == nil {
		return
	}
	m.escalationsTotal.WithLabelValues(tier).Inc()
}

// ObserveTierDuration records how long tier took.
func (m *Metrics) ObserveTierDuration(tier string, d time.Duration) {
	if m == nil {
		return
	}
	m.tierDuration.WithLabelValues(tier).Observe(d.Seconds())
}

// ObserveTokens records model token usage for tier.
func (m *Metrics) ObserveTokens(tier string, prompt, completion int) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.tokensTotal.WithLabelValues(tier, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.tokensTotal.WithLabelValues(tier, "completion").Add(float64(completion))
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
