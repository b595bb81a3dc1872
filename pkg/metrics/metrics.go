// Package metrics wires github.com/prometheus/client_golang into the
// verification engine: the teacher's go.mod carries this dependency but
// registers no collector anywhere in pkg/, following the gauge/counter
// style other pack repos use it for (construct a private prometheus.Registry,
// build named collectors, MustRegister them up front).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector this module exposes: rule evaluations,
// policy runs, and extender cache hit/miss (spec SPEC_FULL §A.4).
type Registry struct {
	prom *prometheus.Registry

	RuleEvaluations   *prometheus.CounterVec
	PolicyRuns        *prometheus.CounterVec
	PolicyDuration    *prometheus.HistogramVec
	ExtenderRequests  *prometheus.CounterVec
	CacheOperations   *prometheus.CounterVec
}

// New builds a Registry with every collector registered and ready to
// observe.
func New() *Registry {
	prom := prometheus.NewRegistry()

	r := &Registry{
		prom: prom,
		RuleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_rule_evaluations_total",
			Help: "Count of verification rule evaluations by rule id and outcome.",
		}, []string{"rule", "status"}),
		PolicyRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_policy_runs_total",
			Help: "Count of policy evaluations by policy name and outcome.",
		}, []string{"policy", "outcome"}),
		PolicyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ksi_policy_duration_seconds",
			Help:    "Policy evaluation latency by policy name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"policy"}),
		ExtenderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_extender_requests_total",
			Help: "Count of extender Extend calls by outcome.",
		}, []string{"outcome"}),
		CacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ksi_extender_cache_operations_total",
			Help: "Count of extender-chain cache lookups by result (hit/miss).",
		}, []string{"result"}),
	}

	prom.MustRegister(
		r.RuleEvaluations,
		r.PolicyRuns,
		r.PolicyDuration,
		r.ExtenderRequests,
		r.CacheOperations,
	)
	return r
}

// Handler serves the registered collectors in the Prometheus exposition
// format, to be mounted on Config.MetricsAddr's /metrics route.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// ObservePolicyResult records a completed policy evaluation: the run
// outcome, its wall-clock duration, and every rule step it touched.
func (r *Registry) ObservePolicyResult(policyName string, ok bool, durationSeconds float64, steps []RuleOutcome) {
	outcome := "ok"
	if !ok {
		outcome = "fail"
	}
	r.PolicyRuns.WithLabelValues(policyName, outcome).Inc()
	r.PolicyDuration.WithLabelValues(policyName).Observe(durationSeconds)
	for _, s := range steps {
		r.RuleEvaluations.WithLabelValues(s.Rule, s.Status).Inc()
	}
}

// RuleOutcome is the minimal shape ObservePolicyResult needs from a
// verification.RuleResult, kept decoupled from pkg/verification so this
// package has no import-graph dependency on the rule catalogue.
type RuleOutcome struct {
	Rule   string
	Status string
}
