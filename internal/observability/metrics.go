package observability

import (
	"net/http"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for validations_total.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors on a dedicated registry.
type Metrics struct {
	registry    *prometheus.Registry
	validations *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Property validations by kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected validations by error code.",
		}, []string{"code"}),
	}
	m.registry.MustRegister(m.validations, m.failures)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Recorder fans a validation outcome out to the failure stats and the
// metrics. Either may be nil.
type Recorder struct {
	Stats   *ValidationStats
	Metrics *Metrics
}

// Observe records the outcome of op on kind. err is the error returned to
// the caller, nil on success.
func (r *Recorder) Observe(kind, op string, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		if metaerrors.GetCategory(err) == metaerrors.ErrCategoryValidation {
			outcome = OutcomeRejected
		}
	}

	if r.Metrics != nil {
		r.Metrics.validations.WithLabelValues(kind, op, outcome).Inc()
		if outcome == OutcomeRejected {
			r.Metrics.failures.WithLabelValues(metaerrors.GetCode(err)).Inc()
		}
	}
	if r.Stats != nil && outcome == OutcomeRejected {
		if prop := metaerrors.GetProperty(err); prop != "" {
			r.Stats.RecordFailure(kind, prop, metaerrors.GetCode(err))
		}
	}
}
