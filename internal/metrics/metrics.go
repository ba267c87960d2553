package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shop_auth"

// Login outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeThrottled = "throttled"
	OutcomeInvalid   = "invalid_input"
	OutcomeError     = "error"
)

// Metrics holds the auth counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	loginAttempts        *prometheus.CounterVec
	sessionInvalidations *prometheus.CounterVec
	logouts              prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		sessionInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_invalidations_total",
			Help:      "Authenticated sessions destroyed by validation, by reason.",
		}, []string{"reason"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Completed logouts.",
		}),
	}

	registry.MustRegister(m.loginAttempts, m.sessionInvalidations, m.logouts)
	return m
}

func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionInvalidated(reason string) {
	if m == nil {
		return
	}
	m.sessionInvalidations.WithLabelValues(reason).Inc()
}

func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
