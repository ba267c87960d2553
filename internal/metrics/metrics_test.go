package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMetrics_CountersExposed(t *testing.T) {
	m := metrics.New()

	m.LoginAttempt(metrics.OutcomeSuccess)
	m.LoginAttempt(metrics.OutcomeFailed)
	m.LoginAttempt(metrics.OutcomeFailed)
	m.SessionInvalidated("hijack")
	m.Logout()

	body := scrape(t, m)
	assert.Contains(t, body, `shop_auth_login_attempts_total{outcome="success"} 1`)
	assert.Contains(t, body, `shop_auth_login_attempts_total{outcome="failed"} 2`)
	assert.Contains(t, body, `shop_auth_session_invalidations_total{reason="hijack"} 1`)
	assert.Contains(t, body, `shop_auth_logouts_total 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.LoginAttempt(metrics.OutcomeSuccess)
		m.SessionInvalidated("expired")
		m.Logout()
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	first := metrics.New()
	second := metrics.New()

	first.Logout()

	assert.Contains(t, scrape(t, first), "shop_auth_logouts_total 1")
	assert.Contains(t, scrape(t, second), "shop_auth_logouts_total 0")
}
