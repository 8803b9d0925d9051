package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Dropped.WithLabelValues(ReasonResolve).Inc()
	m.Alerts.WithLabelValues("FRONT-RUN", "HIGH").Add(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Alerts.WithLabelValues("FRONT-RUN", "HIGH")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mev_monitor_dropped_transactions_total{reason="resolve"} 1`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
