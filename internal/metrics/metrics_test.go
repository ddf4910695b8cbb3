package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"toko-commerce/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.Commands.WithLabelValues("orders.submit", "ok").Inc()
	m.PaymentTransitions.WithLabelValues("completed").Add(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentTransitions.WithLabelValues("completed")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `toko_pipeline_commands_total{command="orders.submit",outcome="ok"} 1`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.New()
		metrics.New()
	})
}
