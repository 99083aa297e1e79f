package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersIntoIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.QuotaDecisionsTotal.WithLabelValues("free", "denied").Inc()
	m.QuotaDecisionsTotal.WithLabelValues("free", "denied").Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QuotaDecisionsTotal.WithLabelValues("free", "denied")))

	// A second registry accepts the same collector names.
	require.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IndexRebuildsTotal.WithLabelValues("success").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), `frequency_index_rebuilds_total{status="success"} 1`))
}
