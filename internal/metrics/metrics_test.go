package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveBill("1", "valid")
	m.ObserveBill("1", "valid")
	m.ObservePlan("2", "poor", "ultra_enhanced")
	m.ObserveExtraction("standard", "RATE_LIMITED", 3*time.Second)
	m.ObserveMapping("mapped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BillsProcessed.WithLabelValues("1", "valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PageQuality.WithLabelValues("poor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionErrors.WithLabelValues("RATE_LIMITED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Mapping.WithLabelValues("mapped")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBill("1", "failed")
		m.ObservePlan("1", "good", "standard")
		m.ObserveExtraction("standard", "", time.Second)
		m.ObserveMapping("unmapped")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBill("1", "valid")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `provider_bills_bills_processed_total{outcome="valid",pass="1"} 1`)
}
