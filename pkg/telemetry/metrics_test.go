package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAPIRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.ObserveAPIRequest("/v1/events", "POST", 201, 10*time.Millisecond)
	m.ObserveAPIRequest("", "GET", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("/v1/events", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("unknown", "GET", "404")))
}

func TestNewMetricsWithReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetricsWith(reg)
	second := NewMetricsWith(reg)

	first.ObserveAPIRequest("/health", "GET", 200, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.apiRequests.WithLabelValues("/health", "GET", "200")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPIRequest("/", "GET", 200, 0)
	m.ObserveEventBatch(1, "ok", 0)
}
