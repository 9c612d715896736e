package telemetry

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for the HTTP surface and the
// storage write path.
type Metrics struct {
	apiRequests   *prometheus.CounterVec
	apiDuration   *prometheus.HistogramVec
	batchDuration *prometheus.HistogramVec
	batchSize     prometheus.Histogram
}

// NewMetrics registers and returns Prometheus metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on reg, reusing collectors that are already registered.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	apiRequests := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_api_requests_total",
		Help: "Counts API requests by route, method and status.",
	}, []string{"route", "method", "status"}))

	apiDuration := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_api_duration_seconds",
		Help:    "API request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"}))

	batchDuration := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_event_batch_duration_seconds",
		Help:    "Time spent persisting one event batch, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"}))

	batchSize := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_event_batch_size",
		Help:    "Number of events submitted per batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}))

	return &Metrics{
		apiRequests:   apiRequests,
		apiDuration:   apiDuration,
		batchDuration: batchDuration,
		batchSize:     batchSize,
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	routeLabel := sanitizeLabel(route)
	methodLabel := sanitizeLabel(method)
	m.apiRequests.WithLabelValues(routeLabel, methodLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(routeLabel, methodLabel).Observe(duration.Seconds())
}

// ObserveEventBatch records the size and persistence latency of a batch.
func (m *Metrics) ObserveEventBatch(size int, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
	m.batchDuration.WithLabelValues(sanitizeLabel(status)).Observe(duration.Seconds())
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveAPIRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
