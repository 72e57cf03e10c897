package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns a service's Prometheus registry. Every metric it
// creates is prefixed with the service name and registered on its own
// registry, so repeated construction (tests, embedded servers) never trips
// the duplicate-registration panic of the global default.
type MetricsCollector struct {
	prefix   string
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	serviceInfo *prometheus.GaugeVec
}

// NewMetricsCollector builds a collector for serviceName and records the
// build identity as a constant service_info gauge.
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	mc := &MetricsCollector{
		// Hyphens are not valid in Prometheus metric names.
		prefix:   strings.ReplaceAll(serviceName, "-", "_"),
		registry: prometheus.NewRegistry(),
	}

	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mc.requests = mc.NewCounter("http_requests_total",
		"HTTP requests served", []string{"method", "endpoint", "status"})
	mc.latency = mc.NewHistogram("http_request_duration_seconds",
		"HTTP request latency", []string{"method", "endpoint"}, nil)

	mc.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: mc.prefix + "_http_in_flight",
		Help: "HTTP requests currently being served",
	})
	mc.registry.MustRegister(mc.inFlight)

	mc.serviceInfo = mc.NewGauge("service_info", "Build identity", []string{"version", "commit"})
	mc.serviceInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// NewCounter registers a service-prefixed counter vector.
func (mc *MetricsCollector) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: mc.prefix + "_" + name,
		Help: help,
	}, labels)
	mc.registry.MustRegister(c)
	return c
}

// NewGauge registers a service-prefixed gauge vector.
func (mc *MetricsCollector) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: mc.prefix + "_" + name,
		Help: help,
	}, labels)
	mc.registry.MustRegister(g)
	return g
}

// NewHistogram registers a service-prefixed histogram vector. A nil buckets
// slice gets the Prometheus defaults.
func (mc *MetricsCollector) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    mc.prefix + "_" + name,
		Help:    help,
		Buckets: buckets,
	}, labels)
	mc.registry.MustRegister(h)
	return h
}

// MetricsMiddleware records request counts, latency and in-flight load for
// every route passing through the router.
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		mc.inFlight.Inc()

		c.Next()

		mc.inFlight.Dec()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := c.Request.Method
		mc.requests.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		mc.latency.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the collector's registry in Prometheus text format.
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
