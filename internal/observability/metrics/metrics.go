package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config carries the const labels applied to every metric plus the
// optional OTLP push pipeline settings.
type Config struct {
	ServiceName string
	Environment string

	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
}

func (c Config) constLabels() prometheus.Labels {
	serviceName := strings.TrimSpace(c.ServiceName)
	if serviceName == "" {
		serviceName = "meridian"
	}
	environment := strings.TrimSpace(c.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// HTTPMetrics captures low-cardinality HTTP server metrics.
type HTTPMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics instruments.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	labels := cfg.constLabels()
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "meridian_http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: labels,
		}, []string{"route", "status_code"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "meridian_http_request_duration_seconds",
			Help:        "HTTP request duration by route.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route"}),
		inFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "meridian_http_in_flight_requests",
			Help:        "In-flight HTTP requests.",
			ConstLabels: labels,
		}),
	}
}

// GinMiddleware records request counters, duration and in-flight gauge.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.inFlight.Inc()
		start := time.Now()
		c.Next()
		m.inFlight.Dec()

		route := normalizeRoute(c.FullPath())
		m.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return "unknown"
	}
	return route
}
