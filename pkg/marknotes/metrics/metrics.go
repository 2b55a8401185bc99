// Package metrics exposes Prometheus collectors for HTTP traffic, document
// operations, session validation and trash retention.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marknotes_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marknotes_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marknotes_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	documentOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marknotes_document_operations_total",
			Help: "Document lifecycle operations by outcome.",
		},
		[]string{"op", "result"},
	)

	sessionValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marknotes_session_validations_total",
			Help: "Bearer token validations by outcome.",
		},
		[]string{"result"},
	)

	purgedItems = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marknotes_trash_purged_total",
		Help: "Items permanently removed by the retention purge.",
	})
)

// Init registers the collectors in the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			documentOps, sessionValidations, purgedItems,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDocumentOp records one document operation.
func ObserveDocumentOp(op string, err error) {
	documentOps.WithLabelValues(op, result(err)).Inc()
}

// ObserveSessionValidation records one token validation.
func ObserveSessionValidation(err error) {
	sessionValidations.WithLabelValues(result(err)).Inc()
}

// AddPurged counts items removed by the retention purge.
func AddPurged(n int) {
	if n > 0 {
		purgedItems.Add(float64(n))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Middleware measures request count, latency and in-flight requests.
// The route label is the matched gin pattern, so path parameters do not
// explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		httpInFlight.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
