package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	ExternalCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_calls_total",
			Help: "Calls to reasoning, speech and vector services",
		},
		[]string{"service", "operation", "outcome"},
	)

	ExternalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Latency of calls to reasoning, speech and vector services",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "operation"},
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dialogue_turn_duration_seconds",
			Help:    "End-to-end duration of exam and study turns",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"kind", "outcome"},
	)

	OffTopicRedirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_off_topic_redirects_total",
			Help: "Turns answered with a redirect instead of grading",
		},
		[]string{"kind"},
	)

	RetrievalSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_source_total",
			Help: "Which store served a retrieval request",
		},
		[]string{"source"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			ExternalCalls,
			ExternalDuration,
			TurnDuration,
			OffTopicRedirects,
			RetrievalSource,
		)
	})
}

// ObserveExternal records one outbound call. Use it with defer:
//
//	defer monitoring.ObserveExternal("openai", "grade", time.Now(), &err)
func ObserveExternal(service, operation string, start time.Time, err *error) {
	outcome := "ok"
	if err != nil && *err != nil {
		outcome = "error"
	}
	ExternalCalls.WithLabelValues(service, operation, outcome).Inc()
	ExternalDuration.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
}

func ObserveTurn(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	TurnDuration.WithLabelValues(kind, outcome).Observe(time.Since(start).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
