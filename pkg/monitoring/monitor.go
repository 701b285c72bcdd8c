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
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	PapersGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_papers_generated_total",
			Help: "Number of assembled exam papers",
		},
		[]string{"difficulty"},
	)

	// QuestionTopUps 题量不足时有放回补齐的题目数
	QuestionTopUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_question_topups_total",
			Help: "Questions repeated to satisfy a quota",
		},
		[]string{"type"},
	)

	ExamsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_completed_total",
			Help: "Completed exam attempts",
		},
		[]string{"trigger", "passed"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_active_sessions",
			Help: "Exam sessions currently in progress",
		},
	)

	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_persist_failures_total",
			Help: "Exam results that could not be saved",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			PapersGenerated,
			QuestionTopUps,
			ExamsCompleted,
			ActiveSessions,
			PersistFailures,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
