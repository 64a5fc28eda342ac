package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizforge_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quizforge_documents_ingested_total",
			Help: "Total documents ingested",
		},
	)

	ChunksPerDocument = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quizforge_chunks_per_document",
			Help:    "Number of chunks produced per ingested document",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	GenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_generation_total",
			Help: "Total AI generation calls by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	GradingSuggestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_grading_suggestions_total",
			Help: "Total grading suggestions by decoder that produced them",
		},
		[]string{"decoder"},
	)

	SpeechRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_speech_requests_total",
			Help: "Total speech requests by direction and outcome",
		},
		[]string{"direction", "status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizforge_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	SubmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quizforge_submissions_total",
			Help: "Total quiz submissions accepted",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksPerDocument)
	prometheus.MustRegister(GenerationTotal)
	prometheus.MustRegister(GradingSuggestions)
	prometheus.MustRegister(SpeechRequests)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(SubmissionsTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// RequestTimer records every request into RequestDuration, labeled by the
// registered route pattern rather than the raw path so parameterized routes
// collapse into one series.
func RequestTimer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			status = fiberErr.Code
		}

		RequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	}
}
