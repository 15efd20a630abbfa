package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_agent_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	RouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_route_total",
			Help: "Queries per routing decision",
		},
		[]string{"route"},
	)

	RelevanceRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_relevance_retries_total",
			Help: "Retrievals retried after a not-relevant grade",
		},
	)

	LLMTokensUsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_cache_hits_total",
			Help: "Total answer cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_agent_cache_misses_total",
			Help: "Total answer cache misses",
		},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_agent_documents_processed_total",
			Help: "Documents ingested, by final status",
		},
		[]string{"status"},
	)

	FeedbackRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_agent_feedback_rating",
			Help:    "Distribution of feedback ratings",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_agent_websocket_connections",
			Help: "Currently open websocket sessions",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RouteTotal)
	prometheus.MustRegister(RelevanceRetries)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(FeedbackRating)
	prometheus.MustRegister(WebsocketConnections)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
