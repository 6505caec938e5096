package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	TierExact    = "exact"
	TierSemantic = "semantic"

	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeError   = "error"
	OutcomeRefusal = "refusal"
)

var (
	once sync.Once

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chewie_cache_lookups_total",
		Help: "Cache lookups by tier and outcome",
	}, []string{"tier", "outcome"})

	semanticSimilarity = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chewie_cache_hit_similarity",
		Help:    "Similarity of semantic cache hits",
		Buckets: []float64{0.9, 0.92, 0.94, 0.95, 0.96, 0.97, 0.98, 0.99, 1.0},
	})

	retrievalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chewie_retrieval_latency_ms",
		Help:    "Latency of document retrieval in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200},
	})

	retrievalResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chewie_retrieval_results",
		Help:    "Number of chunks kept after the similarity floor",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})

	generationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chewie_generation_latency_ms",
		Help:    "Latency of answer generation in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
	}, []string{"provider"})

	askRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chewie_ask_requests_total",
		Help: "Ask requests by query type and outcome",
	}, []string{"query_type", "outcome"})

	invalidated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chewie_cache_invalidated_total",
		Help: "Semantic cache entries removed by invalidation",
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(cacheLookups, semanticSimilarity, retrievalLatency, retrievalResults,
			generationLatency, askRequests, invalidated)
	})
}

func IncCacheLookup(tier, outcome string) {
	ensureRegistered()
	cacheLookups.WithLabelValues(tier, outcome).Inc()
}

func ObserveSemanticHit(similarity float64) {
	ensureRegistered()
	semanticSimilarity.Observe(similarity)
}

// ObserveRetrieval records latency and kept chunk count of one retrieval.
func ObserveRetrieval(start time.Time, results int) {
	ensureRegistered()
	retrievalLatency.Observe(float64(time.Since(start).Milliseconds()))
	retrievalResults.Observe(float64(results))
}

func ObserveGeneration(provider string, start time.Time) {
	ensureRegistered()
	generationLatency.WithLabelValues(provider).Observe(float64(time.Since(start).Milliseconds()))
}

func IncAsk(queryType, outcome string) {
	ensureRegistered()
	askRequests.WithLabelValues(queryType, outcome).Inc()
}

func AddInvalidated(n int64) {
	ensureRegistered()
	invalidated.Add(float64(n))
}

func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}
