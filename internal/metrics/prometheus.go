package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldatlas_query_duration_seconds",
			Help:    "Search pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldatlas_query_total",
			Help: "Total number of search requests processed",
		},
		[]string{"status"},
	)

	PlanFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldatlas_plan_fallback_total",
			Help: "Plans built by keyword fallback instead of the model",
		},
	)

	RefinementApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldatlas_refinement_applied_total",
			Help: "Searches whose results were refined",
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldatlas_cache_hits_total",
			Help: "Search cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldatlas_cache_misses_total",
			Help: "Search cache misses",
		},
	)

	FieldsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldatlas_fields_loaded",
			Help: "Field records currently in the metadata store",
		},
	)

	ObjectsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldatlas_objects_loaded",
			Help: "Object records currently in the metadata store",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(PlanFallbackTotal)
	prometheus.MustRegister(RefinementApplied)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(FieldsLoaded)
	prometheus.MustRegister(ObjectsLoaded)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
