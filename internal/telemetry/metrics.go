package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_jobs_enqueued_total", Help: "Jobs accepted via the ops API"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_rate_limit_rejects_total", Help: "Enqueue requests rejected by the rate limiter"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_jobs_completed_total", Help: "Jobs completed successfully"})
	JobsRetried      = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_jobs_retried_total", Help: "Job failures returned to pending for retry"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_jobs_failed_total", Help: "Jobs that failed terminally"})
	ProductsCreated  = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_products_created_total", Help: "Products inserted during ingestion"})
	ProductsUpdated  = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_products_updated_total", Help: "Products updated during ingestion"})
	AssetsPrepared   = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_assets_prepared_total", Help: "Derived assets written by the prep pipeline"})
	AssetRejections  = prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_asset_rejections_total", Help: "Products rejected by the prep pipeline heuristics"})
	PendingJobsGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_jobs_pending", Help: "Jobs currently pending in the queue"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			RateLimitRejects,
			JobsCompleted,
			JobsRetried,
			JobsFailed,
			ProductsCreated,
			ProductsUpdated,
			AssetsPrepared,
			AssetRejections,
			PendingJobsGauge,
		)
	})
	return promhttp.Handler()
}
