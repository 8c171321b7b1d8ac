package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_db_queries_total",
			Help: "Total number of catalog database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_db_query_duration_seconds",
			Help:    "Catalog database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	CatalogRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_records",
			Help: "Number of image records in the catalog",
		},
	)
)

// Ingestion metrics
var (
	IngestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_ingest_files_total",
			Help: "Total number of files processed by ingestion",
		},
		[]string{"status"}, // "success", "error", "duplicate", "skipped"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_ingest_duration_seconds",
			Help:    "Per-file ingestion duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	IngestWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_ingest_workers",
			Help: "Number of parallel ingestion workers",
		},
	)
)

// Thumbnail derivation metrics
var (
	ThumbnailDerivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_thumbnail_derivations_total",
			Help: "Total number of thumbnail derivations",
		},
		[]string{"profile", "status"},
	)

	ThumbnailDerivationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_thumbnail_derivation_duration_seconds",
			Help:    "Thumbnail derivation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"profile"},
	)

	ThumbnailCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_thumbnail_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_thumbnail_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)
)

// External metadata tool metrics
var (
	ExiftoolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_exiftool_invocations_total",
			Help: "Total number of external metadata tool invocations",
		},
		[]string{"operation", "status"}, // status: "success", "error", "timeout"
	)

	ExiftoolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_exiftool_duration_seconds",
			Help:    "External metadata tool invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

// XMP synchronization metrics
var (
	SyncAnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_sync_analyses_total",
			Help: "Total number of sync state analyses",
		},
		[]string{"state"},
	)

	SyncWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_sync_writes_total",
			Help: "Total number of XMP writes",
		},
		[]string{"target", "status"}, // target: "embedded", "sidecar"
	)

	SyncImportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_sync_imports_total",
			Help: "Total number of XMP-to-catalog imports",
		},
	)

	SyncExportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_sync_exports_total",
			Help: "Total number of catalog-to-XMP exports",
		},
	)
)

// Badge refresh scheduler metrics
var (
	BadgeQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_badge_queue_depth",
			Help: "Number of records queued for badge refresh",
		},
	)

	BadgeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_badge_refreshes_total",
			Help: "Total number of badge refreshes processed",
		},
		[]string{"status"},
	)

	BadgeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_badge_dropped_total",
			Help: "Total number of badge refresh requests dropped (duplicate or full queue)",
		},
	)
)

// Sidecar watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_watcher_events_total",
			Help: "Total number of file system events observed",
		},
		[]string{"type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_catalog_watcher_errors_total",
			Help: "Total number of file watcher errors",
		},
	)

	WatcherDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_catalog_watcher_directories",
			Help: "Number of directories currently watched",
		},
	)
)

// Retrieval metrics
var (
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_catalog_search_queries_total",
			Help: "Total number of retrieval queries",
		},
		[]string{"mode", "status"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_search_duration_seconds",
			Help:    "Retrieval query duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	SearchCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_catalog_search_candidates",
			Help:    "Number of candidates materialized per query",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"mode"},
	)
)
