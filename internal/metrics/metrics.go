package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Album reconciliation metrics
var (
	AlbumRepairRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_album_repair_runs_total",
			Help: "Total number of album repair passes",
		},
	)

	AlbumsMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_albums_merged_total",
			Help: "Total number of duplicate albums merged during repair",
		},
	)

	AlbumsOrphanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_albums_orphaned_total",
			Help: "Total number of empty albums removed during repair",
		},
	)
)

// Indexing and face scan metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerFilesIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_files_indexed_total",
			Help: "Total number of files upserted by the indexer",
		},
	)

	IndexerErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_errors_total",
			Help: "Total number of per-file indexer errors",
		},
	)

	FaceScanBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_face_scan_batches_total",
			Help: "Total number of face scan batches drained",
		},
	)

	FacesDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_faces_detected_total",
			Help: "Total number of faces stored by the scanner",
		},
	)

	FaceScanErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_face_scan_errors_total",
			Help: "Total number of per-item face scan errors",
		},
	)
)
