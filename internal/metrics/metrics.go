// Package metrics declares the Prometheus metrics exported by mediacat
// and an optional HTTP endpoint to scrape them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Scan pipeline metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacat_scans_total",
			Help: "Total number of scans by outcome",
		},
		[]string{"status"}, // "complete", "cancelled", "degraded"
	)

	ScanLastDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacat_scan_last_duration_seconds",
			Help: "Duration of the last scan in seconds",
		},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacat_scan_files_total",
			Help: "Files processed by the scan pipeline",
		},
		[]string{"media_type", "status"}, // status: "accepted", "failed"
	)

	ScanErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacat_scan_errors_total",
			Help: "Per-file scan errors by kind",
		},
		[]string{"kind"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediacat_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"}, // "metadata", "fingerprint", "thumbnail"
	)

	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacat_scan_workers_active",
			Help: "Scan workers currently processing a file",
		},
	)
)

// Catalog metrics
var (
	CatalogQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacat_catalog_queries_total",
			Help: "Catalog operations by kind and status",
		},
		[]string{"operation", "status"},
	)

	CatalogQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediacat_catalog_query_duration_seconds",
			Help:    "Catalog operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// Classifier and sync metrics
var (
	ClassifierRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacat_classifier_requests_total",
			Help: "Classifier calls by status",
		},
		[]string{"status"},
	)

	ClassifierInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediacat_classifier_in_flight",
			Help: "Classifier calls currently running",
		},
	)

	SyncObjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacat_sync_objects_total",
			Help: "Cloud sync outcomes per record",
		},
		[]string{"status"}, // "uploaded", "skipped", "failed"
	)

	SyncUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediacat_sync_upload_bytes_total",
			Help: "Bytes uploaded to cloud storage",
		},
	)
)

// ObserveStage records how long a pipeline stage took
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveCatalog records a catalog operation outcome and duration
func ObserveCatalog(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CatalogQueriesTotal.WithLabelValues(op, status).Inc()
	CatalogQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
