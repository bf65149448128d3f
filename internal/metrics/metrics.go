// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	subsystemsTotal        *prometheus.CounterVec
	documentsTotal         *prometheus.CounterVec
	requestDurationSeconds *prometheus.HistogramVec
	activeWorkers          prometheus.Gauge
	storedDocumentsDeduped prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times.
func Init() {
	once.Do(func() {
		subsystemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_subsystems_total",
				Help: "Crawled subsystems by final status.",
			},
			[]string{"status"},
		)
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_documents_total",
				Help: "Description document fetches by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)
		requestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_request_duration_seconds",
				Help:    "Gateway request durations by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_active_workers",
				Help: "Workers currently processing a subsystem.",
			},
		)
		storedDocumentsDeduped = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_documents_deduplicated_total",
				Help: "Saves that resolved to an already stored document.",
			},
		)
	})
}

// RecordSubsystem counts a finished subsystem by status.
func RecordSubsystem(status string) {
	if subsystemsTotal != nil {
		subsystemsTotal.WithLabelValues(status).Inc()
	}
}

// RecordDocument counts one description fetch outcome.
func RecordDocument(kind, outcome string) {
	if documentsTotal != nil {
		documentsTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// ObserveRequest records a gateway round-trip duration.
func ObserveRequest(operation string, d time.Duration) {
	if requestDurationSeconds != nil {
		requestDurationSeconds.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// WorkerDone decrements the active worker gauge.
func WorkerDone() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// RecordDeduplicated counts a save that hit an existing document.
func RecordDeduplicated() {
	if storedDocumentsDeduped != nil {
		storedDocumentsDeduped.Inc()
	}
}

// Serve runs the metrics and health endpoints until ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
