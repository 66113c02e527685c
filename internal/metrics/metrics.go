// Package metrics exposes Prometheus collectors for ingestion and queries.
//
// Collectors are registered once on the default registry. Handler serves
// them for scraping; Serve runs a standalone endpoint for the CLI.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/airq/internal/logging"
)

const namespace = "airq"

// Row outcomes.
const (
	OutcomeValid    = "valid"
	OutcomeSkipped  = "skipped"
	OutcomeInserted = "inserted"
	OutcomeRejected = "rejected"
)

// Batch and stream results.
const (
	ResultOK      = "ok"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

var (
	// IngestRows counts source rows by outcome.
	IngestRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "rows_total",
		Help:      "Source rows processed by outcome (valid, skipped, inserted, rejected).",
	}, []string{"outcome"})

	// IngestBatches counts flushed batches by result.
	IngestBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "batches_total",
		Help:      "Flushed batches by result (ok, partial, failed).",
	}, []string{"result"})

	// IngestStreams counts completed ingestion streams by result.
	IngestStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "streams_total",
		Help:      "Ingestion streams by result (ok, failed).",
	}, []string{"result"})

	// FlushDuration observes the latency of one blocking flush.
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "flush_duration_seconds",
		Help:      "Duration of batch persistence calls.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// QueryDuration observes query latency by kind.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Query execution time by kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// QueryErrors counts failed queries by kind.
	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "errors_total",
		Help:      "Failed or rejected queries by kind.",
	}, []string{"kind"})
)

// ObserveQuery records one query execution.
func ObserveQuery(kind string, start time.Time, err error) {
	QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		QueryErrors.WithLabelValues(kind).Inc()
	}
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Component("metrics").Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
