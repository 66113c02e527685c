package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/logging"
	"github.com/xtxerr/airq/internal/storage/config"
	"github.com/xtxerr/airq/internal/storage/duckstore"
	"github.com/xtxerr/airq/internal/storage/ingestion"
	"github.com/xtxerr/airq/internal/storage/memstore"
	"github.com/xtxerr/airq/internal/storage/mongostore"
	"github.com/xtxerr/airq/internal/storage/parquet"
	"github.com/xtxerr/airq/internal/storage/parser"
	"github.com/xtxerr/airq/internal/storage/query"
	"github.com/xtxerr/airq/internal/storage/source"
	"github.com/xtxerr/airq/internal/storage/types"
	"github.com/xtxerr/airq/internal/validation"
)

// Backend is a store collaborator: it persists batches and answers plans.
type Backend interface {
	ingestion.Writer
	query.Store
	Close() error
}

// Service composes a backend with the ingestion pipeline and the query
// engine.
type Service struct {
	config *config.Config
	logger *slog.Logger

	// Components
	backend  Backend
	pipeline *ingestion.Pipeline
	planner  *query.Planner
	executor *query.Executor
	opener   *source.Opener

	// State
	closed    atomic.Bool
	startTime time.Time
}

// New opens the configured backend and creates a service over it.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewWithBackend(cfg, backend), nil
}

// OpenBackend opens the store collaborator named by cfg.Backend.
func OpenBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case "duckdb":
		s, err := duckstore.Open(ctx, duckstore.Options{
			Path:          cfg.DuckDB.Path,
			MemoryLimit:   cfg.DuckDB.MemoryLimit,
			TempDirectory: cfg.DuckDB.TempDirectory,
			Threads:       cfg.DuckDB.Threads,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongostore.Open(ctx, mongostore.Options{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			Collection:     cfg.Mongo.Collection,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedBackend, cfg.Backend)
	}
}

// NewWithBackend creates a service over an already open backend. The
// service takes ownership of backend.
func NewWithBackend(cfg *config.Config, backend Backend) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	pipeline := ingestion.New(backend, ingestion.Options{
		BatchSize:    cfg.Ingestion.BatchSize,
		FlushTimeout: cfg.Ingestion.FlushTimeout,
		Parser:       parser.NewWithSentinel(cfg.Ingestion.Sentinel()),
	})

	planner := query.NewPlanner(query.PlannerOptions{
		MaxRows:      cfg.Query.MaxRows,
		AllowDiskUse: cfg.Query.AllowDiskUse,
	})

	executor := query.NewExecutor(backend, query.ExecutorOptions{
		Timeout:            cfg.Query.Timeout,
		PercentileAccuracy: cfg.Query.PercentileAccuracy,
	})

	opener := source.NewOpener(source.S3Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	})

	return &Service{
		config:    cfg,
		logger:    logging.Component("storage"),
		backend:   backend,
		pipeline:  pipeline,
		planner:   planner,
		executor:  executor,
		opener:    opener,
		startTime: time.Now(),
	}
}

// Close closes the backend.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.backend.Close()
}

// =============================================================================
// Ingestion
// =============================================================================

// Import ingests one delimited stream. name identifies it in logs.
func (s *Service) Import(ctx context.Context, r io.Reader, name string) (ingestion.Report, error) {
	if s.closed.Load() {
		return ingestion.Report{Source: name}, errors.ErrStoreClosed
	}
	return s.pipeline.IngestNamed(ctx, r, name)
}

// ImportFiles ingests local paths and s3:// URIs concurrently, one
// independent stream each.
func (s *Service) ImportFiles(ctx context.Context, uris ...string) []ingestion.FileReport {
	if s.closed.Load() {
		reports := make([]ingestion.FileReport, len(uris))
		for i, uri := range uris {
			reports[i] = ingestion.FileReport{Report: ingestion.Report{Source: uri}, Err: errors.ErrStoreClosed}
		}
		return reports
	}
	return s.pipeline.ImportFiles(ctx, s.opener, s.config.Ingestion.MaxConcurrentFiles, uris...)
}

// Restore re-ingests a Parquet archive written by Export.
func (s *Service) Restore(ctx context.Context, path string) (ingestion.Report, error) {
	if s.closed.Load() {
		return ingestion.Report{Source: path}, errors.ErrStoreClosed
	}

	r, err := parquet.NewReader(path)
	if err != nil {
		return ingestion.Report{Source: path}, errors.NewSourceIO(path, err)
	}
	defer r.Close()

	return s.pipeline.IngestReadings(ctx, path, r)
}

// =============================================================================
// Queries
// =============================================================================

// Plan validates spec and returns its plan without executing it.
func (s *Service) Plan(spec query.Spec) (*query.Plan, error) {
	return s.planner.Plan(spec)
}

// Execute plans and runs spec.
func (s *Service) Execute(ctx context.Context, spec query.Spec) (*query.Result, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	plan, err := s.planner.Plan(spec)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, plan)
}

// Range returns the readings between two required bounds, sorted by
// timestamp. A date-only upper bound includes that whole day.
func (s *Service) Range(ctx context.Context, from, to string) ([]types.Reading, error) {
	tr, err := validation.ParseRequiredRange(from, to)
	if err != nil {
		return nil, err
	}

	res, err := s.Execute(ctx, query.Spec{Kind: query.KindRange, Range: tr})
	if err != nil {
		return nil, err
	}
	return res.Readings, nil
}

// TimeSeries reduces one parameter per interval bucket. Empty interval and
// reducer select daily and sum; empty bounds are open.
func (s *Service) TimeSeries(ctx context.Context, parameter, from, to, interval, reducer string) ([]types.Bucket, error) {
	tr, err := validation.ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	res, err := s.Execute(ctx, query.Spec{
		Kind:      query.KindSeries,
		Range:     tr,
		Parameter: parameter,
		Interval:  interval,
		Reducer:   reducer,
	})
	if err != nil {
		return nil, err
	}
	return res.Buckets, nil
}

// Summary reduces every field over the matching readings with avg, min or
// max. An empty reducer selects avg. Fields without values are omitted.
func (s *Service) Summary(ctx context.Context, from, to, reducer string) (types.Summary, error) {
	tr, err := validation.ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	res, err := s.Execute(ctx, query.Spec{Kind: query.KindSummary, Range: tr, Reducer: reducer})
	if err != nil {
		return nil, err
	}
	return res.Summary, nil
}

// Percentiles estimates quantiles of one parameter, or of all fields when
// parameter is empty, optionally per interval bucket.
func (s *Service) Percentiles(ctx context.Context, parameter, from, to, interval string, quantiles []float64) ([]types.DistributionBucket, error) {
	tr, err := validation.ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	res, err := s.Execute(ctx, query.Spec{
		Kind:      query.KindPercentiles,
		Range:     tr,
		Parameter: parameter,
		Interval:  interval,
		Quantiles: quantiles,
	})
	if err != nil {
		return nil, err
	}
	return res.Distributions, nil
}

// Parameters returns the descriptors of the queryable fields.
func (s *Service) Parameters() []types.FieldDescriptor {
	return types.Fields()
}

// =============================================================================
// Export
// =============================================================================

// Export writes the readings between the optional bounds to a Parquet
// archive at path. Readings are streamed from the backend; a failed export
// removes the partial file.
func (s *Service) Export(ctx context.Context, from, to, path string) (*parquet.FileInfo, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	tr, err := validation.ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Plan(query.Spec{Kind: query.KindRange, Range: tr})
	if err != nil {
		return nil, err
	}
	plan.Limit = 0

	w, err := parquet.NewWriter(path, parquet.Options{
		Compression:  parquet.ParseCompressionType(s.config.Export.Compression),
		RowGroupSize: s.config.Export.RowGroupSize,
	})
	if err != nil {
		return nil, err
	}

	if err := s.exportTo(ctx, plan, w); err != nil {
		w.Abort()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	s.logger.Info("export complete", "path", path, "rows", w.RowCount())
	return parquet.GetFileInfo(path)
}

func (s *Service) exportTo(ctx context.Context, plan *query.Plan, w *parquet.Writer) error {
	cur, err := s.backend.Find(ctx, plan)
	if err != nil {
		return err
	}
	defer cur.Close()

	chunk := make([]types.Reading, 0, exportChunk)
	for cur.Next() {
		chunk = append(chunk, cur.Reading())
		if len(chunk) < exportChunk {
			continue
		}
		if err := w.Write(chunk); err != nil {
			return err
		}
		chunk = chunk[:0]

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return w.Write(chunk)
}

const exportChunk = 4096

// =============================================================================
// Statistics
// =============================================================================

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		Backend:   s.config.Backend,
		Uptime:    time.Since(s.startTime),
		Ingestion: s.pipeline.Stats(),
		Query:     s.executor.Stats(),
	}
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Backend   string
	Uptime    time.Duration
	Ingestion ingestion.PipelineStats
	Query     query.ExecutorStats
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}
