// Package ingestion streams delimited sensor files into a store.
//
// A Pipeline pulls rows one at a time, parses them into readings and
// accumulates a bounded batch. When the batch is full it is persisted with
// a single blocking Writer call; no further rows are read until that call
// returns. Rows that fail to parse and records the store rejects are counted
// and skipped. Only a failure to read the source is fatal.
package ingestion

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xtxerr/airq/config"
	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/logging"
	"github.com/xtxerr/airq/internal/metrics"
	"github.com/xtxerr/airq/internal/storage/parser"
	"github.com/xtxerr/airq/internal/storage/source"
	"github.com/xtxerr/airq/internal/storage/types"
)

// Writer persists batches of readings.
//
// InsertMany is best-effort: records the store rejects do not prevent the
// others from being stored. A partial failure is reported as a
// *errors.BulkError carrying the inserted count. The batch slice is reused
// after InsertMany returns and must not be retained.
type Writer interface {
	InsertMany(ctx context.Context, readings []types.Reading) (int, error)
}

// ReadingIterator yields already parsed readings, e.g. from an archive.
type ReadingIterator interface {
	Next() bool
	Reading() types.Reading
	Err() error
}

// Options configures a Pipeline.
type Options struct {
	// BatchSize is the number of readings per flush.
	BatchSize int

	// FlushTimeout bounds each InsertMany call. Zero disables the bound.
	FlushTimeout time.Duration

	// Parser converts rows to readings. Nil uses parser.New().
	Parser *parser.Parser

	// Logger overrides the component logger.
	Logger *slog.Logger
}

// Report summarizes one ingestion stream.
type Report struct {
	Source        string
	Rows          int64
	Valid         int64
	Skipped       int64
	Inserted      int64
	Rejected      int64
	Batches       int64
	FailedBatches int64
	Elapsed       time.Duration
}

// Pipeline ingests streams into a Writer. It is safe for concurrent use;
// every Ingest call owns its own batch.
type Pipeline struct {
	writer       Writer
	parser       *parser.Parser
	batchSize    int
	flushTimeout time.Duration
	logger       *slog.Logger

	nextID atomic.Uint64
	stats  Stats
}

// Stats holds lifetime ingestion counters.
type Stats struct {
	Streams       atomic.Int64
	StreamsFailed atomic.Int64
	Rows          atomic.Int64
	Valid         atomic.Int64
	Skipped       atomic.Int64
	Inserted      atomic.Int64
	Rejected      atomic.Int64
	Batches       atomic.Int64
	FailedBatches atomic.Int64
}

// PipelineStats is a snapshot of Stats.
type PipelineStats struct {
	Streams       int64
	StreamsFailed int64
	Rows          int64
	Valid         int64
	Skipped       int64
	Inserted      int64
	Rejected      int64
	Batches       int64
	FailedBatches int64
}

// New creates a pipeline writing to w.
func New(w Writer, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.Parser == nil {
		opts.Parser = parser.New()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("ingestion")
	}

	return &Pipeline{
		writer:       w,
		parser:       opts.Parser,
		batchSize:    opts.BatchSize,
		flushTimeout: opts.FlushTimeout,
		logger:       opts.Logger,
	}
}

// BatchSize returns the configured batch size.
func (p *Pipeline) BatchSize() int {
	return p.batchSize
}

// Ingest consumes a delimited stream until EOF.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader) (Report, error) {
	return p.IngestNamed(ctx, r, "")
}

// IngestNamed consumes a delimited stream, using name in logs and errors.
func (p *Pipeline) IngestNamed(ctx context.Context, r io.Reader, name string) (Report, error) {
	s := p.begin(ctx, name)
	rows := source.NewNamedReader(r, name)

	for rows.Next() {
		if err := s.ctx.Err(); err != nil {
			return s.finish(err)
		}
		s.report.Rows++

		row, err := rows.Row()
		if err != nil {
			s.report.Skipped++
			continue
		}

		reading, err := p.parser.Parse(row)
		if err != nil {
			s.report.Skipped++
			continue
		}

		if err := s.add(reading); err != nil {
			return s.finish(err)
		}
	}

	if err := rows.Err(); err != nil {
		// The pending batch is discarded; a truncated source is not imported
		// as if it had ended normally.
		return s.finish(err)
	}

	if err := s.flush(); err != nil {
		return s.finish(err)
	}
	return s.finish(nil)
}

// IngestReadings batches already parsed readings into the store.
func (p *Pipeline) IngestReadings(ctx context.Context, name string, it ReadingIterator) (Report, error) {
	s := p.begin(ctx, name)

	for it.Next() {
		if err := s.ctx.Err(); err != nil {
			return s.finish(err)
		}
		s.report.Rows++

		if err := s.add(it.Reading()); err != nil {
			return s.finish(err)
		}
	}

	if err := it.Err(); err != nil {
		return s.finish(errors.NewSourceIO(displayName(name), err))
	}

	if err := s.flush(); err != nil {
		return s.finish(err)
	}
	return s.finish(nil)
}

// Stats returns a snapshot of lifetime counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Streams:       p.stats.Streams.Load(),
		StreamsFailed: p.stats.StreamsFailed.Load(),
		Rows:          p.stats.Rows.Load(),
		Valid:         p.stats.Valid.Load(),
		Skipped:       p.stats.Skipped.Load(),
		Inserted:      p.stats.Inserted.Load(),
		Rejected:      p.stats.Rejected.Load(),
		Batches:       p.stats.Batches.Load(),
		FailedBatches: p.stats.FailedBatches.Load(),
	}
}

// stream is the state of one Ingest call.
type stream struct {
	p      *Pipeline
	ctx    context.Context
	log    *slog.Logger
	start  time.Time
	batch  []types.Reading
	report Report
}

func (p *Pipeline) begin(ctx context.Context, name string) *stream {
	id := p.nextID.Add(1)
	ctx = logging.ContextWithIngestID(ctx, id)
	if name != "" {
		ctx = logging.ContextWithSource(ctx, name)
	}

	return &stream{
		p:      p,
		ctx:    ctx,
		log:    logging.FromContext(ctx, p.logger),
		start:  time.Now(),
		batch:  make([]types.Reading, 0, p.batchSize),
		report: Report{Source: name},
	}
}

func (s *stream) add(r types.Reading) error {
	s.report.Valid++
	s.batch = append(s.batch, r)
	if len(s.batch) < s.p.batchSize {
		return nil
	}
	return s.flush()
}

// flush persists the current batch and blocks until the store answers.
// Store failures are recorded, not returned; only cancellation of the
// stream context stops ingestion.
func (s *stream) flush() error {
	n := len(s.batch)
	if n == 0 {
		return nil
	}

	ctx := s.ctx
	if s.p.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.p.flushTimeout)
		defer cancel()
	}

	start := time.Now()
	inserted, err := s.p.writer.InsertMany(ctx, s.batch)
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	s.report.Batches++
	s.batch = s.batch[:0]

	result := metrics.ResultOK
	if err != nil {
		var bulk *errors.BulkError
		if errors.As(err, &bulk) {
			inserted = bulk.Inserted
			result = metrics.ResultPartial
		} else {
			inserted = 0
			result = metrics.ResultFailed
		}
		s.report.FailedBatches++

		s.log.Warn("batch persist failed",
			"batch", s.report.Batches,
			"size", n,
			"inserted", inserted,
			"error", err)
	}
	if inserted < 0 || inserted > n {
		inserted = n
	}

	s.report.Inserted += int64(inserted)
	s.report.Rejected += int64(n - inserted)
	metrics.IngestBatches.WithLabelValues(result).Inc()

	s.log.Debug("batch flushed",
		"batch", s.report.Batches,
		"size", n,
		"inserted", inserted,
		"duration", time.Since(start))

	if cerr := s.ctx.Err(); cerr != nil {
		return cerr
	}
	return nil
}

func (s *stream) finish(err error) (Report, error) {
	s.report.Elapsed = time.Since(s.start)
	r := s.report
	st := &s.p.stats

	st.Streams.Add(1)
	st.Rows.Add(r.Rows)
	st.Valid.Add(r.Valid)
	st.Skipped.Add(r.Skipped)
	st.Inserted.Add(r.Inserted)
	st.Rejected.Add(r.Rejected)
	st.Batches.Add(r.Batches)
	st.FailedBatches.Add(r.FailedBatches)

	metrics.IngestRows.WithLabelValues(metrics.OutcomeValid).Add(float64(r.Valid))
	metrics.IngestRows.WithLabelValues(metrics.OutcomeSkipped).Add(float64(r.Skipped))
	metrics.IngestRows.WithLabelValues(metrics.OutcomeInserted).Add(float64(r.Inserted))
	metrics.IngestRows.WithLabelValues(metrics.OutcomeRejected).Add(float64(r.Rejected))

	if err != nil {
		st.StreamsFailed.Add(1)
		metrics.IngestStreams.WithLabelValues(metrics.ResultFailed).Inc()
		s.log.Error("ingestion failed",
			"rows", r.Rows,
			"inserted", r.Inserted,
			"error", err)
		return r, err
	}

	metrics.IngestStreams.WithLabelValues(metrics.ResultOK).Inc()
	s.log.Info("ingestion complete",
		"rows", r.Rows,
		"valid", r.Valid,
		"skipped", r.Skipped,
		"inserted", r.Inserted,
		"rejected", r.Rejected,
		"batches", r.Batches,
		"failed_batches", r.FailedBatches,
		"elapsed", r.Elapsed)
	return r, nil
}

func displayName(name string) string {
	if name == "" {
		return "stream"
	}
	return name
}
