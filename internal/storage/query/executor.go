package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/xtxerr/airq/config"
	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/logging"
	"github.com/xtxerr/airq/internal/metrics"
	"github.com/xtxerr/airq/internal/storage/aggregate"
	"github.com/xtxerr/airq/internal/storage/types"
)

// Group is one row of grouped store output.
type Group struct {
	// ID is the store's group key: the formatted interval, or empty for the
	// single implicit bucket.
	ID string

	// Values holds one aggregate per plan field, in any order.
	Values []types.FieldAggregate
}

// Cursor iterates readings in timestamp order.
type Cursor interface {
	Next() bool
	Reading() types.Reading
	Err() error
	Close() error
}

// Store is the persistence collaborator queries run against.
type Store interface {
	// Aggregate runs the match, group and reduce stages of plan. Grouped
	// plans return groups sorted by ID.
	Aggregate(ctx context.Context, plan *Plan) ([]Group, error)

	// Find returns the readings matching plan.Match sorted ascending by
	// timestamp, honoring plan.Limit.
	Find(ctx context.Context, plan *Plan) (Cursor, error)
}

// Result is the shaped output of a plan. Only the member of the plan's
// kind is set.
type Result struct {
	Kind          Kind
	Readings      []types.Reading
	Buckets       []types.Bucket
	Summary       types.Summary
	Distributions []types.DistributionBucket
}

// Len returns the number of result rows.
func (r *Result) Len() int {
	switch r.Kind {
	case KindRange:
		return len(r.Readings)
	case KindSeries:
		return len(r.Buckets)
	case KindSummary:
		return len(r.Summary)
	case KindPercentiles:
		return len(r.Distributions)
	}
	return 0
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Timeout bounds each query. Zero disables the bound.
	Timeout time.Duration

	// PercentileAccuracy is the DDSketch relative accuracy.
	PercentileAccuracy float64

	Logger *slog.Logger
}

// Executor runs plans against a Store. It is stateless per call and safe
// for concurrent use.
type Executor struct {
	store    Store
	timeout  time.Duration
	accuracy float64
	logger   *slog.Logger

	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted atomic.Int64
	RowsReturned    atomic.Int64
	Errors          atomic.Int64
}

// ExecutorStats is a snapshot of Stats.
type ExecutorStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// NewExecutor creates an executor over store.
func NewExecutor(store Store, opts ExecutorOptions) *Executor {
	if opts.PercentileAccuracy <= 0 {
		opts.PercentileAccuracy = config.DefaultPercentileAccuracy
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("query")
	}

	return &Executor{
		store:    store,
		timeout:  opts.Timeout,
		accuracy: opts.PercentileAccuracy,
		logger:   opts.Logger,
	}
}

// Execute runs plan and shapes its output.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	start := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx = logging.ContextWithQueryKind(ctx, plan.Kind.String())

	res := &Result{Kind: plan.Kind}
	var err error

	switch plan.Kind {
	case KindRange:
		res.Readings, err = e.find(ctx, plan)
	case KindSeries:
		res.Buckets, err = e.series(ctx, plan)
	case KindSummary:
		res.Summary, err = e.summary(ctx, plan)
	case KindPercentiles:
		res.Distributions, err = e.percentiles(ctx, plan)
	default:
		err = fmt.Errorf("%w: unknown query kind %d", errors.ErrInvalidParameter, plan.Kind)
	}

	metrics.ObserveQuery(plan.Kind.String(), start, err)
	log := logging.FromContext(ctx, e.logger)

	if err != nil {
		e.stats.Errors.Add(1)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", errors.ErrTimeout, err)
		}
		log.Debug("query failed", "plan", plan.String(), "error", err)
		return nil, err
	}

	e.stats.QueriesExecuted.Add(1)
	e.stats.RowsReturned.Add(int64(res.Len()))

	log.Debug("query executed",
		"interval", plan.Interval.String(),
		"reducer", plan.Reducer.String(),
		"rows", res.Len(),
		"elapsed", time.Since(start))

	return res, nil
}

// Stats returns a snapshot of query statistics.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		QueriesExecuted: e.stats.QueriesExecuted.Load(),
		RowsReturned:    e.stats.RowsReturned.Load(),
		Errors:          e.stats.Errors.Load(),
	}
}

func (e *Executor) find(ctx context.Context, plan *Plan) ([]types.Reading, error) {
	readings := []types.Reading{}
	err := e.scan(ctx, plan, func(r types.Reading) {
		readings = append(readings, r)
	})
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// series shapes grouped output into buckets ordered by key. Every bucket
// carries one aggregate per plan field; fields the store did not report
// are invalid with a zero count.
func (e *Executor) series(ctx context.Context, plan *Plan) ([]types.Bucket, error) {
	groups, err := e.store.Aggregate(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	buckets := make([]types.Bucket, 0, len(groups))
	for _, g := range groups {
		b := types.Bucket{Interval: g.ID, Values: make([]types.FieldAggregate, len(plan.Fields))}
		for i, f := range plan.Fields {
			b.Values[i] = types.FieldAggregate{Field: f}
			for _, v := range g.Values {
				if v.Field == f {
					b.Values[i] = normalize(v)
					break
				}
			}
		}
		buckets = append(buckets, b)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Interval < buckets[j].Interval
	})
	return buckets, nil
}

// summary shapes the single implicit bucket into a field mapping. Fields
// without values are omitted, so an empty match yields an empty map.
func (e *Executor) summary(ctx context.Context, plan *Plan) (types.Summary, error) {
	groups, err := e.store.Aggregate(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	summary := make(types.Summary)
	if len(groups) == 0 {
		return summary, nil
	}
	if len(groups) > 1 {
		return nil, fmt.Errorf("%w: summary returned %d groups", errors.ErrInternal, len(groups))
	}

	for _, v := range groups[0].Values {
		v = normalize(v)
		if v.Valid {
			summary[v.Field.String()] = v.Value
		}
	}
	return summary, nil
}

// percentiles streams matching readings into per-field sketches, so memory
// is bounded by the number of buckets, not the number of readings.
func (e *Executor) percentiles(ctx context.Context, plan *Plan) ([]types.DistributionBucket, error) {
	g, err := aggregate.NewGrouperWithAccuracy(plan.Interval, plan.Fields, e.accuracy)
	if err != nil {
		return nil, fmt.Errorf("%w: percentile accuracy: %w", errors.ErrInvalidConfig, err)
	}

	scan := *plan
	scan.Limit = 0
	if err := e.scan(ctx, &scan, g.Process); err != nil {
		return nil, err
	}

	gs := g.Stats()
	logging.FromContext(ctx, e.logger).Debug("percentile sketches built",
		"readings", gs.ReadingsProcessed,
		"values", gs.ValuesProcessed,
		"buckets", gs.Groups)

	return g.Distributions(plan.Quantiles), nil
}

func (e *Executor) scan(ctx context.Context, plan *Plan, fn func(types.Reading)) error {
	cur, err := e.store.Find(ctx, plan)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	defer cur.Close()

	for cur.Next() {
		fn(cur.Reading())
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	return ctx.Err()
}

// normalize derives validity from the count of contributing values.
func normalize(v types.FieldAggregate) types.FieldAggregate {
	if v.Count <= 0 {
		return types.FieldAggregate{Field: v.Field}
	}
	v.Valid = true
	return v
}
