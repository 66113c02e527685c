// Package query plans and executes analytical queries over stored readings.
//
// The Planner turns a Spec into a Plan: a store-agnostic description of a
// match stage (time range), the projected fields, an optional grouping key
// and one reducer. The Executor hands the plan to a Store, which filters,
// groups and reduces with its own engine, and shapes the raw output.
package query

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/airq/config"
	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/types"
	"github.com/xtxerr/airq/internal/validation"
)

// Kind is the kind of a query.
type Kind int

const (
	KindRange Kind = iota + 1
	KindSeries
	KindSummary
	KindPercentiles
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindSeries:
		return "series"
	case KindSummary:
		return "summary"
	case KindPercentiles:
		return "percentiles"
	default:
		return "unknown"
	}
}

// Spec is a caller's request. Names are validated by the Planner.
type Spec struct {
	Kind  Kind
	Range types.TimeRange

	// Parameter is a single field name. Empty selects all fields; series
	// queries require it.
	Parameter string

	// Interval buckets series and percentile queries. Series default to daily.
	Interval string

	// Reducer defaults to sum for series and avg for summaries.
	Reducer string

	// Quantiles for percentile queries. Empty uses the defaults.
	Quantiles []float64

	// Limit caps range results. Zero uses the planner's limit.
	Limit int
}

// Plan is the store-level form of a Spec.
type Plan struct {
	Kind Kind

	// Match is the inclusive time filter. A zero range matches everything.
	Match types.TimeRange

	// Fields are the projected or reduced fields, in descriptor order.
	Fields []types.Field

	// Interval is the grouping key. IntervalNone is a single implicit bucket.
	Interval types.Interval

	// Reducer is applied to every field independently.
	Reducer types.Reducer

	Quantiles []float64

	// Limit caps range results. Zero is unlimited.
	Limit int

	// AllowDiskUse lets the store spill intermediate state.
	AllowDiskUse bool
}

// Grouped reports whether the plan has a grouping key.
func (p *Plan) Grouped() bool {
	return p.Interval != types.IntervalNone
}

// Stage is one step of a plan, for display.
type Stage struct {
	Op     string
	Detail string
}

// Stages describes the plan as match, group, sort and project steps.
func (p *Plan) Stages() []Stage {
	stages := []Stage{{Op: "match", Detail: describeRange(p.Match)}}

	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.String()
	}
	fields := strings.Join(names, ",")

	switch p.Kind {
	case KindRange:
		stages = append(stages, Stage{Op: "sort", Detail: "timestamp asc"})
		if p.Limit > 0 {
			stages = append(stages, Stage{Op: "limit", Detail: fmt.Sprint(p.Limit)})
		}
	case KindSeries, KindSummary:
		key := "null"
		if p.Grouped() {
			key = p.Interval.Layout()
		}
		stages = append(stages,
			Stage{Op: "group", Detail: fmt.Sprintf("key=%s %s(%s) count(%s)", key, p.Reducer, fields, fields)})
		if p.Grouped() {
			stages = append(stages, Stage{Op: "sort", Detail: "key asc"})
		}
		stages = append(stages, Stage{Op: "project", Detail: "drop id, key->interval"})
	case KindPercentiles:
		stages = append(stages,
			Stage{Op: "sketch", Detail: fmt.Sprintf("key=%s quantiles%v (%s)", p.Interval.Layout(), p.Quantiles, fields)})
	}
	return stages
}

// String renders the stages on one line.
func (p *Plan) String() string {
	stages := p.Stages()
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = s.Op + " " + s.Detail
	}
	return strings.Join(parts, " | ")
}

func describeRange(r types.TimeRange) string {
	if r.IsZero() {
		return "all"
	}
	from, to := "*", "*"
	if r.From != nil {
		from = r.From.Format(time.RFC3339Nano)
	}
	if r.To != nil {
		to = r.To.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("timestamp in [%s, %s]", from, to)
}

// PlannerOptions configures a Planner.
type PlannerOptions struct {
	// MaxRows caps range results when the spec sets no limit.
	MaxRows int

	// AllowDiskUse is copied into every plan.
	AllowDiskUse bool
}

// Planner validates specs and builds plans. It holds no per-query state.
type Planner struct {
	opts PlannerOptions
}

// NewPlanner creates a planner.
func NewPlanner(opts PlannerOptions) *Planner {
	return &Planner{opts: opts}
}

// Plan validates spec and builds its plan. Invalid names and bounds are
// rejected here, before any store call.
func (pl *Planner) Plan(spec Spec) (*Plan, error) {
	verrs := errors.NewValidationErrors()

	plan := &Plan{
		Kind:         spec.Kind,
		Match:        spec.Range,
		AllowDiskUse: pl.opts.AllowDiskUse,
	}

	verrs.Add(validation.ValidateRange(spec.Range))

	fields, err := pl.fields(spec)
	verrs.Add(err)
	plan.Fields = fields

	switch spec.Kind {
	case KindRange:
		plan.Fields = types.AllFields()
		plan.Limit = spec.Limit
		if plan.Limit <= 0 {
			plan.Limit = pl.opts.MaxRows
		}

	case KindSeries:
		plan.Interval, err = validation.ParseInterval(cmp.Or(strings.TrimSpace(spec.Interval), config.DefaultInterval), types.IntervalNone)
		verrs.Add(err)
		plan.Reducer, err = validation.ParseReducer(cmp.Or(strings.TrimSpace(spec.Reducer), config.DefaultSeriesReducer), types.ReducerNone)
		verrs.Add(err)

	case KindSummary:
		plan.Reducer, err = validation.ParseSummaryReducer(cmp.Or(strings.TrimSpace(spec.Reducer), config.DefaultSummaryReducer), types.ReducerNone)
		verrs.Add(err)

	case KindPercentiles:
		plan.Interval, err = validation.ParseInterval(spec.Interval, types.IntervalNone)
		verrs.Add(err)
		plan.Quantiles = spec.Quantiles
		if len(plan.Quantiles) == 0 {
			plan.Quantiles = append([]float64(nil), validation.DefaultQuantiles...)
		}
		verrs.Add(validation.ValidateQuantiles(plan.Quantiles))

	default:
		return nil, fmt.Errorf("%w: unknown query kind %d", errors.ErrInvalidParameter, spec.Kind)
	}

	if err := verrs.Err(); err != nil {
		return nil, err
	}
	return plan, nil
}

// fields resolves the parameter of spec.
func (pl *Planner) fields(spec Spec) ([]types.Field, error) {
	if spec.Parameter == "" {
		if spec.Kind == KindSeries {
			return nil, errors.NewMissingField("parameter")
		}
		return types.AllFields(), nil
	}

	f, err := validation.ValidateParameter(spec.Parameter)
	if err != nil {
		return nil, err
	}
	return []types.Field{f}, nil
}
