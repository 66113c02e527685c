// Package aggregate reduces readings in memory.
//
// An Accumulator keeps running statistics of one field and, optionally, a
// DDSketch for quantile estimates. A Grouper buckets readings by interval key
// and feeds one Accumulator per field and bucket.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/airq/internal/storage/types"
)

// Accumulator maintains running statistics for a single field.
// It supports optional quantile estimation using DDSketch.
type Accumulator struct {
	mu sync.Mutex

	// Running statistics
	count int64
	sum   float64
	min   float64
	max   float64

	// DDSketch for quantiles (nil if disabled)
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// New creates an Accumulator without quantile support.
func New() *Accumulator {
	return &Accumulator{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
}

// NewWithAccuracy creates an Accumulator whose quantile estimates have the
// given relative accuracy.
func NewWithAccuracy(accuracy float64) (*Accumulator, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, err
	}

	return &Accumulator{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		sketch:   sketch,
		accuracy: accuracy,
	}, nil
}

// Add adds a value.
func (a *Accumulator) Add(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		// Add only fails for values outside the indexable range.
		_ = a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *Accumulator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty returns true if no values have been added.
func (a *Accumulator) IsEmpty() bool {
	return a.Count() == 0
}

// Reduce applies r to the values added so far. It reports false when no
// value was added or r is not a reducer.
func (a *Accumulator) Reduce(r types.Reducer) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return 0, false
	}

	switch r {
	case types.ReducerSum:
		return a.sum, true
	case types.ReducerAvg:
		return a.sum / float64(a.count), true
	case types.ReducerMin:
		return a.min, true
	case types.ReducerMax:
		return a.max, true
	default:
		return 0, false
	}
}

// Aggregate returns the reduced value of field f.
func (a *Accumulator) Aggregate(f types.Field, r types.Reducer) types.FieldAggregate {
	v, ok := a.Reduce(r)
	return types.FieldAggregate{
		Field: f,
		Value: v,
		Valid: ok,
		Count: a.Count(),
	}
}

// Distribution returns the statistics of field f with the requested
// quantile estimates. Quantiles are omitted when the sketch is disabled
// or empty.
func (a *Accumulator) Distribution(f types.Field, quantiles []float64) types.Distribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := types.Distribution{Field: f, Count: a.count}
	if a.count == 0 {
		return d
	}

	d.Mean = a.sum / float64(a.count)
	d.Min = a.min
	d.Max = a.max

	if a.sketch == nil || len(quantiles) == 0 {
		return d
	}

	values, err := a.sketch.GetValuesAtQuantiles(quantiles)
	if err != nil {
		return d
	}

	d.Quantiles = make([]types.Quantile, len(quantiles))
	for i, q := range quantiles {
		// Sketch estimates may fall slightly outside the observed range.
		d.Quantiles[i] = types.Quantile{Q: q, Value: clamp(values[i], a.min, a.max)}
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
