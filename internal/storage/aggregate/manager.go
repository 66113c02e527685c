package aggregate

import (
	"sort"
	"sync"

	"github.com/xtxerr/airq/internal/storage/types"
)

// Grouper buckets readings by interval key and accumulates every requested
// field per bucket. With IntervalNone all readings fall into one bucket
// whose key is empty.
type Grouper struct {
	mu sync.RWMutex

	// Configuration
	interval types.Interval
	fields   []types.Field
	accuracy float64

	// Active groups: interval key -> one accumulator per field
	groups map[string][]*Accumulator

	// Statistics
	stats GrouperStats
}

// GrouperStats holds statistics for the grouper.
type GrouperStats struct {
	Groups            int64
	ReadingsProcessed int64
	ValuesProcessed   int64
}

// NewGrouper creates a grouper without quantile support.
func NewGrouper(interval types.Interval, fields []types.Field) *Grouper {
	return &Grouper{
		interval: interval,
		fields:   fields,
		groups:   make(map[string][]*Accumulator),
	}
}

// NewGrouperWithAccuracy creates a grouper keeping a DDSketch per field and
// bucket.
func NewGrouperWithAccuracy(interval types.Interval, fields []types.Field, accuracy float64) (*Grouper, error) {
	// Validate accuracy once up front; every group uses the same setting.
	if _, err := NewWithAccuracy(accuracy); err != nil {
		return nil, err
	}

	g := NewGrouper(interval, fields)
	g.accuracy = accuracy
	return g, nil
}

// Process adds one reading. Missing field values are ignored, so the count
// of a field is the number of readings that carry it.
func (g *Grouper) Process(r types.Reading) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := g.key(r)
	accs, exists := g.groups[key]
	if !exists {
		accs = g.createGroup()
		g.groups[key] = accs
		g.stats.Groups++
	}

	for i, f := range g.fields {
		if v, ok := r.Get(f); ok {
			accs[i].Add(v)
			g.stats.ValuesProcessed++
		}
	}
	g.stats.ReadingsProcessed++
}

// ProcessBatch processes multiple readings.
func (g *Grouper) ProcessBatch(readings []types.Reading) {
	for i := range readings {
		g.Process(readings[i])
	}
}

// Keys returns the bucket keys in ascending order.
func (g *Grouper) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.groups))
	for k := range g.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Buckets reduces every bucket with r, ordered by key.
func (g *Grouper) Buckets(r types.Reducer) []types.Bucket {
	keys := g.Keys()

	g.mu.RLock()
	defer g.mu.RUnlock()

	buckets := make([]types.Bucket, 0, len(keys))
	for _, k := range keys {
		accs := g.groups[k]
		b := types.Bucket{Interval: k, Values: make([]types.FieldAggregate, len(g.fields))}
		for i, f := range g.fields {
			b.Values[i] = accs[i].Aggregate(f, r)
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// Distributions returns the per-field distributions of every bucket,
// ordered by key. Fields without values are omitted.
func (g *Grouper) Distributions(quantiles []float64) []types.DistributionBucket {
	keys := g.Keys()

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]types.DistributionBucket, 0, len(keys))
	for _, k := range keys {
		accs := g.groups[k]
		db := types.DistributionBucket{Interval: k}
		for i, f := range g.fields {
			if accs[i].IsEmpty() {
				continue
			}
			db.Distributions = append(db.Distributions, accs[i].Distribution(f, quantiles))
		}
		out = append(out, db)
	}
	return out
}

// Stats returns current statistics.
func (g *Grouper) Stats() GrouperStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats
}

// key formats the bucket key of a reading.
func (g *Grouper) key(r types.Reading) string {
	if g.interval == types.IntervalNone {
		return ""
	}
	return r.Timestamp.Format(g.interval.GoLayout())
}

// createGroup creates accumulators with the grouper's settings.
func (g *Grouper) createGroup() []*Accumulator {
	accs := make([]*Accumulator, len(g.fields))
	for i := range accs {
		if g.accuracy > 0 {
			// Accuracy was validated by NewGrouperWithAccuracy.
			accs[i], _ = NewWithAccuracy(g.accuracy)
		} else {
			accs[i] = New()
		}
	}
	return accs
}
