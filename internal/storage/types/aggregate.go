package types

import "strings"

// Interval is the granularity of a time-series bucket.
type Interval int

const (
	IntervalNone Interval = iota
	IntervalHourly
	IntervalDaily
	IntervalMonthly
	IntervalYearly
)

// String returns the interval name used in queries.
func (i Interval) String() string {
	switch i {
	case IntervalHourly:
		return "hourly"
	case IntervalDaily:
		return "daily"
	case IntervalMonthly:
		return "monthly"
	case IntervalYearly:
		return "yearly"
	default:
		return "none"
	}
}

// Layout returns the strftime layout of the bucket key. Keys are zero-padded
// and most-significant-unit first, so lexical order is chronological order.
func (i Interval) Layout() string {
	switch i {
	case IntervalHourly:
		return "%Y-%m-%d:%H"
	case IntervalDaily:
		return "%Y-%m-%d"
	case IntervalMonthly:
		return "%Y-%m"
	case IntervalYearly:
		return "%Y"
	default:
		return ""
	}
}

// GoLayout returns the equivalent time.Format layout of Layout.
func (i Interval) GoLayout() string {
	switch i {
	case IntervalHourly:
		return "2006-01-02:15"
	case IntervalDaily:
		return "2006-01-02"
	case IntervalMonthly:
		return "2006-01"
	case IntervalYearly:
		return "2006"
	default:
		return ""
	}
}

// ParseInterval parses an interval name. The empty string yields IntervalNone.
func ParseInterval(s string) (Interval, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return IntervalNone, true
	case "hourly":
		return IntervalHourly, true
	case "daily":
		return IntervalDaily, true
	case "monthly":
		return IntervalMonthly, true
	case "yearly":
		return IntervalYearly, true
	default:
		return IntervalNone, false
	}
}

// Reducer is the aggregation function applied to a field.
type Reducer int

const (
	ReducerNone Reducer = iota
	ReducerSum
	ReducerAvg
	ReducerMin
	ReducerMax
)

// String returns the reducer name used in queries.
func (r Reducer) String() string {
	switch r {
	case ReducerSum:
		return "sum"
	case ReducerAvg:
		return "avg"
	case ReducerMin:
		return "min"
	case ReducerMax:
		return "max"
	default:
		return "none"
	}
}

// ParseReducer parses a reducer name. The empty string yields ReducerNone.
func ParseReducer(s string) (Reducer, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ReducerNone, true
	case "sum":
		return ReducerSum, true
	case "avg":
		return ReducerAvg, true
	case "min":
		return ReducerMin, true
	case "max":
		return ReducerMax, true
	default:
		return ReducerNone, false
	}
}

// FieldAggregate is the reduced value of one field within a bucket.
// Count is the number of readings with a value for the field; when it is
// zero the value is not valid.
type FieldAggregate struct {
	Field Field
	Value float64
	Valid bool
	Count int64
}

// Bucket is one time-series group.
type Bucket struct {
	// Interval is the formatted bucket key, e.g. "2004-03".
	Interval string
	Values   []FieldAggregate
}

// Get returns the aggregate of field f in the bucket.
func (b *Bucket) Get(f Field) (FieldAggregate, bool) {
	for _, v := range b.Values {
		if v.Field == f {
			return v, true
		}
	}
	return FieldAggregate{}, false
}

// Summary maps field names to their reduced value over the whole match.
// Fields with no values are absent; an empty match is an empty map.
type Summary map[string]float64

// Quantile is one estimated quantile of a field.
type Quantile struct {
	Q     float64
	Value float64
}

// Distribution is the estimated distribution of one field.
type Distribution struct {
	Field     Field
	Count     int64
	Mean      float64
	Min       float64
	Max       float64
	Quantiles []Quantile
}

// DistributionBucket holds the distributions of one time-series bucket.
// Interval is empty when the query was not bucketed.
type DistributionBucket struct {
	Interval      string
	Distributions []Distribution
}
