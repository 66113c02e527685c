// Package validation provides centralized input validation for airq queries.
//
// Every check runs before a plan is built, so a rejected request never
// reaches the store. Errors wrap the sentinels in internal/errors and are
// classified by errors.IsValidation.
package validation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/types"
)

// =============================================================================
// Parameter Validation
// =============================================================================

// ValidateParameter resolves a field name. Identity, timekeeping and audit
// columns are not parameters.
func ValidateParameter(name string) (types.Field, error) {
	if strings.TrimSpace(name) == "" {
		return 0, errors.NewMissingField("parameter")
	}

	f, ok := types.LookupField(name)
	if !ok {
		return 0, errors.NewInvalidParameter(name)
	}
	return f, nil
}

// ValidParameters returns the parameter names accepted by ValidateParameter.
func ValidParameters() []string {
	return types.FieldNames()
}

// =============================================================================
// Interval and Reducer Validation
// =============================================================================

// ParseInterval parses an interval name, using def when s is empty.
func ParseInterval(s string, def types.Interval) (types.Interval, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}

	iv, ok := types.ParseInterval(s)
	if !ok || iv == types.IntervalNone {
		return types.IntervalNone, errors.NewInvalidValue(errors.ErrInvalidInterval, "interval", s,
			"must be one of: hourly, daily, monthly, yearly")
	}
	return iv, nil
}

// ParseReducer parses a reducer name, using def when s is empty.
func ParseReducer(s string, def types.Reducer) (types.Reducer, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}

	r, ok := types.ParseReducer(s)
	if !ok {
		return types.ReducerNone, errors.NewInvalidValue(errors.ErrInvalidReducer, "reducer", s,
			"must be one of: sum, avg, min, max")
	}
	return r, nil
}

// ParseSummaryReducer parses a summary reducer, using def when s is empty.
// Summaries accept avg, min and max.
func ParseSummaryReducer(s string, def types.Reducer) (types.Reducer, error) {
	r, err := ParseReducer(s, def)
	if err != nil {
		return r, err
	}
	if r == types.ReducerSum {
		return types.ReducerNone, errors.NewInvalidValue(errors.ErrInvalidReducer, "reducer", s,
			"summary must be one of: avg, min, max")
	}
	return r, nil
}

// =============================================================================
// Range Bound Validation
// =============================================================================

// boundLayouts are tried in order. The last one is a calendar date.
var boundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

const dateLayout = "2006-01-02"

// ParseBound parses one range bound. An empty string yields nil.
//
// Timestamps are wall-clock values kept in UTC; a bound with an offset is
// converted to UTC. When upper is set, a date-only bound is moved to the
// last instant of that day so the whole day is included.
func ParseBound(name, s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	for _, layout := range boundLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = t.UTC()
		if layout == dateLayout && upper {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &t, nil
	}

	return nil, errors.NewInvalidValue(errors.ErrInvalidBound, name, s,
		"expected RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'")
}

// ParseRange parses optional from/to bounds into an inclusive range.
func ParseRange(from, to string) (types.TimeRange, error) {
	verrs := errors.NewValidationErrors()

	f, err := ParseBound("from", from, false)
	verrs.Add(err)
	t, err := ParseBound("to", to, true)
	verrs.Add(err)

	if err := verrs.Err(); err != nil {
		return types.TimeRange{}, err
	}

	tr := types.TimeRange{From: f, To: t}
	if err := ValidateRange(tr); err != nil {
		return types.TimeRange{}, err
	}
	return tr, nil
}

// ParseRequiredRange parses from/to bounds that must both be present.
func ParseRequiredRange(from, to string) (types.TimeRange, error) {
	verrs := errors.NewValidationErrors()
	if strings.TrimSpace(from) == "" {
		verrs.AddMissing("from")
	}
	if strings.TrimSpace(to) == "" {
		verrs.AddMissing("to")
	}
	if err := verrs.Err(); err != nil {
		return types.TimeRange{}, err
	}
	return ParseRange(from, to)
}

// ValidateRange rejects a range whose lower bound is after its upper bound.
func ValidateRange(tr types.TimeRange) error {
	if tr.From != nil && tr.To != nil && tr.From.After(*tr.To) {
		return fmt.Errorf("%w: from %s is after to %s", errors.ErrInvalidRange,
			tr.From.Format(time.RFC3339), tr.To.Format(time.RFC3339))
	}
	return nil
}

// =============================================================================
// Quantile Validation
// =============================================================================

// DefaultQuantiles are reported when no quantiles are requested.
var DefaultQuantiles = []float64{0.5, 0.9, 0.95, 0.99}

// ValidateQuantile checks that q lies in [0, 1].
func ValidateQuantile(q float64) error {
	if math.IsNaN(q) || q < 0 || q > 1 {
		return errors.NewInvalidValue(errors.ErrInvalidQuantile, "quantile", q, "must be between 0 and 1")
	}
	return nil
}

// ParseQuantiles parses a comma separated list such as "0.5,0.9".
// The result is sorted and free of duplicates. An empty list yields
// DefaultQuantiles.
func ParseQuantiles(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return append([]float64(nil), DefaultQuantiles...), nil
	}

	seen := make(map[float64]bool)
	var qs []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, errors.NewInvalidValue(errors.ErrInvalidQuantile, "quantile", part, "not a number")
		}
		if err := ValidateQuantile(q); err != nil {
			return nil, err
		}
		if !seen[q] {
			seen[q] = true
			qs = append(qs, q)
		}
	}

	if len(qs) == 0 {
		return nil, errors.NewInvalidValue(errors.ErrInvalidQuantile, "quantiles", s, "no quantiles given")
	}
	sort.Float64s(qs)
	return qs, nil
}

// ValidateQuantiles validates already parsed quantiles.
func ValidateQuantiles(qs []float64) error {
	verrs := errors.NewValidationErrors()
	for _, q := range qs {
		verrs.Add(ValidateQuantile(q))
	}
	return verrs.Err()
}
