// Package parser turns raw delimited rows into typed readings.
//
// Only the date is mandatory. Time-of-day components that are missing or
// malformed default to zero, and any field whose text is empty, non-numeric
// or equal to the missing-value sentinel becomes an absent value.
package parser

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/types"
)

const (
	// DateColumn is the header of the DD/MM/YYYY column.
	DateColumn = "Date"

	// TimeColumn is the header of the HH:MM:SS column.
	TimeColumn = "Time"

	// DefaultSentinel marks a missing measurement in the source dataset.
	DefaultSentinel = -200
)

// Parser converts rows keyed by header name into readings.
type Parser struct {
	// Sentinel, when non-nil, is treated as a missing value.
	Sentinel *float64
}

// New creates a parser using DefaultSentinel.
func New() *Parser {
	s := float64(DefaultSentinel)
	return &Parser{Sentinel: &s}
}

// NewWithSentinel creates a parser with a custom sentinel; nil disables it.
func NewWithSentinel(sentinel *float64) *Parser {
	return &Parser{Sentinel: sentinel}
}

// Parse converts one row into a Reading. The only failure is an
// unparseable date, reported as *errors.RowError wrapping ErrInvalidDate.
func (p *Parser) Parse(row map[string]string) (types.Reading, error) {
	rawDate := row[DateColumn]
	date, err := ParseDate(rawDate)
	if err != nil {
		return types.Reading{}, errors.NewRowError(DateColumn, rawDate, err)
	}

	clock := strings.TrimSpace(row[TimeColumn])
	h, m, s := ParseTime(clock)

	r := types.Reading{
		Timestamp: date.Add(time.Duration(h)*time.Hour +
			time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second),
		Clock: clock,
	}

	for _, d := range types.Fields() {
		v, ok := ParseNumber(row[d.Header])
		if !ok || p.isSentinel(v) {
			continue
		}
		r.Values[d.Field] = types.Some(v)
	}

	return r, nil
}

func (p *Parser) isSentinel(v float64) bool {
	return p.Sentinel != nil && v == *p.Sentinel
}

// ParseDate parses a DD/MM/YYYY date at midnight UTC.
// Dates that do not exist on the calendar (31/04, 29/02 in a common year,
// month 13) are rejected instead of being rolled over.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.Wrap(errors.ErrInvalidDate, "empty date")
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, errors.ErrInvalidDate
	}

	day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	year, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, errors.ErrInvalidDate
	}

	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, errors.ErrInvalidDate
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, errors.ErrInvalidDate
	}

	return t, nil
}

// ParseTime parses HH:MM:SS or HH.MM.SS. Each component that is missing,
// non-numeric or out of range is returned as zero.
func ParseTime(s string) (hour, minute, second int) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", ".")
	if s == "" {
		return 0, 0, 0
	}

	parts := strings.Split(s, ".")
	limits := [3]int{24, 60, 60}
	var out [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n >= limits[i] {
			continue
		}
		out[i] = n
	}

	return out[0], out[1], out[2]
}

// ParseNumber parses a decimal number written with either a decimal point
// or a decimal comma. It returns false for empty, non-numeric and
// non-finite input.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}
