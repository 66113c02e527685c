package types

import "time"

// Value is an optional measurement. A missing value is never zero.
type Value struct {
	Float float64
	Valid bool
}

// Some returns a present value.
func Some(v float64) Value {
	return Value{Float: v, Valid: true}
}

// Ptr returns the value as a pointer, nil when missing.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float
	return &f
}

// ValueFromPtr converts a nullable pointer into a Value.
func ValueFromPtr(p *float64) Value {
	if p == nil {
		return Value{}
	}
	return Some(*p)
}

// Reading represents one sensor sample.
// Readings are immutable once parsed; corrections are new readings.
type Reading struct {
	// Timestamp is the combined date and time of day. It is a naive
	// wall-clock value and always carries time.UTC as its location.
	Timestamp time.Time

	// Clock is the raw time-of-day text from the source row.
	Clock string

	Values [NumFields]Value
}

// Get returns the value of field f.
func (r *Reading) Get(f Field) (float64, bool) {
	if !f.Valid() {
		return 0, false
	}
	v := r.Values[f]
	return v.Float, v.Valid
}

// Present returns the number of fields with a value.
func (r *Reading) Present() int {
	n := 0
	for _, v := range r.Values {
		if v.Valid {
			n++
		}
	}
	return n
}

// TimeRange is an optional inclusive range over reading timestamps.
// A nil bound leaves that side open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// IsZero reports whether the range matches every reading.
func (r TimeRange) IsZero() bool {
	return r.From == nil && r.To == nil
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}
