package types

import (
	"sort"
	"testing"
	"time"
)

func TestLookupField(t *testing.T) {
	tests := []struct {
		name  string
		want  Field
		found bool
	}{
		{"CO", FieldCO, true},
		{"CO(GT)", FieldCO, true},
		{" PT08.S5(O3) ", FieldPT08S5, true},
		{"PT08S3", FieldPT08S3, true},
		{"NOx", FieldNOx, true},
		{"nox", 0, false},
		{"Date", 0, false},
		{"Time", 0, false},
		{"_id", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupField(tt.name)
			if ok != tt.found {
				t.Fatalf("LookupField(%q) found = %v, want %v", tt.name, ok, tt.found)
			}
			if ok && got != tt.want {
				t.Errorf("LookupField(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestFieldDescriptors(t *testing.T) {
	descs := Fields()
	if len(descs) != 13 {
		t.Fatalf("expected 13 fields, got %d", len(descs))
	}

	seenNames := make(map[string]bool)
	seenColumns := make(map[string]bool)
	for i, d := range descs {
		if int(d.Field) != i {
			t.Errorf("descriptor %d has field %d", i, d.Field)
		}
		if seenNames[d.Name] {
			t.Errorf("duplicate name %s", d.Name)
		}
		if seenColumns[d.Column] {
			t.Errorf("duplicate column %s", d.Column)
		}
		seenNames[d.Name] = true
		seenColumns[d.Column] = true

		if d.Header == "" {
			t.Errorf("field %s has no header", d.Name)
		}
	}

	// Fields returns a copy
	descs[0].Name = "changed"
	if FieldCO.String() != "CO" {
		t.Errorf("expected CO, got %s", FieldCO.String())
	}
}

func TestFieldInvalid(t *testing.T) {
	f := Field(NumFields)
	if f.Valid() {
		t.Error("out of range field should not be valid")
	}
	if f.String() != "unknown" {
		t.Errorf("expected unknown, got %s", f.String())
	}

	var r Reading
	if _, ok := r.Get(f); ok {
		t.Error("Get on invalid field should report missing")
	}
}

func TestReadingValues(t *testing.T) {
	var r Reading
	r.Values[FieldCO] = Some(2.6)
	r.Values[FieldT] = Some(0)

	if v, ok := r.Get(FieldCO); !ok || v != 2.6 {
		t.Errorf("expected CO=2.6, got %v (%v)", v, ok)
	}
	if v, ok := r.Get(FieldT); !ok || v != 0 {
		t.Errorf("expected T=0 present, got %v (%v)", v, ok)
	}
	if _, ok := r.Get(FieldNO2); ok {
		t.Error("NO2 should be missing")
	}
	if r.Present() != 2 {
		t.Errorf("expected 2 present values, got %d", r.Present())
	}
}

func TestValuePtr(t *testing.T) {
	if (Value{}).Ptr() != nil {
		t.Error("missing value should convert to nil")
	}
	p := Some(1.5).Ptr()
	if p == nil || *p != 1.5 {
		t.Errorf("expected 1.5, got %v", p)
	}
	if v := ValueFromPtr(nil); v.Valid {
		t.Error("nil pointer should convert to missing value")
	}
	if v := ValueFromPtr(p); !v.Valid || v.Float != 1.5 {
		t.Errorf("expected 1.5, got %+v", v)
	}
}

func TestTimeRange(t *testing.T) {
	from := time.Date(2004, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2004, 3, 10, 23, 59, 59, 0, time.UTC)

	r := TimeRange{From: &from, To: &to}
	if r.IsZero() {
		t.Error("bounded range should not be zero")
	}
	if !r.Contains(from) || !r.Contains(to) {
		t.Error("bounds should be inclusive")
	}
	if r.Contains(from.Add(-time.Second)) {
		t.Error("before From should not be contained")
	}
	if r.Contains(to.Add(time.Second)) {
		t.Error("after To should not be contained")
	}

	open := TimeRange{From: &from}
	if !open.Contains(to.AddDate(10, 0, 0)) {
		t.Error("open upper bound should contain later times")
	}
	if !(TimeRange{}).IsZero() {
		t.Error("empty range should be zero")
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want Interval
		ok   bool
	}{
		{"", IntervalNone, true},
		{"hourly", IntervalHourly, true},
		{"Daily", IntervalDaily, true},
		{"monthly", IntervalMonthly, true},
		{" yearly ", IntervalYearly, true},
		{"weekly", IntervalNone, false},
	}

	for _, tt := range tests {
		got, ok := ParseInterval(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseInterval(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseReducer(t *testing.T) {
	for _, name := range []string{"sum", "avg", "min", "max"} {
		r, ok := ParseReducer(name)
		if !ok {
			t.Errorf("ParseReducer(%q) failed", name)
			continue
		}
		if r.String() != name {
			t.Errorf("round trip: expected %s, got %s", name, r.String())
		}
	}
	if _, ok := ParseReducer("median"); ok {
		t.Error("median should not parse")
	}
}

func TestIntervalKeysSortChronologically(t *testing.T) {
	times := []time.Time{
		time.Date(2004, 12, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2004, 3, 10, 18, 0, 0, 0, time.UTC),
		time.Date(2005, 1, 2, 3, 0, 0, 0, time.UTC),
		time.Date(2004, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	for _, iv := range []Interval{IntervalHourly, IntervalDaily, IntervalMonthly, IntervalYearly} {
		keys := make([]string, len(times))
		for i, ts := range times {
			keys[i] = ts.Format(iv.GoLayout())
		}
		sort.Strings(keys)

		sorted := append([]time.Time(nil), times...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		for i, ts := range sorted {
			if keys[i] != ts.Format(iv.GoLayout()) {
				t.Errorf("%s: key %d = %s, want %s", iv, i, keys[i], ts.Format(iv.GoLayout()))
			}
		}
	}

	if got := time.Date(2004, 3, 10, 18, 0, 0, 0, time.UTC).Format(IntervalHourly.GoLayout()); got != "2004-03-10:18" {
		t.Errorf("expected 2004-03-10:18, got %s", got)
	}
}

func TestBucketGet(t *testing.T) {
	b := Bucket{
		Interval: "2004-03",
		Values: []FieldAggregate{
			{Field: FieldCO, Value: 5.2, Valid: true, Count: 2},
		},
	}

	if v, ok := b.Get(FieldCO); !ok || v.Count != 2 {
		t.Errorf("expected CO aggregate with count 2, got %+v (%v)", v, ok)
	}
	if _, ok := b.Get(FieldNO2); ok {
		t.Error("NO2 should not be present")
	}
}
