package aggregate

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/airq/internal/storage/types"
)

func TestAccumulator_Basic(t *testing.T) {
	acc := New()

	if !acc.IsEmpty() {
		t.Error("new accumulator should be empty")
	}
	if _, ok := acc.Reduce(types.ReducerAvg); ok {
		t.Error("empty accumulator should not reduce")
	}

	acc.Add(10.0)
	acc.Add(20.0)
	acc.Add(30.0)

	if acc.Count() != 3 {
		t.Errorf("expected count=3, got %d", acc.Count())
	}

	tests := []struct {
		reducer types.Reducer
		want    float64
	}{
		{types.ReducerSum, 60},
		{types.ReducerAvg, 20},
		{types.ReducerMin, 10},
		{types.ReducerMax, 30},
	}
	for _, tt := range tests {
		got, ok := acc.Reduce(tt.reducer)
		if !ok || math.Abs(got-tt.want) > 0.001 {
			t.Errorf("%s: expected %f, got %f (%v)", tt.reducer, tt.want, got, ok)
		}
	}

	if _, ok := acc.Reduce(types.ReducerNone); ok {
		t.Error("ReducerNone should not reduce")
	}
}

func TestAccumulator_NegativeValues(t *testing.T) {
	acc := New()
	acc.Add(-3.5)
	acc.Add(-1.0)

	if v, _ := acc.Reduce(types.ReducerMax); v != -1.0 {
		t.Errorf("expected max=-1, got %f", v)
	}
	if v, _ := acc.Reduce(types.ReducerMin); v != -3.5 {
		t.Errorf("expected min=-3.5, got %f", v)
	}
}

func TestAccumulator_Aggregate(t *testing.T) {
	acc := New()
	agg := acc.Aggregate(types.FieldCO, types.ReducerSum)
	if agg.Valid || agg.Count != 0 {
		t.Errorf("empty aggregate should be invalid with count 0, got %+v", agg)
	}

	acc.Add(0)
	agg = acc.Aggregate(types.FieldCO, types.ReducerSum)
	if !agg.Valid || agg.Count != 1 || agg.Value != 0 {
		t.Errorf("expected valid zero sum with count 1, got %+v", agg)
	}
}

func TestAccumulator_Distribution(t *testing.T) {
	acc, err := NewWithAccuracy(0.01)
	if err != nil {
		t.Fatalf("NewWithAccuracy: %v", err)
	}

	// Add 100 values: 1, 2, 3, ..., 100
	for i := 1; i <= 100; i++ {
		acc.Add(float64(i))
	}

	d := acc.Distribution(types.FieldNO2, []float64{0.5, 0.95, 0.99})

	if d.Count != 100 || d.Min != 1 || d.Max != 100 {
		t.Errorf("unexpected stats: %+v", d)
	}
	if math.Abs(d.Mean-50.5) > 0.001 {
		t.Errorf("expected mean 50.5, got %f", d.Mean)
	}
	if len(d.Quantiles) != 3 {
		t.Fatalf("expected 3 quantiles, got %d", len(d.Quantiles))
	}

	want := []float64{50, 95, 99}
	for i, q := range d.Quantiles {
		if math.Abs(q.Value-want[i]) > 2.0 {
			t.Errorf("expected p%v near %v, got %f", q.Q*100, want[i], q.Value)
		}
	}
}

func TestAccumulator_DistributionWithoutSketch(t *testing.T) {
	acc := New()
	acc.Add(5)

	d := acc.Distribution(types.FieldT, []float64{0.5})
	if d.Count != 1 || d.Quantiles != nil {
		t.Errorf("expected stats without quantiles, got %+v", d)
	}

	if _, err := NewWithAccuracy(1.5); err == nil {
		t.Error("expected error for accuracy >= 1")
	}
}

func TestAccumulator_Concurrent(t *testing.T) {
	acc := New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				acc.Add(1)
			}
		}()
	}
	wg.Wait()

	if acc.Count() != 1000 {
		t.Errorf("expected count=1000, got %d", acc.Count())
	}
}

func reading(ts time.Time, co, no2 *float64) types.Reading {
	r := types.Reading{Timestamp: ts}
	r.Values[types.FieldCO] = types.ValueFromPtr(co)
	r.Values[types.FieldNO2] = types.ValueFromPtr(no2)
	return r
}

func ptr(v float64) *float64 { return &v }

func TestGrouper_MonthlyBuckets(t *testing.T) {
	g := NewGrouper(types.IntervalMonthly, []types.Field{types.FieldCO, types.FieldNO2})

	g.ProcessBatch([]types.Reading{
		reading(time.Date(2004, 4, 2, 9, 0, 0, 0, time.UTC), ptr(4), nil),
		reading(time.Date(2004, 3, 10, 18, 0, 0, 0, time.UTC), ptr(2.6), ptr(113)),
		reading(time.Date(2004, 3, 11, 18, 0, 0, 0, time.UTC), ptr(2), nil),
	})

	buckets := g.Buckets(types.ReducerSum)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Interval != "2004-03" || buckets[1].Interval != "2004-04" {
		t.Errorf("expected [2004-03 2004-04], got [%s %s]", buckets[0].Interval, buckets[1].Interval)
	}

	co, _ := buckets[0].Get(types.FieldCO)
	if co.Count != 2 || math.Abs(co.Value-4.6) > 1e-9 {
		t.Errorf("expected March CO sum 4.6 over 2, got %+v", co)
	}
	no2, _ := buckets[0].Get(types.FieldNO2)
	if no2.Count != 1 || no2.Value != 113 {
		t.Errorf("expected March NO2 113 over 1, got %+v", no2)
	}
	no2, _ = buckets[1].Get(types.FieldNO2)
	if no2.Valid || no2.Count != 0 {
		t.Errorf("April NO2 has no values and should be invalid, got %+v", no2)
	}

	stats := g.Stats()
	if stats.Groups != 2 || stats.ReadingsProcessed != 3 || stats.ValuesProcessed != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGrouper_HourlyKeys(t *testing.T) {
	g := NewGrouper(types.IntervalHourly, []types.Field{types.FieldCO})
	g.Process(reading(time.Date(2004, 3, 10, 18, 30, 0, 0, time.UTC), ptr(1), nil))
	g.Process(reading(time.Date(2004, 3, 10, 9, 0, 0, 0, time.UTC), ptr(1), nil))

	keys := g.Keys()
	if len(keys) != 2 || keys[0] != "2004-03-10:09" || keys[1] != "2004-03-10:18" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestGrouper_Distributions(t *testing.T) {
	g, err := NewGrouperWithAccuracy(types.IntervalNone, []types.Field{types.FieldCO, types.FieldT}, 0.01)
	if err != nil {
		t.Fatalf("NewGrouperWithAccuracy: %v", err)
	}

	for i := 1; i <= 10; i++ {
		g.Process(reading(time.Date(2004, 3, 10, i, 0, 0, 0, time.UTC), ptr(float64(i)), nil))
	}

	out := g.Distributions([]float64{0.5})
	if len(out) != 1 || out[0].Interval != "" {
		t.Fatalf("expected one unbucketed result, got %+v", out)
	}
	if len(out[0].Distributions) != 1 || out[0].Distributions[0].Field != types.FieldCO {
		t.Fatalf("expected CO only, got %+v", out[0].Distributions)
	}
	if q := out[0].Distributions[0].Quantiles[0].Value; math.Abs(q-5) > 1 {
		t.Errorf("expected median near 5, got %f", q)
	}

	if _, err := NewGrouperWithAccuracy(types.IntervalNone, nil, 0); err == nil {
		t.Error("expected error for zero accuracy")
	}
}

func BenchmarkAccumulator_Add(b *testing.B) {
	acc := New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.Add(float64(i))
	}
}

func BenchmarkAccumulator_AddWithSketch(b *testing.B) {
	acc, _ := NewWithAccuracy(0.01)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.Add(float64(i))
	}
}

func BenchmarkGrouper_Process(b *testing.B) {
	g := NewGrouper(types.IntervalDaily, types.AllFields())
	r := reading(time.Date(2004, 3, 10, 18, 0, 0, 0, time.UTC), ptr(2.6), ptr(113))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Process(r)
	}
}
