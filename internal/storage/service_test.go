package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/config"
	"github.com/xtxerr/airq/internal/storage/types"
	testutil "github.com/xtxerr/airq/internal/testing"
)

var backends = []string{"memory", "duckdb"}

func newService(t *testing.T, backend string) *Service {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Backend = backend
	cfg.DuckDB.Path = ""
	cfg.Ingestion.BatchSize = 4

	svc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// sampleCSV spans three days of March and one of April 2004.
func sampleCSV() *testutil.CSV {
	return testutil.NewCSV().
		Row("09/03/2004", "23.00.00", "1,0").
		Row("10/03/2004", "00.00.00", "2,0", "1000").
		Row("10/03/2004", "12.00.00", testutil.Missing, "1100").
		Row("10/03/2004", "23.00.00", "4,0").
		Row("11/03/2004", "00.00.00", "8,0").
		Row("31/04/2004", "00.00.00", "9,0").
		Row("02/04/2004", "06.00.00", "16,0")
}

func importSample(t *testing.T, svc *Service) {
	t.Helper()

	report, err := svc.Import(context.Background(), sampleCSV().Reader(), "sample.csv")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Valid != 6 || report.Skipped != 1 {
		t.Fatalf("expected 6 valid and 1 skipped, got %d and %d", report.Valid, report.Skipped)
	}
	if report.Inserted != 6 {
		t.Fatalf("expected 6 inserted, got %d", report.Inserted)
	}
}

func TestService_UnsupportedBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = "sqlite"

	_, err := New(context.Background(), cfg)
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	_, err = OpenBackend(context.Background(), cfg)
	if !errors.Is(err, errors.ErrUnsupportedBackend) {
		t.Errorf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestService_Range(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			svc := newService(t, backend)
			importSample(t, svc)

			readings, err := svc.Range(context.Background(), "2004-03-10", "2004-03-10")
			if err != nil {
				t.Fatalf("Range: %v", err)
			}
			if len(readings) != 3 {
				t.Fatalf("expected 3 readings, got %d", len(readings))
			}
			for i := 1; i < len(readings); i++ {
				if readings[i].Timestamp.Before(readings[i-1].Timestamp) {
					t.Errorf("readings not sorted at %d", i)
				}
			}
			if _, ok := readings[1].Get(types.FieldCO); ok {
				t.Error("sentinel value should be missing")
			}
		})
	}
}

func TestService_RangeRequiresBounds(t *testing.T) {
	svc := newService(t, "memory")

	_, err := svc.Range(context.Background(), "2004-03-10", "")
	if !errors.Is(err, errors.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
	if errors.ErrorToCode(err) != errors.CodeInvalidRequest {
		t.Errorf("expected CodeInvalidRequest, got %d", errors.ErrorToCode(err))
	}
}

func TestService_TimeSeries(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			svc := newService(t, backend)
			importSample(t, svc)

			buckets, err := svc.TimeSeries(context.Background(), "CO", "", "", "monthly", "")
			if err != nil {
				t.Fatalf("TimeSeries: %v", err)
			}
			if len(buckets) != 2 {
				t.Fatalf("expected 2 buckets, got %d", len(buckets))
			}
			if buckets[0].Interval != "2004-03" || buckets[1].Interval != "2004-04" {
				t.Errorf("expected [2004-03 2004-04], got [%s %s]", buckets[0].Interval, buckets[1].Interval)
			}

			march, _ := buckets[0].Get(types.FieldCO)
			if march.Count != 4 || math.Abs(march.Value-15) > 1e-9 {
				t.Errorf("expected March sum 15 over 4 values, got %+v", march)
			}
		})
	}
}

func TestService_TimeSeriesRejectsParameter(t *testing.T) {
	svc := newService(t, "memory")

	_, err := svc.TimeSeries(context.Background(), "O3", "", "", "", "")
	if !errors.Is(err, errors.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestService_Summary(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			svc := newService(t, backend)

			empty, err := svc.Summary(context.Background(), "", "", "")
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			if empty == nil || len(empty) != 0 {
				t.Errorf("expected empty summary, got %v", empty)
			}

			importSample(t, svc)

			sum, err := svc.Summary(context.Background(), "", "", "max")
			if err != nil {
				t.Fatalf("Summary: %v", err)
			}
			if len(sum) != 2 {
				t.Errorf("expected CO and PT08S1 only, got %v", sum)
			}
			if sum["CO"] != 16 || sum["PT08S1"] != 1100 {
				t.Errorf("expected CO=16 PT08S1=1100, got %v", sum)
			}
		})
	}
}

func TestService_Percentiles(t *testing.T) {
	svc := newService(t, "memory")

	report, err := svc.Import(context.Background(),
		testutil.HourlyCSV(time.Date(2004, 3, 10, 0, 0, 0, 0, time.UTC), 100).Reader(), "hourly.csv")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if report.Inserted != 100 {
		t.Fatalf("expected 100 inserted, got %d", report.Inserted)
	}

	dists, err := svc.Percentiles(context.Background(), "CO", "", "", "", []float64{0.5})
	if err != nil {
		t.Fatalf("Percentiles: %v", err)
	}
	if len(dists) != 1 || len(dists[0].Distributions) != 1 {
		t.Fatalf("expected one distribution, got %+v", dists)
	}

	d := dists[0].Distributions[0]
	if d.Count != 100 {
		t.Errorf("expected count 100, got %d", d.Count)
	}
	if got := d.Quantiles[0].Value; math.Abs(got-50.5) > 2 {
		t.Errorf("expected median near 50.5, got %f", got)
	}
}

func TestService_ExportRestore(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			src := newService(t, backend)
			importSample(t, src)

			path := filepath.Join(t.TempDir(), "march.parquet")
			info, err := src.Export(context.Background(), "2004-03-01", "2004-03-31", path)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if info.NumRows != 5 {
				t.Errorf("expected 5 exported rows, got %d", info.NumRows)
			}

			dst := newService(t, backend)
			report, err := dst.Restore(context.Background(), path)
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if report.Inserted != 5 {
				t.Errorf("expected 5 restored, got %d", report.Inserted)
			}

			want, _ := src.Range(context.Background(), "2004-03-01", "2004-03-31")
			got, err := dst.Range(context.Background(), "2004-03-01", "2004-03-31")
			if err != nil {
				t.Fatalf("Range: %v", err)
			}
			if len(got) != len(want) {
				t.Fatalf("expected %d readings, got %d", len(want), len(got))
			}
			for i := range want {
				if !got[i].Timestamp.Equal(want[i].Timestamp) || got[i].Values != want[i].Values {
					t.Errorf("reading %d differs: expected %+v, got %+v", i, want[i], got[i])
				}
			}
		})
	}
}

func TestService_RestoreMissingFile(t *testing.T) {
	svc := newService(t, "memory")

	_, err := svc.Restore(context.Background(), filepath.Join(t.TempDir(), "missing.parquet"))
	if !errors.Is(err, errors.ErrSourceIO) {
		t.Errorf("expected ErrSourceIO, got %v", err)
	}
}

func TestService_ImportFiles(t *testing.T) {
	svc := newService(t, "memory")

	good := testutil.HourlyCSV(time.Date(2004, 3, 10, 0, 0, 0, 0, time.UTC), 10).WriteFile(t, "good.csv")
	other := testutil.HourlyCSV(time.Date(2004, 4, 10, 0, 0, 0, 0, time.UTC), 5).WriteFile(t, "other.csv")
	missing := filepath.Join(t.TempDir(), "missing.csv")

	reports := svc.ImportFiles(context.Background(), good, missing, other)
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	if reports[0].Err != nil || reports[0].Inserted != 10 {
		t.Errorf("good: expected 10 inserted, got %d (%v)", reports[0].Inserted, reports[0].Err)
	}
	if !errors.Is(reports[1].Err, errors.ErrSourceIO) {
		t.Errorf("missing: expected ErrSourceIO, got %v", reports[1].Err)
	}
	if reports[2].Err != nil || reports[2].Inserted != 5 {
		t.Errorf("other: expected 5 inserted, got %d (%v)", reports[2].Inserted, reports[2].Err)
	}

	stats := svc.Stats()
	if stats.Ingestion.Inserted != 15 {
		t.Errorf("expected 15 inserted in stats, got %d", stats.Ingestion.Inserted)
	}
}

func TestService_Parameters(t *testing.T) {
	svc := newService(t, "memory")

	params := svc.Parameters()
	if len(params) != types.NumFields {
		t.Fatalf("expected %d parameters, got %d", types.NumFields, len(params))
	}
	if params[0].Name != "CO" || params[0].Unit != "mg/m³" {
		t.Errorf("expected CO in mg/m³ first, got %+v", params[0])
	}
}

func TestService_Closed(t *testing.T) {
	svc := newService(t, "memory")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := svc.Summary(context.Background(), "", "", ""); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := svc.Import(context.Background(), sampleCSV().Reader(), "x"); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
