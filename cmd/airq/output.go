package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/xtxerr/airq/internal/storage/ingestion"
	"github.com/xtxerr/airq/internal/storage/parquet"
	"github.com/xtxerr/airq/internal/storage/types"
)

// output renders results as a table on a terminal and as JSON otherwise.
type output struct {
	w    io.Writer
	json bool
}

func newOutput(w io.Writer, forceJSON bool) *output {
	return &output{w: w, json: forceJSON || !isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (o *output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(o.w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	return t
}

func formatValue(v float64) string {
	return humanize.FtoaWithDigits(v, 4)
}

func optional(v float64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

const dateLayout = "2006-01-02T15:04:05"

// =============================================================================
// Query results
// =============================================================================

func (o *output) readings(readings []types.Reading) error {
	fields := types.Fields()

	if o.json {
		rows := make([]map[string]any, len(readings))
		for i := range readings {
			row := map[string]any{
				"Date": readings[i].Timestamp.Format(dateLayout),
				"Time": readings[i].Clock,
			}
			for _, d := range fields {
				row[d.Name] = optional(readings[i].Get(d.Field))
			}
			rows[i] = row
		}
		return o.encode(rows)
	}

	header := []string{"Date", "Time"}
	for _, d := range fields {
		header = append(header, d.Name)
	}

	t := o.table(header)
	for i := range readings {
		row := []string{readings[i].Timestamp.Format("2006-01-02 15:04"), readings[i].Clock}
		for _, d := range fields {
			if v, ok := readings[i].Get(d.Field); ok {
				row = append(row, formatValue(v))
			} else {
				row = append(row, "")
			}
		}
		t.Append(row)
	}
	t.Render()

	fmt.Fprintf(o.w, "%s readings\n", humanize.Comma(int64(len(readings))))
	return nil
}

func (o *output) buckets(buckets []types.Bucket) error {
	if o.json {
		type bucketJSON struct {
			Interval string `json:"interval"`
			Value    any    `json:"value"`
			Count    int64  `json:"count"`
		}
		rows := make([]bucketJSON, 0, len(buckets))
		for _, b := range buckets {
			for _, v := range b.Values {
				rows = append(rows, bucketJSON{Interval: b.Interval, Value: optional(v.Value, v.Valid), Count: v.Count})
			}
		}
		return o.encode(rows)
	}

	t := o.table([]string{"Interval", "Parameter", "Value", "Count"})
	t.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, b := range buckets {
		for _, v := range b.Values {
			value := ""
			if v.Valid {
				value = formatValue(v.Value)
			}
			t.Append([]string{b.Interval, v.Field.String(), value, humanize.Comma(v.Count)})
		}
	}
	t.Render()
	return nil
}

func (o *output) summary(sum types.Summary) error {
	if o.json {
		return o.encode(sum)
	}

	t := o.table([]string{"Parameter", "Value", "Unit"})
	for _, d := range types.Fields() {
		if v, ok := sum[d.Name]; ok {
			t.Append([]string{d.Name, formatValue(v), d.Unit})
		}
	}
	t.Render()
	return nil
}

func (o *output) distributions(dists []types.DistributionBucket) error {
	if o.json {
		type distJSON struct {
			Interval  string             `json:"interval,omitempty"`
			Parameter string             `json:"parameter"`
			Count     int64              `json:"count"`
			Mean      float64            `json:"mean"`
			Min       float64            `json:"min"`
			Max       float64            `json:"max"`
			Quantiles map[string]float64 `json:"quantiles"`
		}
		var rows []distJSON
		for _, b := range dists {
			for _, d := range b.Distributions {
				qs := make(map[string]float64, len(d.Quantiles))
				for _, q := range d.Quantiles {
					qs[quantileName(q.Q)] = q.Value
				}
				rows = append(rows, distJSON{
					Interval:  b.Interval,
					Parameter: d.Field.String(),
					Count:     d.Count,
					Mean:      d.Mean,
					Min:       d.Min,
					Max:       d.Max,
					Quantiles: qs,
				})
			}
		}
		return o.encode(rows)
	}

	var header []string
	if len(dists) > 0 && len(dists[0].Distributions) > 0 {
		header = []string{"Interval", "Parameter", "Count", "Mean", "Min", "Max"}
		for _, q := range dists[0].Distributions[0].Quantiles {
			header = append(header, quantileName(q.Q))
		}
	}
	if header == nil {
		fmt.Fprintln(o.w, "no values")
		return nil
	}

	t := o.table(header)
	for _, b := range dists {
		for _, d := range b.Distributions {
			row := []string{b.Interval, d.Field.String(), humanize.Comma(d.Count),
				formatValue(d.Mean), formatValue(d.Min), formatValue(d.Max)}
			for _, q := range d.Quantiles {
				row = append(row, formatValue(q.Value))
			}
			t.Append(row)
		}
	}
	t.Render()
	return nil
}

// quantileName formats 0.95 as p95.
func quantileName(q float64) string {
	return "p" + strconv.FormatFloat(q*100, 'f', -1, 64)
}

// =============================================================================
// Ingestion and archives
// =============================================================================

func (o *output) reports(reports []ingestion.FileReport) error {
	if o.json {
		type reportJSON struct {
			Source        string `json:"source"`
			Rows          int64  `json:"rows"`
			Valid         int64  `json:"valid"`
			Skipped       int64  `json:"skipped"`
			Inserted      int64  `json:"inserted"`
			Rejected      int64  `json:"rejected"`
			Batches       int64  `json:"batches"`
			FailedBatches int64  `json:"failed_batches"`
			ElapsedMs     int64  `json:"elapsed_ms"`
			Error         string `json:"error,omitempty"`
		}
		rows := make([]reportJSON, len(reports))
		for i, r := range reports {
			rows[i] = reportJSON{
				Source:        r.Source,
				Rows:          r.Rows,
				Valid:         r.Valid,
				Skipped:       r.Skipped,
				Inserted:      r.Inserted,
				Rejected:      r.Rejected,
				Batches:       r.Batches,
				FailedBatches: r.FailedBatches,
				ElapsedMs:     r.Elapsed.Milliseconds(),
			}
			if r.Err != nil {
				rows[i].Error = r.Err.Error()
			}
		}
		return o.encode(rows)
	}

	t := o.table([]string{"Source", "Rows", "Valid", "Skipped", "Inserted", "Rejected", "Batches", "Elapsed", "Status"})
	for _, r := range reports {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		} else if r.FailedBatches > 0 {
			status = fmt.Sprintf("%d failed batches", r.FailedBatches)
		}
		t.Append([]string{
			r.Source,
			humanize.Comma(r.Rows),
			humanize.Comma(r.Valid),
			humanize.Comma(r.Skipped),
			humanize.Comma(r.Inserted),
			humanize.Comma(r.Rejected),
			humanize.Comma(r.Batches),
			r.Elapsed.Round(time.Millisecond).String(),
			status,
		})
	}
	t.Render()
	return nil
}

func (o *output) exported(info *parquet.FileInfo) error {
	if o.json {
		return o.encode(map[string]any{"path": info.Path, "rows": info.NumRows, "bytes": info.Size})
	}

	fmt.Fprintf(o.w, "wrote %s readings to %s (%s)\n",
		humanize.Comma(info.NumRows), info.Path, humanize.Bytes(uint64(info.Size)))
	return nil
}

func (o *output) params(descs []types.FieldDescriptor) error {
	if o.json {
		type paramJSON struct {
			Name        string `json:"name"`
			Header      string `json:"header"`
			Unit        string `json:"unit,omitempty"`
			Description string `json:"description"`
		}
		rows := make([]paramJSON, len(descs))
		for i, d := range descs {
			rows[i] = paramJSON{Name: d.Name, Header: d.Header, Unit: d.Unit, Description: d.Description}
		}
		return o.encode(rows)
	}

	t := o.table([]string{"Parameter", "Column", "Unit", "Description"})
	for _, d := range descs {
		t.Append([]string{d.Name, d.Header, d.Unit, d.Description})
	}
	t.Render()
	return nil
}
