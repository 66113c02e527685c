package testing

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/airq/internal/storage/types"
)

// =============================================================================
// Sensor File Fixtures
// =============================================================================

// Missing is the source dataset's marker for an absent measurement.
const Missing = "-200"

// Header returns the header line of the source dataset, including the two
// empty trailing columns the published files carry.
func Header() string {
	cols := []string{"Date", "Time"}
	for _, d := range types.Fields() {
		cols = append(cols, d.Header)
	}
	return strings.Join(cols, ";") + ";;"
}

// CSV builds ';'-delimited sensor files line by line.
type CSV struct {
	b    strings.Builder
	rows int
}

// NewCSV starts a file with the dataset header.
func NewCSV() *CSV {
	c := &CSV{}
	c.b.WriteString(Header())
	c.b.WriteByte('\n')
	return c
}

// Row appends a data row. Values are given in field order; fields beyond
// len(values) are written as Missing.
func (c *CSV) Row(date, clock string, values ...string) *CSV {
	cols := make([]string, 0, types.NumFields+4)
	cols = append(cols, date, clock)
	for i := 0; i < types.NumFields; i++ {
		if i < len(values) {
			cols = append(cols, values[i])
		} else {
			cols = append(cols, Missing)
		}
	}
	c.b.WriteString(strings.Join(cols, ";"))
	c.b.WriteString(";;\n")
	c.rows++
	return c
}

// Reading appends a row for ts with CO set to co, in the dataset's
// decimal-comma notation.
func (c *CSV) Reading(ts time.Time, co string) *CSV {
	return c.Row(ts.Format("02/01/2006"), ts.Format("15.04.05"), co)
}

// Raw appends a line verbatim.
func (c *CSV) Raw(line string) *CSV {
	c.b.WriteString(line)
	c.b.WriteByte('\n')
	c.rows++
	return c
}

// Rows returns the number of lines appended after the header.
func (c *CSV) Rows() int {
	return c.rows
}

// String returns the file content.
func (c *CSV) String() string {
	return c.b.String()
}

// Reader returns a reader over the file content.
func (c *CSV) Reader() io.Reader {
	return strings.NewReader(c.b.String())
}

// WriteFile writes the content to name inside a test temp dir.
func (c *CSV) WriteFile(t testing.TB, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(c.String()), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// HourlyCSV returns n valid rows one hour apart from start. CO of row i
// is i+1.5 written with a decimal comma, e.g. "1,5" for i = 0.
func HourlyCSV(start time.Time, n int) *CSV {
	c := NewCSV()
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		c.Row(ts.Format("02/01/2006"), ts.Format("15:04:05"), strconv.Itoa(i+1)+",5")
	}
	return c
}

// =============================================================================
// Store Fixtures
// =============================================================================

// MemoryWriter is an in-memory batch writer recording every call.
type MemoryWriter struct {
	mu       sync.Mutex
	readings []types.Reading
	calls    []int

	// Fail, if set, is consulted per call with the 1-based call number and
	// batch size. A non-nil error stores only the first inserted records.
	Fail func(call, size int) (inserted int, err error)

	// Delay is slept inside every call.
	Delay time.Duration

	// Gate, if set, must yield (or be closed) before a call proceeds.
	Gate chan struct{}
}

// InsertMany stores a copy of readings.
func (w *MemoryWriter) InsertMany(ctx context.Context, readings []types.Reading) (int, error) {
	if w.Gate != nil {
		select {
		case <-w.Gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if w.Delay > 0 {
		select {
		case <-time.After(w.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls = append(w.calls, len(readings))

	n := len(readings)
	var err error
	if w.Fail != nil {
		var inserted int
		if inserted, err = w.Fail(len(w.calls), n); err != nil {
			n = inserted
		}
	}

	w.readings = append(w.readings, readings[:n]...)
	return n, err
}

// Readings returns the stored readings.
func (w *MemoryWriter) Readings() []types.Reading {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]types.Reading(nil), w.readings...)
}

// Calls returns the batch size of every InsertMany call in order.
func (w *MemoryWriter) Calls() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.calls...)
}
