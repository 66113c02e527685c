package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/airq/internal/storage/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the maximum number of rows per row group
	RowGroupSize int

	// PageSize is the target page buffer size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// String returns the configuration name of the algorithm.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
		PageSize:     1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string.
// Unknown names fall back to zstd; config validation rejects them earlier.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// ReadingRow represents a reading in Parquet format. Missing values are
// null. Column names match the SQL store.
type ReadingRow struct {
	TimestampMs int64    `parquet:"timestamp_ms"`
	Time        string   `parquet:"time,zstd"`
	CO          *float64 `parquet:"co,optional"`
	PT08S1      *float64 `parquet:"pt08_s1,optional"`
	NMHC        *float64 `parquet:"nmhc,optional"`
	C6H6        *float64 `parquet:"c6h6,optional"`
	PT08S2      *float64 `parquet:"pt08_s2,optional"`
	NOx         *float64 `parquet:"nox,optional"`
	PT08S3      *float64 `parquet:"pt08_s3,optional"`
	NO2         *float64 `parquet:"no2,optional"`
	PT08S4      *float64 `parquet:"pt08_s4,optional"`
	PT08S5      *float64 `parquet:"pt08_s5,optional"`
	T           *float64 `parquet:"t,optional"`
	RH          *float64 `parquet:"rh,optional"`
	AH          *float64 `parquet:"ah,optional"`
}

// values returns the value columns in field order.
func (r *ReadingRow) values() [types.NumFields]**float64 {
	return [types.NumFields]**float64{
		&r.CO, &r.PT08S1, &r.NMHC, &r.C6H6, &r.PT08S2, &r.NOx, &r.PT08S3,
		&r.NO2, &r.PT08S4, &r.PT08S5, &r.T, &r.RH, &r.AH,
	}
}

// ReadingToRow converts a Reading to a ReadingRow.
func ReadingToRow(r *types.Reading) ReadingRow {
	row := ReadingRow{
		TimestampMs: r.Timestamp.UnixMilli(),
		Time:        r.Clock,
	}
	for i, p := range row.values() {
		*p = r.Values[i].Ptr()
	}
	return row
}

// RowToReading converts a ReadingRow to a Reading.
func RowToReading(row *ReadingRow) types.Reading {
	r := types.Reading{
		Timestamp: time.UnixMilli(row.TimestampMs).UTC(),
		Clock:     row.Time,
	}
	for i, p := range row.values() {
		r.Values[i] = types.ValueFromPtr(*p)
	}
	return r
}

// Writer writes readings to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[ReadingRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a new reading Parquet writer.
func NewWriter(path string, opts Options) (*Writer, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
		parquet.CreatedBy("airq", "", ""),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}
	if opts.PageSize > 0 {
		writerOpts = append(writerOpts, parquet.PageBufferSize(opts.PageSize))
	}

	writer := parquet.NewGenericWriter[ReadingRow](f, writerOpts...)

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes readings to the Parquet file.
func (w *Writer) Write(readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	rows := make([]ReadingRow, len(readings))
	for i := range readings {
		rows[i] = ReadingToRow(&readings[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// Abort closes the writer and removes the partial file.
func (w *Writer) Abort() error {
	w.Close()
	return os.Remove(w.path)
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
