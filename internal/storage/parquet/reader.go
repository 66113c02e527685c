package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/xtxerr/airq/internal/storage/types"
)

const readChunk = 1024

// Reader streams readings from a Parquet file. It holds at most one chunk
// of rows in memory.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[ReadingRow]
	path   string

	buf     []ReadingRow
	n, pos  int
	current types.Reading
	err     error
	eof     bool
}

// NewReader opens a reading Parquet file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	reader := parquet.NewGenericReader[ReadingRow](f)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
		buf:    make([]ReadingRow, readChunk),
	}, nil
}

// Next advances to the next reading.
func (r *Reader) Next() bool {
	for r.pos >= r.n {
		if r.eof || r.err != nil {
			return false
		}
		r.fill()
	}

	r.current = RowToReading(&r.buf[r.pos])
	r.pos++
	return true
}

func (r *Reader) fill() {
	clear(r.buf)
	n, err := r.reader.Read(r.buf)
	r.n, r.pos = n, 0

	switch {
	case errors.Is(err, io.EOF):
		r.eof = true
	case err != nil:
		r.err = fmt.Errorf("read %s: %w", r.path, err)
	case n == 0:
		r.eof = true
	}
}

// Reading returns the current reading.
func (r *Reader) Reading() types.Reading {
	return r.current
}

// Err returns the first read error.
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads all remaining readings.
func (r *Reader) ReadAll() ([]types.Reading, error) {
	out := make([]types.Reading, 0, r.NumRows())
	for r.Next() {
		out = append(out, r.Reading())
	}
	return out, r.Err()
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
}

// GetFileInfo returns information about a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: r.NumRows(),
	}, nil
}
