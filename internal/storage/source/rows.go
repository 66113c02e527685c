// Package source provides pull-based access to delimited sensor files.
//
// Rows are read one at a time; the reader never buffers more than the
// current record, so arbitrarily large inputs stream in constant memory.
package source

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/xtxerr/airq/internal/errors"
)

// Delimiter separates fields in the source files.
const Delimiter = ';'

const bom = "\ufeff"

// Row is one record keyed by header name.
type Row map[string]string

// Rows iterates over the records of a delimited stream.
//
//	rows := source.NewReader(r)
//	for rows.Next() {
//	    row, err := rows.Row()
//	    ...
//	}
//	if err := rows.Err(); err != nil { ... }
type Rows struct {
	reader *csv.Reader
	name   string
	header []string

	row    Row
	rowErr error
	line   int
	err    error
	done   bool
}

// NewReader creates a row iterator over r. The first record is the header.
func NewReader(r io.Reader) *Rows {
	return NewNamedReader(r, "")
}

// NewNamedReader creates a row iterator whose errors carry the source name.
func NewNamedReader(r io.Reader, name string) *Rows {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	return &Rows{reader: cr, name: name}
}

// Header returns the trimmed header names. It is nil until the first call to Next.
func (r *Rows) Header() []string {
	return r.header
}

// Next advances to the next non-empty record. It returns false at the end
// of the stream or on a fatal read error, which is then reported by Err.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	if r.header == nil {
		if !r.readHeader() {
			return false
		}
	}

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			r.done = true
			return false
		}

		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				r.line = pe.Line
				r.row = nil
				r.rowErr = &errors.RowError{Line: pe.Line, Err: errors.Wrap(errors.ErrMalformedRow, pe.Err.Error())}
				return true
			}
			r.fail(err)
			return false
		}

		if isEmpty(record) {
			continue
		}

		r.line, _ = r.reader.FieldPos(0)

		r.row = r.toRow(record)
		r.rowErr = nil
		return true
	}
}

// Row returns the current record, or a *errors.RowError when the record
// could not be split into fields.
func (r *Rows) Row() (Row, error) {
	return r.row, r.rowErr
}

// Line returns the line number of the current record.
func (r *Rows) Line() int {
	return r.line
}

// Err returns the fatal error that stopped iteration, if any.
// It always wraps errors.ErrSourceIO.
func (r *Rows) Err() error {
	return r.err
}

func (r *Rows) readHeader() bool {
	record, err := r.reader.Read()
	if err != nil {
		if err == io.EOF {
			r.done = true
			return false
		}
		r.fail(err)
		return false
	}

	header := make([]string, len(record))
	for i, h := range record {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		header[i] = strings.TrimSpace(h)
	}
	r.header = header
	return true
}

func (r *Rows) toRow(record []string) Row {
	row := make(Row, len(r.header))
	for i, h := range r.header {
		if h == "" || i >= len(record) {
			continue
		}
		row[h] = record[i]
	}
	return row
}

func (r *Rows) fail(err error) {
	name := r.name
	if name == "" {
		name = "stream"
	}
	r.err = errors.NewSourceIO(name, err)
	r.done = true
}

func isEmpty(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
