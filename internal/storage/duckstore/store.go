// Package duckstore stores readings in an embedded DuckDB database.
//
// Readings live in one table with a nullable DOUBLE column per field.
// Grouping and reduction run inside DuckDB; with a temp directory
// configured, DuckDB spills aggregation state beyond memory_limit to disk.
package duckstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/logging"
	"github.com/xtxerr/airq/internal/storage/query"
	"github.com/xtxerr/airq/internal/storage/types"
)

const table = "readings"

// Options configures the store.
type Options struct {
	// Path is the database file. Empty opens an in-memory database.
	Path string

	// MemoryLimit is passed to SET memory_limit, e.g. "2GB".
	MemoryLimit string

	// TempDirectory receives spilled intermediate state.
	TempDirectory string

	// Threads limits DuckDB worker threads. Zero keeps the default.
	Threads int
}

// Store is a DuckDB-backed reading store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	closed atomic.Bool

	insertSQL string
	stats     Stats
}

// Stats holds store statistics.
type Stats struct {
	Inserted     atomic.Int64
	InsertFailed atomic.Int64
	Fallbacks    atomic.Int64
	Queries      atomic.Int64
}

// StoreStats is a snapshot of Stats.
type StoreStats struct {
	Inserted     int64
	InsertFailed int64
	Fallbacks    int64
	Queries      int64
}

// Open opens or creates the database and its schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open duckdb: %w", errors.ErrConnectionFailed, err)
	}

	s := &Store{
		db:        db,
		logger:    logging.Component("duckstore"),
		insertSQL: insertStatement(),
	}

	if err := s.configure(ctx, opts); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("duckdb store opened", "path", displayPath(opts.Path))
	return s, nil
}

func (s *Store) configure(ctx context.Context, opts Options) error {
	settings := []struct {
		name  string
		value string
	}{
		{"memory_limit", opts.MemoryLimit},
		{"temp_directory", opts.TempDirectory},
	}

	for _, set := range settings {
		if set.value == "" {
			continue
		}
		stmt := fmt.Sprintf("SET %s='%s'", set.name, strings.ReplaceAll(set.value, "'", "''"))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set %s: %w", set.name, err)
		}
	}

	if opts.Threads > 0 {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("SET threads=%d", opts.Threads)); err != nil {
			return fmt.Errorf("set threads: %w", err)
		}
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	cols := []string{
		"ts TIMESTAMP NOT NULL",
		"time_text VARCHAR",
	}
	for _, d := range types.Fields() {
		cols = append(cols, fmt.Sprintf("%s DOUBLE", quote(d.Column)))
	}
	cols = append(cols, "created_at TIMESTAMP NOT NULL")

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(cols, ",\n\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ts_idx ON %s (ts)", table, table),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %w", errors.ErrDatabase, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Stats returns a snapshot of store statistics.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Inserted:     s.stats.Inserted.Load(),
		InsertFailed: s.stats.InsertFailed.Load(),
		Fallbacks:    s.stats.Fallbacks.Load(),
		Queries:      s.stats.Queries.Load(),
	}
}

// Count returns the number of stored readings.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, errors.ErrStoreClosed
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", errors.ErrDatabase, err)
	}
	return n, nil
}

// =============================================================================
// Insert
// =============================================================================

// InsertMany inserts readings in one transaction. If the transaction fails,
// readings are inserted one by one so a bad record does not take the rest
// of the batch with it; the rejected remainder is reported as a
// *errors.BulkError.
func (s *Store) InsertMany(ctx context.Context, readings []types.Reading) (int, error) {
	if s.closed.Load() {
		return 0, errors.ErrStoreClosed
	}
	if len(readings) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()

	err := s.insertTx(ctx, readings, now)
	if err == nil {
		s.stats.Inserted.Add(int64(len(readings)))
		return len(readings), nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	s.stats.Fallbacks.Add(1)
	s.logger.Debug("batch insert failed, inserting row by row", "size", len(readings), "error", err)

	inserted := 0
	var firstErr error
	for i := range readings {
		if _, err := s.db.ExecContext(ctx, s.insertSQL, insertArgs(&readings[i], now)...); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		inserted++
	}

	s.stats.Inserted.Add(int64(inserted))
	s.stats.InsertFailed.Add(int64(len(readings) - inserted))

	if inserted < len(readings) {
		return inserted, errors.NewBulkError(len(readings), inserted, firstErr)
	}
	return inserted, nil
}

func (s *Store) insertTx(ctx context.Context, readings []types.Reading, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range readings {
		if _, err := stmt.ExecContext(ctx, insertArgs(&readings[i], now)...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertStatement() string {
	cols := []string{"ts", "time_text"}
	for _, d := range types.Fields() {
		cols = append(cols, quote(d.Column))
	}
	cols = append(cols, "created_at")

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}

func insertArgs(r *types.Reading, now time.Time) []any {
	args := make([]any, 0, types.NumFields+3)
	args = append(args, r.Timestamp.UTC(), r.Clock)
	for _, v := range r.Values {
		if v.Valid {
			args = append(args, v.Float)
		} else {
			args = append(args, nil)
		}
	}
	return append(args, now)
}

// =============================================================================
// Find
// =============================================================================

// Find streams matching readings ordered by timestamp.
func (s *Store) Find(ctx context.Context, plan *query.Plan) (query.Cursor, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	s.stats.Queries.Add(1)

	cols := []string{"ts", "time_text"}
	for _, d := range types.Fields() {
		cols = append(cols, quote(d.Column))
	}

	where, args := whereClause(plan.Match)
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY ts", strings.Join(cols, ", "), table, where)
	if plan.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", plan.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: find: %w", errors.ErrDatabase, err)
	}
	return &cursor{rows: rows}, nil
}

type cursor struct {
	rows    *sql.Rows
	current types.Reading
	err     error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var (
		ts     time.Time
		clock  sql.NullString
		values [types.NumFields]sql.NullFloat64
	)
	dest := make([]any, 0, types.NumFields+2)
	dest = append(dest, &ts, &clock)
	for i := range values {
		dest = append(dest, &values[i])
	}

	if err := c.rows.Scan(dest...); err != nil {
		c.err = fmt.Errorf("scan reading: %w", err)
		return false
	}

	c.current = types.Reading{Timestamp: ts.UTC(), Clock: clock.String}
	for i, v := range values {
		if v.Valid {
			c.current.Values[i] = types.Some(v.Float64)
		}
	}
	return true
}

func (c *cursor) Reading() types.Reading { return c.current }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *cursor) Close() error { return c.rows.Close() }

// =============================================================================
// Aggregate
// =============================================================================

// Aggregate groups matching readings by the plan's interval key and applies
// the plan's reducer to every field. Without an interval one row is
// returned, with zero counts when nothing matched.
func (s *Store) Aggregate(ctx context.Context, plan *query.Plan) ([]query.Group, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	s.stats.Queries.Add(1)

	q, args, err := aggregateSQL(plan)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate: %w", errors.ErrDatabase, err)
	}
	defer rows.Close()

	var groups []query.Group
	for rows.Next() {
		var key sql.NullString
		values := make([]sql.NullFloat64, len(plan.Fields))
		counts := make([]int64, len(plan.Fields))

		dest := make([]any, 0, 1+2*len(plan.Fields))
		dest = append(dest, &key)
		for i := range plan.Fields {
			dest = append(dest, &values[i], &counts[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}

		g := query.Group{ID: key.String, Values: make([]types.FieldAggregate, len(plan.Fields))}
		for i, f := range plan.Fields {
			g.Values[i] = types.FieldAggregate{
				Field: f,
				Value: values[i].Float64,
				Valid: values[i].Valid && counts[i] > 0,
				Count: counts[i],
			}
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: aggregate: %w", errors.ErrDatabase, err)
	}
	return groups, nil
}

// aggregateSQL builds the grouping statement for plan. Column names come
// from the compiled-in field descriptors and the reducer is chosen by switch;
// only the range bounds are parameters.
func aggregateSQL(plan *query.Plan) (string, []any, error) {
	fn, err := reducerFunc(plan.Reducer)
	if err != nil {
		return "", nil, err
	}
	if len(plan.Fields) == 0 {
		return "", nil, fmt.Errorf("%w: no fields to aggregate", errors.ErrInvalidParameter)
	}

	key := "NULL"
	if plan.Grouped() {
		key = fmt.Sprintf("strftime(ts, '%s')", plan.Interval.Layout())
	}

	sel := []string{key + " AS bucket"}
	for _, f := range plan.Fields {
		col := quote(f.Column())
		sel = append(sel, fmt.Sprintf("%s(%s)", fn, col), fmt.Sprintf("count(%s)", col))
	}

	where, args := whereClause(plan.Match)
	q := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(sel, ", "), table, where)
	if plan.Grouped() {
		q += " GROUP BY bucket ORDER BY bucket"
	}
	return q, args, nil
}

func reducerFunc(r types.Reducer) (string, error) {
	switch r {
	case types.ReducerSum:
		return "sum", nil
	case types.ReducerAvg:
		return "avg", nil
	case types.ReducerMin:
		return "min", nil
	case types.ReducerMax:
		return "max", nil
	default:
		return "", fmt.Errorf("%w: %s", errors.ErrInvalidReducer, r)
	}
}

func whereClause(r types.TimeRange) (string, []any) {
	var conds []string
	var args []any

	if r.From != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, r.From.UTC())
	}
	if r.To != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, r.To.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func displayPath(p string) string {
	if p == "" {
		return ":memory:"
	}
	return p
}
