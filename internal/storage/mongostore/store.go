// Package mongostore stores readings in a MongoDB collection, one document
// per reading.
//
// Documents carry the reading's Date, the raw Time text and one key per
// field name. Missing values are stored as null. Grouping and reduction run
// server side in an aggregation pipeline.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/logging"
	"github.com/xtxerr/airq/internal/storage/query"
	"github.com/xtxerr/airq/internal/storage/types"
)

const (
	dateKey  = "Date"
	clockKey = "Time"

	countSuffix = "_n"
)

// Options configures the store.
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Store is a MongoDB-backed reading store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *slog.Logger
	closed atomic.Bool

	stats Stats
}

// Stats holds store statistics.
type Stats struct {
	Inserted     atomic.Int64
	InsertFailed atomic.Int64
	Queries      atomic.Int64
}

// StoreStats is a snapshot of Stats.
type StoreStats struct {
	Inserted     int64
	InsertFailed int64
	Queries      int64
}

// Open connects to MongoDB, verifies the connection and ensures the Date
// index exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConnectionFailed, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping %s: %w", errors.ErrConnectionFailed, opts.Database, err)
	}

	coll := client.Database(opts.Database).Collection(opts.Collection)

	_, err = coll.Indexes().CreateOne(pingCtx, mongo.IndexModel{
		Keys: bson.D{{Key: dateKey, Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: create index: %w", errors.ErrDatabase, err)
	}

	s := &Store{
		client: client,
		coll:   coll,
		logger: logging.Component("mongostore"),
	}
	s.logger.Debug("mongo store opened", "database", opts.Database, "collection", opts.Collection)
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Stats returns a snapshot of store statistics.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Inserted:     s.stats.Inserted.Load(),
		InsertFailed: s.stats.InsertFailed.Load(),
		Queries:      s.stats.Queries.Load(),
	}
}

// InsertMany inserts readings without ordering, so one rejected document
// does not stop the rest of the batch. A partial failure is reported as a
// *errors.BulkError carrying the inserted count.
func (s *Store) InsertMany(ctx context.Context, readings []types.Reading) (int, error) {
	if s.closed.Load() {
		return 0, errors.ErrStoreClosed
	}
	if len(readings) == 0 {
		return 0, nil
	}

	docs := make([]bson.D, len(readings))
	for i := range readings {
		docs[i] = document(&readings[i])
	}

	_, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		s.stats.Inserted.Add(int64(len(docs)))
		return len(docs), nil
	}

	inserted, ok := bulkInserted(len(docs), err)
	s.stats.Inserted.Add(int64(inserted))
	s.stats.InsertFailed.Add(int64(len(docs) - inserted))
	if ok {
		return inserted, errors.NewBulkError(len(docs), inserted, err)
	}
	return 0, fmt.Errorf("%w: insert: %w", errors.ErrDatabase, err)
}

// bulkInserted derives the inserted count of an unordered insert from its
// error. It reports false when the error says nothing about individual
// documents.
func bulkInserted(attempted int, err error) (int, bool) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return 0, false
	}

	rejected := make(map[int]struct{}, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		rejected[we.Index] = struct{}{}
	}

	inserted := attempted - len(rejected)
	if inserted < 0 {
		inserted = 0
	}
	return inserted, true
}

// Find streams matching readings sorted by Date.
func (s *Store) Find(ctx context.Context, plan *query.Plan) (query.Cursor, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	s.stats.Queries.Add(1)

	opts := options.Find().SetSort(bson.D{{Key: dateKey, Value: 1}})
	if plan.Limit > 0 {
		opts.SetLimit(int64(plan.Limit))
	}
	if plan.AllowDiskUse {
		opts.SetAllowDiskUse(true)
	}

	cur, err := s.coll.Find(ctx, filter(plan.Match), opts)
	if err != nil {
		return nil, wrapQueryErr("find", err)
	}
	return &cursor{ctx: ctx, cur: cur}, nil
}

type cursor struct {
	ctx     context.Context
	cur     *mongo.Cursor
	current types.Reading
	err     error
}

func (c *cursor) Next() bool {
	if c.err != nil || !c.cur.Next(c.ctx) {
		return false
	}

	r, err := fromRaw(c.cur.Current)
	if err != nil {
		c.err = err
		return false
	}
	c.current = r
	return true
}

func (c *cursor) Reading() types.Reading { return c.current }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close() error { return c.cur.Close(c.ctx) }

// Aggregate runs the grouping pipeline for plan.
func (s *Store) Aggregate(ctx context.Context, plan *query.Plan) ([]query.Group, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	s.stats.Queries.Add(1)

	p, err := pipeline(plan)
	if err != nil {
		return nil, err
	}

	cur, err := s.coll.Aggregate(ctx, p, options.Aggregate().SetAllowDiskUse(plan.AllowDiskUse))
	if err != nil {
		return nil, wrapQueryErr("aggregate", err)
	}
	defer cur.Close(ctx)

	var groups []query.Group
	for cur.Next(ctx) {
		groups = append(groups, groupFromRaw(cur.Current, plan.Fields))
	}
	if err := cur.Err(); err != nil {
		return nil, wrapQueryErr("aggregate", err)
	}
	return groups, nil
}

func wrapQueryErr(op string, err error) error {
	if mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %w", errors.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", errors.ErrDatabase, op, err)
}

// =============================================================================
// Documents
// =============================================================================

func document(r *types.Reading) bson.D {
	doc := make(bson.D, 0, types.NumFields+2)
	doc = append(doc,
		bson.E{Key: dateKey, Value: r.Timestamp.UTC()},
		bson.E{Key: clockKey, Value: r.Clock},
	)
	for i, d := range types.Fields() {
		var v any
		if r.Values[i].Valid {
			v = r.Values[i].Float
		}
		doc = append(doc, bson.E{Key: d.Name, Value: v})
	}
	return doc
}

func fromRaw(raw bson.Raw) (types.Reading, error) {
	ts, ok := raw.Lookup(dateKey).TimeOK()
	if !ok {
		return types.Reading{}, fmt.Errorf("%w: document without %s", errors.ErrDatabase, dateKey)
	}

	clock, _ := raw.Lookup(clockKey).StringValueOK()
	r := types.Reading{Timestamp: ts.UTC(), Clock: clock}
	for i, d := range types.Fields() {
		if v, ok := number(raw.Lookup(d.Name)); ok {
			r.Values[i] = types.Some(v)
		}
	}
	return r, nil
}

func groupFromRaw(raw bson.Raw, fields []types.Field) query.Group {
	id, _ := raw.Lookup("_id").StringValueOK()

	g := query.Group{ID: id, Values: make([]types.FieldAggregate, len(fields))}
	for i, f := range fields {
		v, ok := number(raw.Lookup(f.String()))
		n, _ := number(raw.Lookup(f.String() + countSuffix))
		g.Values[i] = types.FieldAggregate{
			Field: f,
			Value: v,
			Valid: ok && n > 0,
			Count: int64(n),
		}
	}
	return g
}

// number reads a numeric BSON value. Null, missing and non-numeric values
// report false.
func number(v bson.RawValue) (float64, bool) {
	if f, ok := v.DoubleOK(); ok {
		return f, true
	}
	if i, ok := v.Int32OK(); ok {
		return float64(i), true
	}
	if i, ok := v.Int64OK(); ok {
		return float64(i), true
	}
	return 0, false
}

// =============================================================================
// Pipeline
// =============================================================================

func filter(r types.TimeRange) bson.D {
	bounds := bson.D{}
	if r.From != nil {
		bounds = append(bounds, bson.E{Key: "$gte", Value: r.From.UTC()})
	}
	if r.To != nil {
		bounds = append(bounds, bson.E{Key: "$lte", Value: r.To.UTC()})
	}

	if len(bounds) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: dateKey, Value: bounds}}
}

// pipeline builds $match, $group, $sort and $project stages. Every field
// gets its reduced value and a count of numeric values under <name>_n.
func pipeline(plan *query.Plan) (mongo.Pipeline, error) {
	op, err := reducerOp(plan.Reducer)
	if err != nil {
		return nil, err
	}
	if len(plan.Fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to aggregate", errors.ErrInvalidParameter)
	}

	var id any
	if plan.Grouped() {
		id = bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "format", Value: plan.Interval.Layout()},
			{Key: "date", Value: "$" + dateKey},
			{Key: "timezone", Value: "UTC"},
		}}}
	}

	group := bson.D{{Key: "_id", Value: id}}
	project := bson.D{{Key: "_id", Value: 1}}
	for _, f := range plan.Fields {
		ref := "$" + f.String()
		group = append(group,
			bson.E{Key: f.String(), Value: bson.D{{Key: op, Value: ref}}},
			bson.E{Key: f.String() + countSuffix, Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{bson.D{{Key: "$isNumber", Value: ref}}, 1, 0}},
			}}}},
		)
		project = append(project,
			bson.E{Key: f.String(), Value: 1},
			bson.E{Key: f.String() + countSuffix, Value: 1},
		)
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: filter(plan.Match)}},
		{{Key: "$group", Value: group}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: project}},
	}, nil
}

func reducerOp(r types.Reducer) (string, error) {
	switch r {
	case types.ReducerSum:
		return "$sum", nil
	case types.ReducerAvg:
		return "$avg", nil
	case types.ReducerMin:
		return "$min", nil
	case types.ReducerMax:
		return "$max", nil
	default:
		return "", fmt.Errorf("%w: %s", errors.ErrInvalidReducer, r)
	}
}
