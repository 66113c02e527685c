package mongostore

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/query"
	"github.com/xtxerr/airq/internal/storage/types"
)

func plan(t *testing.T, spec query.Spec) *query.Plan {
	t.Helper()

	p, err := query.NewPlanner(query.PlannerOptions{AllowDiskUse: true}).Plan(spec)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return p
}

func marshal(t *testing.T, v any) bson.Raw {
	t.Helper()

	data, err := bson.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return bson.Raw(data)
}

func TestFilter(t *testing.T) {
	if f := filter(types.TimeRange{}); len(f) != 0 {
		t.Errorf("expected empty filter, got %v", f)
	}

	from := time.Date(2004, 3, 10, 0, 0, 0, 0, time.UTC)
	f := filter(types.TimeRange{From: &from})
	if len(f) != 1 || f[0].Key != dateKey {
		t.Fatalf("expected filter on %s, got %v", dateKey, f)
	}

	bounds := f[0].Value.(bson.D)
	if len(bounds) != 1 || bounds[0].Key != "$gte" {
		t.Errorf("expected only $gte, got %v", bounds)
	}
	if !bounds[0].Value.(time.Time).Equal(from) {
		t.Errorf("expected %v, got %v", from, bounds[0].Value)
	}
}

func TestPipelineGrouped(t *testing.T) {
	p, err := pipeline(plan(t, query.Spec{Kind: query.KindSeries, Parameter: "NO2", Interval: "monthly", Reducer: "max"}))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	if len(p) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(p))
	}
	for i, want := range []string{"$match", "$group", "$sort", "$project"} {
		if p[i][0].Key != want {
			t.Errorf("stage %d: expected %s, got %s", i, want, p[i][0].Key)
		}
	}

	group := p[1][0].Value.(bson.D)
	id := group[0].Value.(bson.D)[0]
	if id.Key != "$dateToString" {
		t.Fatalf("expected $dateToString key, got %s", id.Key)
	}
	args := id.Value.(bson.D)
	if args[0].Value != "%Y-%m" {
		t.Errorf("expected monthly format, got %v", args[0].Value)
	}

	if group[1].Key != "NO2" || group[1].Value.(bson.D)[0].Key != "$max" {
		t.Errorf("expected NO2 reduced with $max, got %v", group[1])
	}
	if group[2].Key != "NO2"+countSuffix {
		t.Errorf("expected count of NO2, got %s", group[2].Key)
	}
}

func TestPipelineSummary(t *testing.T) {
	p, err := pipeline(plan(t, query.Spec{Kind: query.KindSummary}))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	group := p[1][0].Value.(bson.D)
	if group[0].Value != nil {
		t.Errorf("summary should group by null, got %v", group[0].Value)
	}
	if want := 1 + 2*types.NumFields; len(group) != want {
		t.Errorf("expected %d group keys, got %d", want, len(group))
	}
	if group[1].Value.(bson.D)[0].Key != "$avg" {
		t.Errorf("expected $avg, got %v", group[1].Value)
	}
}

func TestPipelineInvalidReducer(t *testing.T) {
	_, err := pipeline(&query.Plan{Fields: types.AllFields()})
	if !errors.Is(err, errors.ErrInvalidReducer) {
		t.Errorf("expected ErrInvalidReducer, got %v", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	r := types.Reading{
		Timestamp: time.Date(2004, 3, 10, 18, 0, 0, 0, time.UTC),
		Clock:     "18.00.00",
	}
	r.Values[types.FieldCO] = types.Some(2.6)
	r.Values[types.FieldT] = types.Some(0)

	doc := document(&r)
	if doc[0].Key != dateKey || doc[1].Key != clockKey {
		t.Fatalf("expected Date and Time first, got %s, %s", doc[0].Key, doc[1].Key)
	}
	for _, e := range doc[2:] {
		if e.Key == "NO2" && e.Value != nil {
			t.Errorf("missing value should be stored as null, got %v", e.Value)
		}
	}

	got, err := fromRaw(marshal(t, doc))
	if err != nil {
		t.Fatalf("fromRaw: %v", err)
	}
	if !got.Timestamp.Equal(r.Timestamp) || got.Clock != r.Clock {
		t.Errorf("expected %v %s, got %v %s", r.Timestamp, r.Clock, got.Timestamp, got.Clock)
	}
	if got.Values != r.Values {
		t.Errorf("expected values %v, got %v", r.Values, got.Values)
	}
}

func TestFromRawWithoutDate(t *testing.T) {
	_, err := fromRaw(marshal(t, bson.D{{Key: clockKey, Value: "18.00.00"}}))
	if !errors.Is(err, errors.ErrDatabase) {
		t.Errorf("expected ErrDatabase, got %v", err)
	}
}

func TestGroupFromRaw(t *testing.T) {
	fields := []types.Field{types.FieldCO, types.FieldNO2, types.FieldT}
	raw := marshal(t, bson.D{
		{Key: "_id", Value: "2004-03"},
		{Key: "CO", Value: 4.0},
		{Key: "CO_n", Value: int32(2)},
		{Key: "NO2", Value: nil},
		{Key: "NO2_n", Value: int32(0)},
		{Key: "T", Value: int64(0)},
		{Key: "T_n", Value: int32(0)},
	})

	g := groupFromRaw(raw, fields)
	if g.ID != "2004-03" {
		t.Errorf("expected 2004-03, got %s", g.ID)
	}
	if v := g.Values[0]; !v.Valid || v.Value != 4 || v.Count != 2 {
		t.Errorf("expected CO 4 over 2, got %+v", v)
	}
	if g.Values[1].Valid {
		t.Error("null aggregate should be invalid")
	}
	if g.Values[2].Valid {
		t.Error("aggregate with zero count should be invalid")
	}

	if g := groupFromRaw(marshal(t, bson.D{{Key: "_id", Value: nil}}), fields); g.ID != "" {
		t.Errorf("expected empty id, got %q", g.ID)
	}
}

func TestBulkInserted(t *testing.T) {
	err := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "duplicate key"}},
			{WriteError: mongo.WriteError{Index: 4, Code: 121, Message: "validation failed"}},
		},
	}

	n, ok := bulkInserted(10, err)
	if !ok || n != 8 {
		t.Errorf("expected 8 inserted, got %d (%v)", n, ok)
	}

	if _, ok := bulkInserted(10, errors.New("network")); ok {
		t.Error("plain error should not report a partial insert")
	}
}

func TestClosedStore(t *testing.T) {
	s := &Store{}
	s.closed.Store(true)

	if _, err := s.InsertMany(context.Background(), []types.Reading{{}}); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.Find(context.Background(), &query.Plan{}); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
