// internal/analytics/engine.go
//
// Aggregation engine over visit events.
//
// Context
// -------
// Every aggregation is scoped to one site and an inclusive window
// [start, end], matched as created_at >= start AND created_at <= end.  Each
// one is a single aggregation pipeline (or count) executed by the store.
//
//	AggregateByCountry   count desc, no limit, first-observed country_name
//	AggregateByLanguage  count desc, no limit
//	AggregateByDate      date desc, store-local day, at most DailyLimit rows
//	TotalCount           integer
//
// Workflow
// --------
//  1. Validate the scope (site id present, window not inverted).
//  2. Build the pipeline: $match → $sort by created_at → $group → $sort,
//     plus $limit for the daily series.
//  3. Decode the grouped rows straight into the result structs.  The group
//     key lands in `_id`, so no $project stage is needed.
//
// Notes
// -----
//   - Sorting by created_at before $group makes $first chronological, so a
//     country's name is whatever the earliest visit in the window carried.
//     Inconsistent historical naming surfaces as-is.
//   - Order among groups with equal counts is unspecified.  Do not write
//     tests or callers that depend on it.
//   - Oxford commas, two spaces after periods.
package analytics

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/docstore"
	"github.com/yanizio/vidcat/internal/record"
	"github.com/yanizio/vidcat/internal/shape"
)

// DailyLimit caps AggregateByDate.  Callers must not expect more than this
// many days of daily history, whatever the window.
const DailyLimit = 90

// dayFormat renders $dateToString buckets in DateLayout form.
const dayFormat = "%Y-%m-%d"

// CountryCount is one row of AggregateByCountry.
type CountryCount struct {
	CountryCode string `bson:"_id"          json:"country_code"`
	CountryName string `bson:"country_name" json:"country_name"`
	Count       int64  `bson:"count"        json:"count"`
}

// LanguageCount is one row of AggregateByLanguage.
type LanguageCount struct {
	Language string `bson:"_id"   json:"language"`
	Count    int64  `bson:"count" json:"count"`
}

// DayCount is one row of AggregateByDate.  Date is YYYY-MM-DD in the
// store timezone.
type DayCount struct {
	Date  string `bson:"_id"   json:"date"`
	Count int64  `bson:"count" json:"count"`
}

// Engine runs visit aggregations.
type Engine struct {
	store docstore.Store
	loc   *time.Location
	log   *zap.Logger
}

// New returns an Engine bucketing days in loc (nil means UTC).  log may be
// nil.
func New(store docstore.Store, loc *time.Location, log *zap.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, loc: loc, log: log}
}

// Location is the timezone used for daily buckets.
func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) visits() docstore.Collection { return e.store.Collection(record.CollVisits) }

// AggregateByCountry counts visits per country, highest first.
func (e *Engine) AggregateByCountry(ctx context.Context, siteID string, start, end time.Time) ([]CountryCount, error) {
	scope, err := scopeOf(siteID, start, end)
	if err != nil {
		return nil, err
	}
	var out []CountryCount
	if err := e.visits().Aggregate(ctx, countryPipeline(scope), &out); err != nil {
		return nil, e.fail("country", scope, err)
	}
	return out, nil
}

// AggregateByLanguage counts visits per language, highest first.
func (e *Engine) AggregateByLanguage(ctx context.Context, siteID string, start, end time.Time) ([]LanguageCount, error) {
	scope, err := scopeOf(siteID, start, end)
	if err != nil {
		return nil, err
	}
	var out []LanguageCount
	if err := e.visits().Aggregate(ctx, languagePipeline(scope), &out); err != nil {
		return nil, e.fail("language", scope, err)
	}
	return out, nil
}

// AggregateByDate counts visits per store-local day, newest first, at most
// DailyLimit rows.
func (e *Engine) AggregateByDate(ctx context.Context, siteID string, start, end time.Time) ([]DayCount, error) {
	scope, err := scopeOf(siteID, start, end)
	if err != nil {
		return nil, err
	}
	var out []DayCount
	if err := e.visits().Aggregate(ctx, datePipeline(scope, e.loc), &out); err != nil {
		return nil, e.fail("date", scope, err)
	}
	return out, nil
}

// TotalCount counts every visit in the window.
func (e *Engine) TotalCount(ctx context.Context, siteID string, start, end time.Time) (int64, error) {
	scope, err := scopeOf(siteID, start, end)
	if err != nil {
		return 0, err
	}
	n, err := e.visits().CountDocuments(ctx, matchScope(scope))
	if err != nil {
		return 0, e.fail("total", scope, err)
	}
	return n, nil
}

func (e *Engine) fail(agg string, scope shape.VisitScope, err error) error {
	e.log.Warn("aggregation failed",
		zap.String("aggregation", agg),
		zap.String("site_id", scope.SiteID),
		zap.Time("start", scope.Window.Start),
		zap.Time("end", scope.Window.End),
		zap.Error(err))
	return err
}

func scopeOf(siteID string, start, end time.Time) (shape.VisitScope, error) {
	s := shape.VisitScope{SiteID: siteID, Window: shape.Window{Start: start, End: end}}
	return s, s.Validate()
}

/*──────────────────────────────── pipelines ────────────────────────────────*/

func matchScope(s shape.VisitScope) bson.D {
	return bson.D{
		{Key: "site_id", Value: s.SiteID},
		{Key: "created_at", Value: bson.D{
			{Key: "$gte", Value: s.Window.Start},
			{Key: "$lte", Value: s.Window.End},
		}},
	}
}

var (
	chronological = bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}}}}
	countOne      = bson.D{{Key: "$sum", Value: 1}}
	byCountDesc   = bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}}
)

func countryPipeline(s shape.VisitScope) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: matchScope(s)}},
		chronological,
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$country_code"},
			{Key: "country_name", Value: bson.D{{Key: "$first", Value: "$country_name"}}},
			{Key: "count", Value: countOne},
		}}},
		byCountDesc,
	}
}

func languagePipeline(s shape.VisitScope) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: matchScope(s)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$language"},
			{Key: "count", Value: countOne},
		}}},
		byCountDesc,
	}
}

func datePipeline(s shape.VisitScope, loc *time.Location) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: matchScope(s)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: dayFormat},
				{Key: "date", Value: "$created_at"},
				{Key: "timezone", Value: loc.String()},
			}}}},
			{Key: "count", Value: countOne},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
		{{Key: "$limit", Value: DailyLimit}},
	}
}
