// internal/adapter/adapter.go
//
// Record store adapter.
//
// Context
// -------
// The adapter is the only read path into the document store.  It accepts a
// shape.Query (or, for older callers, a template plus positional params
// that shape.Classify turns into one) and executes the matching store
// operation:
//
//	point shapes        → FindOne on the entity collection
//	video list shapes   → Find with the shape's filter, sort, and limit
//	visit aggregations  → analytics.Engine
//
// Nothing is cached.  Every call round-trips to the store, so a result is
// at most one call latency stale.
//
// Workflow
// --------
//  1. Validate the query's parameters.
//  2. Count the lookup by shape.
//  3. Plan (collection, filter, sort, limit) or dispatch to analytics.
//  4. Decode into typed records.
//
// Notes
// -----
//   - ErrNotFound from LookupOne is a valid empty result, not a fault.
//   - There is no raw-query escape hatch.  Callers can only reach the
//     store through the shapes declared in package shape.
//   - Oxford commas, two spaces after periods.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/analytics"
	"github.com/yanizio/vidcat/internal/docstore"
	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/metrics"
	"github.com/yanizio/vidcat/internal/record"
	"github.com/yanizio/vidcat/internal/shape"
)

// Adapter executes query shapes against a Store.
type Adapter struct {
	store      docstore.Store
	engine     *analytics.Engine
	classifier shape.Classifier
	log        *zap.Logger
}

// New wires an Adapter.  Date-string window bounds in templates are read in
// the engine's timezone.  log may be nil.
func New(store docstore.Store, engine *analytics.Engine, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		store:      store,
		engine:     engine,
		classifier: shape.Classifier{Location: engine.Location()},
		log:        log,
	}
}

// Rows is the result of LookupMany.  Only the field matching Kind is set.
type Rows struct {
	Kind      shape.Kind
	Users     []record.User
	Sites     []record.Site
	Videos    []record.Video
	Countries []analytics.CountryCount
	Languages []analytics.LanguageCount
	Days      []analytics.DayCount
	Total     int64
}

// Len reports the number of rows.  VisitsTotalCount always has one.
func (r Rows) Len() int {
	switch r.Kind {
	case shape.KindVisitsTotal:
		return 1
	case shape.KindVisitsByCountry:
		return len(r.Countries)
	case shape.KindVisitsByLanguage:
		return len(r.Languages)
	case shape.KindVisitsByDate:
		return len(r.Days)
	}
	return len(r.Users) + len(r.Sites) + len(r.Videos)
}

// Records returns entity rows as records.  Aggregation rows are not
// records and yield nil.
func (r Rows) Records() []record.Record {
	var out []record.Record
	for i := range r.Users {
		out = append(out, &r.Users[i])
	}
	for i := range r.Sites {
		out = append(out, &r.Sites[i])
	}
	for i := range r.Videos {
		out = append(out, &r.Videos[i])
	}
	return out
}

/*──────────────────────────────── planning ─────────────────────────────────*/

type plan struct {
	coll   string
	filter bson.D
	opts   docstore.FindOptions
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}}

func byID(id string) bson.D { return bson.D{{Key: "_id", Value: id}} }

// planFor maps an entity shape to its store call.  ok is false for visit
// aggregations.
func planFor(q shape.Query) (p plan, ok bool) {
	switch q := q.(type) {
	case shape.UserByEmail:
		return plan{coll: record.CollUsers, filter: bson.D{{Key: "email", Value: q.Email}}}, true
	case shape.UserByID:
		return plan{coll: record.CollUsers, filter: byID(q.ID)}, true
	case shape.SiteByID:
		return plan{coll: record.CollSites, filter: byID(q.ID)}, true
	case shape.VideoByID:
		return plan{coll: record.CollVideos, filter: byID(q.ID)}, true
	case shape.VideosBySiteAndOwner:
		return plan{
			coll: record.CollVideos,
			filter: bson.D{
				{Key: "site_id", Value: q.SiteID},
				{Key: "owner_id", Value: q.OwnerID},
			},
			opts: docstore.FindOptions{Sort: newestFirst},
		}, true
	case shape.PublicVideosBySite:
		return plan{
			coll: record.CollVideos,
			filter: bson.D{
				{Key: "site_id", Value: q.SiteID},
				{Key: "visibility", Value: record.VisibilityPublic},
				{Key: "status", Value: record.VideoActive},
			},
			opts: docstore.FindOptions{Sort: newestFirst, Limit: shape.PublicListingLimit},
		}, true
	case shape.VideosBySite:
		return plan{
			coll:   record.CollVideos,
			filter: bson.D{{Key: "site_id", Value: q.SiteID}},
			opts:   docstore.FindOptions{Sort: newestFirst},
		}, true
	}
	return plan{}, false
}

/*──────────────────────────────── lookups ──────────────────────────────────*/

// LookupOne returns the single record a point shape resolves to, or the
// first row of a video list shape.  A miss is ErrNotFound.
func (a *Adapter) LookupOne(ctx context.Context, q shape.Query) (record.Record, error) {
	if err := a.admit(q); err != nil {
		return nil, err
	}
	p, ok := planFor(q)
	if !ok {
		return nil, a.failed(q, errs.Invalid(q.Kind().String(), "shape", "aggregations do not yield a single record"))
	}
	if !shape.Point(q) {
		p.opts.Limit = 1
	}

	var (
		rec record.Record
		err error
	)
	switch p.coll {
	case record.CollUsers:
		rec, err = findOne[record.User](ctx, a.store, p)
	case record.CollSites:
		rec, err = findOne[record.Site](ctx, a.store, p)
	default:
		rec, err = findOne[record.Video](ctx, a.store, p)
	}
	if err != nil {
		return nil, a.failed(q, err)
	}
	return rec, nil
}

// LookupMany returns every row a shape yields, in the shape's order.
func (a *Adapter) LookupMany(ctx context.Context, q shape.Query) (Rows, error) {
	if err := a.admit(q); err != nil {
		return Rows{}, err
	}
	rows := Rows{Kind: q.Kind()}

	var err error
	switch q := q.(type) {
	case shape.VisitsByCountry:
		rows.Countries, err = a.engine.AggregateByCountry(ctx, q.SiteID, q.Window.Start, q.Window.End)
	case shape.VisitsByLanguage:
		rows.Languages, err = a.engine.AggregateByLanguage(ctx, q.SiteID, q.Window.Start, q.Window.End)
	case shape.VisitsByDate:
		rows.Days, err = a.engine.AggregateByDate(ctx, q.SiteID, q.Window.Start, q.Window.End)
	case shape.VisitsTotal:
		rows.Total, err = a.engine.TotalCount(ctx, q.SiteID, q.Window.Start, q.Window.End)
	default:
		p, _ := planFor(q)
		c := a.store.Collection(p.coll)
		switch p.coll {
		case record.CollUsers:
			err = c.Find(ctx, p.filter, p.opts, &rows.Users)
		case record.CollSites:
			err = c.Find(ctx, p.filter, p.opts, &rows.Sites)
		default:
			err = c.Find(ctx, p.filter, p.opts, &rows.Videos)
		}
	}
	if err != nil {
		return Rows{}, a.failed(q, err)
	}
	return rows, nil
}

// LookupOneTemplate classifies template and runs LookupOne.
func (a *Adapter) LookupOneTemplate(ctx context.Context, template string, params ...any) (record.Record, error) {
	q, err := a.classify(template, params)
	if err != nil {
		return nil, err
	}
	return a.LookupOne(ctx, q)
}

// LookupManyTemplate classifies template and runs LookupMany.
func (a *Adapter) LookupManyTemplate(ctx context.Context, template string, params ...any) (Rows, error) {
	q, err := a.classify(template, params)
	if err != nil {
		return Rows{}, err
	}
	return a.LookupMany(ctx, q)
}

func (a *Adapter) classify(template string, params []any) (shape.Query, error) {
	q, err := a.classifier.Classify(template, params...)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(errs.Kind(err)).Inc()
		if errs.IsUnclassified(err) {
			a.log.Error("unclassified query template", zap.String("template", template))
		}
		return nil, err
	}
	return q, nil
}

func (a *Adapter) admit(q shape.Query) error {
	if q == nil {
		return errs.Invalid("query", "shape", "is required")
	}
	metrics.LookupsTotal.WithLabelValues(q.Kind().String()).Inc()
	if err := q.Validate(); err != nil {
		metrics.ErrorsTotal.WithLabelValues(errs.Kind(err)).Inc()
		return err
	}
	return nil
}

// failed counts err and tags it with the shape.  Misses are not counted.
func (a *Adapter) failed(q shape.Query, err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("%s: %w", q.Kind(), err)
	}
	metrics.ErrorsTotal.WithLabelValues(errs.Kind(err)).Inc()
	a.log.Debug("lookup failed", zap.Stringer("shape", q.Kind()), zap.Error(err))
	return fmt.Errorf("%s: %w", q.Kind(), err)
}

func findOne[T any, P interface {
	*T
	record.Record
}](ctx context.Context, store docstore.Store, p plan) (record.Record, error) {
	c := store.Collection(p.coll)
	if p.opts.Limit == 0 {
		var out T
		if err := c.FindOne(ctx, p.filter, P(&out)); err != nil {
			return nil, err
		}
		return P(&out), nil
	}
	var rows []T
	if err := c.Find(ctx, p.filter, p.opts, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.ErrNotFound
	}
	return P(&rows[0]), nil
}
