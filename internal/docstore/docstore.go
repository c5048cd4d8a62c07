// internal/docstore/docstore.go
//
// Store-client port.
//
// Context
// -------
// The data layer speaks to the document store only through the two
// interfaces below.  Filters, sort specs, and aggregation pipelines are
// expressed in the driver's own vocabulary (bson.D and mongo.Pipeline), so
// the adapter, analytics, and mutation packages build exactly what the
// server executes.
//
// Three implementations ship in this package:
//
//	Mongo         – production client, opened with Open and released with
//	                Close.
//	Instrumented  – decorator adding per-call timeouts, metrics, logging,
//	                and StoreUnavailable translation.
//	Memory        – in-process store evaluating the same filters and
//	                pipelines, used by the package tests and the
//	                server and mutation suites.
//
// Error contract
// --------------
//   - FindOne on no match              → errs.ErrNotFound
//   - uniqueness violation             → wraps errs.ErrDuplicate
//   - transport failure, timeout, or
//     cancelled context                → *errs.StoreUnavailableError
//
// No implementation retries.
//
// Notes
// -----
//   - There is no process-wide store handle.  Callers open a Store and pass
//     it to the constructors that need it.
//   - Oxford commas, two spaces after periods.
package docstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// FindOptions controls Find.  A zero Limit means unlimited.
type FindOptions struct {
	Sort  bson.D
	Limit int64
}

// Collection is one named collection.
type Collection interface {
	Name() string

	// FindOne decodes the first match into out, or returns errs.ErrNotFound.
	FindOne(ctx context.Context, filter bson.D, out any) error

	// Find decodes every match into out, which must point to a slice.
	Find(ctx context.Context, filter bson.D, opts FindOptions, out any) error

	// Aggregate runs pipeline and decodes the result rows into out, which
	// must point to a slice.
	Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error

	CountDocuments(ctx context.Context, filter bson.D) (int64, error)

	InsertOne(ctx context.Context, doc any) error

	// InsertMany is one unordered batch.  It reports how many documents
	// were written even when some were rejected.
	InsertMany(ctx context.Context, docs []any) (int64, error)

	// UpdateOne applies update to the first match and reports the matched
	// count.
	UpdateOne(ctx context.Context, filter, update bson.D) (int64, error)

	DeleteOne(ctx context.Context, filter bson.D) (int64, error)
	DeleteMany(ctx context.Context, filter bson.D) (int64, error)
}

// Store is an open connection to one database.
type Store interface {
	Collection(name string) Collection

	// Now reports the store's clock.  Timestamps are stamped with it so
	// callers on skewed hosts agree.
	Now(ctx context.Context) (time.Time, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
