// internal/docstore/mongo.go
//
// MongoDB implementation of Store.
//
// Workflow
// --------
//  1. Open connects, disables driver-level retries, and pings the primary
//     so bootstrap fails fast on a bad URI.
//  2. EnsureIndexes creates the indexes the data layer relies on, most
//     importantly the partial unique index on users.email.
//  3. Close disconnects.  The Mongo value is unusable afterwards.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/record"
)

// Options configures Open.
type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Mongo is a Store backed by a *mongo.Client.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to opts.URI and pings the primary.
func Open(ctx context.Context, opts Options) (*Mongo, error) {
	co := options.Client().
		ApplyURI(opts.URI).
		SetRetryReads(false).
		SetRetryWrites(false)
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
		co.SetServerSelectionTimeout(opts.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, translate("connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, translate("ping", err)
	}
	return &Mongo{client: client, db: client.Database(opts.Database)}, nil
}

func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{coll: m.db.Collection(name)}
}

// Now reads localTime from the hello command.
func (m *Mongo) Now(ctx context.Context) (time.Time, error) {
	var reply struct {
		LocalTime time.Time `bson:"localTime"`
	}
	err := m.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	if err != nil {
		return time.Time{}, translate("hello", err)
	}
	return reply.LocalTime.UTC(), nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return translate("ping", m.client.Ping(ctx, readpref.Primary()))
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes queried by the adapter and analytics
// packages.  It is idempotent.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		record.CollUsers: {{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("uniq_email").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "email", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		}},
		record.CollVideos: {
			{Keys: bson.D{{Key: "site_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "site_id", Value: 1}, {Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		record.CollVisits: {
			{Keys: bson.D{{Key: "site_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		record.CollStatsAdjustments: {
			{Keys: bson.D{{Key: "video_id", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes on %s: %w", coll, translate("createIndexes", err))
		}
	}
	return nil
}

/*──────────────────────────────── collection ───────────────────────────────*/

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.coll.Name() }

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.D, out any) error {
	return translate("findOne", c.coll.FindOne(ctx, filter).Decode(out))
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.D, opts FindOptions, out any) error {
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	cur, err := c.coll.Find(ctx, filter, fo)
	if err != nil {
		return translate("find", err)
	}
	return translate("find", cur.All(ctx, out))
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return translate("aggregate", err)
	}
	return translate("aggregate", cur.All(ctx, out))
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter bson.D) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter)
	return n, translate("count", err)
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return translate("insertOne", err)
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []any) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	res, err := c.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return int64(len(res.InsertedIDs)), nil
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		return int64(len(docs) - len(bwe.WriteErrors)), translate("insertMany", err)
	}
	return 0, translate("insertMany", err)
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update bson.D) (int64, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, translate("updateOne", err)
	}
	return res.MatchedCount, nil
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.D) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, translate("deleteOne", err)
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter bson.D) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, translate("deleteMany", err)
	}
	return res.DeletedCount, nil
}

// translate maps driver errors onto the errs kinds.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return errs.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, errs.ErrDuplicate)
	case unavailable(err):
		return &errs.StoreUnavailableError{Op: op, Err: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func unavailable(err error) bool {
	return mongo.IsTimeout(err) ||
		mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
