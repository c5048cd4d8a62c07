package docstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/metrics"
)

// Instrumented wraps a Store with a per-call timeout, Prometheus metrics,
// and WARN logs on transport failures.  A zero timeout leaves the caller's
// deadline untouched.
type Instrumented struct {
	inner   Store
	timeout time.Duration
	log     *zap.Logger
}

// Instrument decorates s.  log may be nil.
func Instrument(s Store, timeout time.Duration, log *zap.Logger) *Instrumented {
	if log == nil {
		log = zap.NewNop()
	}
	return &Instrumented{inner: s, timeout: timeout, log: log}
}

func (s *Instrumented) Collection(name string) Collection {
	return &instrumentedCollection{inner: s.inner.Collection(name), parent: s}
}

func (s *Instrumented) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := s.observe(ctx, "", "now", func(ctx context.Context) (err error) {
		now, err = s.inner.Now(ctx)
		return err
	})
	return now, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	err := s.observe(ctx, "", "ping", s.inner.Ping)
	if err != nil {
		metrics.StoreUp.Set(0)
	} else {
		metrics.StoreUp.Set(1)
	}
	return err
}

func (s *Instrumented) Close(ctx context.Context) error { return s.inner.Close(ctx) }

// observe runs fn under the configured timeout and records the outcome.
func (s *Instrumented) observe(ctx context.Context, coll, op string, fn func(context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil && !errs.IsUnavailable(err) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = &errs.StoreUnavailableError{Op: op, Err: err}
	}

	outcome := errs.Kind(err)
	metrics.StoreOpSeconds.WithLabelValues(coll, op).Observe(elapsed.Seconds())
	metrics.StoreOpsTotal.WithLabelValues(coll, op, outcome).Inc()

	switch outcome {
	case "ok", "not_found":
	case "unavailable", "error":
		s.log.Warn("store op failed",
			zap.String("collection", coll),
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	default:
		s.log.Debug("store op rejected",
			zap.String("collection", coll),
			zap.String("op", op),
			zap.Error(err))
	}
	return err
}

/*──────────────────────────────── collection ───────────────────────────────*/

type instrumentedCollection struct {
	inner  Collection
	parent *Instrumented
}

func (c *instrumentedCollection) Name() string { return c.inner.Name() }

func (c *instrumentedCollection) run(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.parent.observe(ctx, c.inner.Name(), op, fn)
}

func (c *instrumentedCollection) FindOne(ctx context.Context, filter bson.D, out any) error {
	return c.run(ctx, "findOne", func(ctx context.Context) error {
		return c.inner.FindOne(ctx, filter, out)
	})
}

func (c *instrumentedCollection) Find(ctx context.Context, filter bson.D, opts FindOptions, out any) error {
	return c.run(ctx, "find", func(ctx context.Context) error {
		return c.inner.Find(ctx, filter, opts, out)
	})
}

func (c *instrumentedCollection) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	return c.run(ctx, "aggregate", func(ctx context.Context) error {
		return c.inner.Aggregate(ctx, pipeline, out)
	})
}

func (c *instrumentedCollection) CountDocuments(ctx context.Context, filter bson.D) (n int64, err error) {
	err = c.run(ctx, "count", func(ctx context.Context) (err error) {
		n, err = c.inner.CountDocuments(ctx, filter)
		return err
	})
	return n, err
}

func (c *instrumentedCollection) InsertOne(ctx context.Context, doc any) error {
	return c.run(ctx, "insertOne", func(ctx context.Context) error {
		return c.inner.InsertOne(ctx, doc)
	})
}

func (c *instrumentedCollection) InsertMany(ctx context.Context, docs []any) (n int64, err error) {
	err = c.run(ctx, "insertMany", func(ctx context.Context) (err error) {
		n, err = c.inner.InsertMany(ctx, docs)
		return err
	})
	return n, err
}

func (c *instrumentedCollection) UpdateOne(ctx context.Context, filter, update bson.D) (n int64, err error) {
	err = c.run(ctx, "updateOne", func(ctx context.Context) (err error) {
		n, err = c.inner.UpdateOne(ctx, filter, update)
		return err
	})
	return n, err
}

func (c *instrumentedCollection) DeleteOne(ctx context.Context, filter bson.D) (n int64, err error) {
	err = c.run(ctx, "deleteOne", func(ctx context.Context) (err error) {
		n, err = c.inner.DeleteOne(ctx, filter)
		return err
	})
	return n, err
}

func (c *instrumentedCollection) DeleteMany(ctx context.Context, filter bson.D) (n int64, err error) {
	err = c.run(ctx, "deleteMany", func(ctx context.Context) (err error) {
		n, err = c.inner.DeleteMany(ctx, filter)
		return err
	})
	return n, err
}
