// internal/docstore/memory.go
//
// In-process Store.
//
// Context
// -------
// Memory keeps every collection as a slice of bson.M documents in insertion
// order and evaluates the same bson.D filters and mongo.Pipeline stages the
// Mongo implementation sends to the server (see eval.go for the supported
// subset).  Documents pass through bson.Marshal on the way in and out, so
// struct tags, inline fields, and millisecond date resolution behave as
// they do against a real server.
//
// Notes
// -----
//   - users.email is unique among present values, mirroring the partial
//     unique index created by Mongo.EnsureIndexes.
//   - After Close every call fails with *errs.StoreUnavailableError.
//   - A cancelled or expired context fails the same way before any work is
//     done, which lets tests exercise the timeout path.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/record"
)

var errClosed = errors.New("store closed")

// uniqueFields mirrors the unique indexes of Mongo.EnsureIndexes.  _id is
// always unique.
var uniqueFields = map[string][]string{
	record.CollUsers: {"email"},
}

// Memory is a Store held entirely in process memory.  Safe for concurrent
// use.
type Memory struct {
	mu     sync.RWMutex
	colls  map[string][]bson.M
	clock  func() time.Time
	closed bool
}

// NewMemory returns an empty store whose clock is time.Now.
func NewMemory() *Memory {
	return &Memory{colls: map[string][]bson.M{}, clock: time.Now}
}

// SetClock replaces the store clock.
func (m *Memory) SetClock(clock func() time.Time) {
	m.mu.Lock()
	m.clock = clock
	m.mu.Unlock()
}

func (m *Memory) Collection(name string) Collection {
	return &memCollection{m: m, name: name}
}

func (m *Memory) Now(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.usable(ctx, "now"); err != nil {
		return time.Time{}, err
	}
	return m.clock().UTC().Truncate(time.Millisecond), nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usable(ctx, "ping")
}

func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// usable must be called with m.mu held.
func (m *Memory) usable(ctx context.Context, op string) error {
	if m.closed {
		return &errs.StoreUnavailableError{Op: op, Err: errClosed}
	}
	if err := ctx.Err(); err != nil {
		return &errs.StoreUnavailableError{Op: op, Err: err}
	}
	return nil
}

/*──────────────────────────────── collection ───────────────────────────────*/

type memCollection struct {
	m    *Memory
	name string
}

func (c *memCollection) Name() string { return c.name }

// selectDocs returns the documents matching filter, in insertion order.
// Caller holds the read lock.
func (c *memCollection) selectDocs(filter bson.D) ([]bson.M, error) {
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	var out []bson.M
	for _, d := range c.m.colls[c.name] {
		ok, err := matches(d, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *memCollection) FindOne(ctx context.Context, filter bson.D, out any) error {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	if err := c.m.usable(ctx, "findOne"); err != nil {
		return err
	}
	docs, err := c.selectDocs(filter)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return errs.ErrNotFound
	}
	return decodeDoc(docs[0], out)
}

func (c *memCollection) Find(ctx context.Context, filter bson.D, opts FindOptions, out any) error {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	if err := c.m.usable(ctx, "find"); err != nil {
		return err
	}
	docs, err := c.selectDocs(filter)
	if err != nil {
		return err
	}
	if len(opts.Sort) > 0 {
		if err := sortDocs(docs, opts.Sort); err != nil {
			return err
		}
	}
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return decodeAll(docs, out)
}

func (c *memCollection) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	if err := c.m.usable(ctx, "aggregate"); err != nil {
		return err
	}
	input := append([]bson.M(nil), c.m.colls[c.name]...)
	rows, err := runPipeline(input, pipeline)
	if err != nil {
		return err
	}
	return decodeAll(rows, out)
}

func (c *memCollection) CountDocuments(ctx context.Context, filter bson.D) (int64, error) {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	if err := c.m.usable(ctx, "count"); err != nil {
		return 0, err
	}
	docs, err := c.selectDocs(filter)
	return int64(len(docs)), err
}

func (c *memCollection) InsertOne(ctx context.Context, doc any) error {
	d, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.usable(ctx, "insertOne"); err != nil {
		return err
	}
	if err := c.checkUnique(d, -1); err != nil {
		return fmt.Errorf("insertOne: %w", err)
	}
	c.m.colls[c.name] = append(c.m.colls[c.name], d)
	return nil
}

// InsertMany is unordered: a rejected document does not stop the rest.
func (c *memCollection) InsertMany(ctx context.Context, docs []any) (int64, error) {
	encoded := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		d, err := encodeDoc(doc)
		if err != nil {
			return 0, err
		}
		encoded = append(encoded, d)
	}

	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.usable(ctx, "insertMany"); err != nil {
		return 0, err
	}
	var (
		n        int64
		firstErr error
	)
	for _, d := range encoded {
		if err := c.checkUnique(d, -1); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.m.colls[c.name] = append(c.m.colls[c.name], d)
		n++
	}
	if firstErr != nil {
		return n, fmt.Errorf("insertMany: %w", firstErr)
	}
	return n, nil
}

func (c *memCollection) UpdateOne(ctx context.Context, filter, update bson.D) (int64, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.usable(ctx, "updateOne"); err != nil {
		return 0, err
	}
	if err := checkFilter(filter); err != nil {
		return 0, err
	}
	if err := checkUpdate(update); err != nil {
		return 0, err
	}
	docs := c.m.colls[c.name]
	for i, d := range docs {
		ok, err := matches(d, filter)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		next, err := applyUpdate(d, update)
		if err != nil {
			return 0, err
		}
		if err := c.checkUnique(next, i); err != nil {
			return 0, fmt.Errorf("updateOne: %w", err)
		}
		docs[i] = next
		return 1, nil
	}
	return 0, nil
}

func (c *memCollection) DeleteOne(ctx context.Context, filter bson.D) (int64, error) {
	return c.delete(ctx, "deleteOne", filter, 1)
}

func (c *memCollection) DeleteMany(ctx context.Context, filter bson.D) (int64, error) {
	return c.delete(ctx, "deleteMany", filter, -1)
}

// delete removes up to max matches; a negative max removes all.
func (c *memCollection) delete(ctx context.Context, op string, filter bson.D, max int) (int64, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.usable(ctx, op); err != nil {
		return 0, err
	}
	if err := checkFilter(filter); err != nil {
		return 0, err
	}
	var (
		kept    []bson.M
		removed int64
	)
	for _, d := range c.m.colls[c.name] {
		if max < 0 || removed < int64(max) {
			ok, err := matches(d, filter)
			if err != nil {
				return 0, err
			}
			if ok {
				removed++
				continue
			}
		}
		kept = append(kept, d)
	}
	c.m.colls[c.name] = kept
	return removed, nil
}

// checkUnique rejects d when its _id or a unique field collides with a
// stored document other than the one at index skip.  Caller holds the
// write lock.
func (c *memCollection) checkUnique(d bson.M, skip int) error {
	fields := append([]string{"_id"}, uniqueFields[c.name]...)
	for i, other := range c.m.colls[c.name] {
		if i == skip {
			continue
		}
		for _, f := range fields {
			v, ok := d[f]
			if !ok || v == nil {
				continue
			}
			if w, ok := other[f]; ok && equalValues(v, w) {
				return fmt.Errorf("%s.%s %v: %w", c.name, f, v, errs.ErrDuplicate)
			}
		}
	}
	return nil
}

/*──────────────────────────────── codec ────────────────────────────────────*/

// encodeDoc normalises any bson-marshalable value into a bson.M.  A missing
// _id gets a fresh ObjectID, as the server would assign.
func encodeDoc(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode %T: %w", doc, err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode %T: %w", doc, err)
	}
	if _, ok := out["_id"]; !ok {
		out["_id"] = primitive.NewObjectID()
	}
	return out, nil
}

func decodeDoc(doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return bson.Unmarshal(raw, out)
}

// decodeAll decodes docs into *[]T, replacing its contents.
func decodeAll(docs []bson.M, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("docstore: results argument must be a pointer to a slice, got %T", out)
	}
	sv := rv.Elem()
	res := reflect.MakeSlice(sv.Type(), 0, len(docs))
	for _, d := range docs {
		ep := reflect.New(sv.Type().Elem())
		if err := decodeDoc(d, ep.Interface()); err != nil {
			return err
		}
		res = reflect.Append(res, ep.Elem())
	}
	sv.Set(res)
	return nil
}
