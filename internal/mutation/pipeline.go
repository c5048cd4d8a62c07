// internal/mutation/pipeline.go
//
// Mutation pipeline: every write into the document store.
//
// Context
// -------
// The store enforces neither foreign keys nor defaults.  This package does
// both, in the same order on every path:
//
//  1. Build the document through record.New* (defaults, ids, timestamps
//     from the store clock).
//  2. Validate it (struct tags, enums, counters ≥ 0).
//  3. Resolve every reference (site_id, owner_id, updated_by) through the
//     adapter.  A miss fails with *errs.ReferentialIntegrityError.
//  4. Issue exactly one store write.
//
// Steps 1–3 never write, so a rejected call leaves the store untouched.
//
// Notes
// -----
//   - The existence check and the write are two calls.  A site or user
//     deleted in between is an accepted race; this layer does not lock.
//   - Store failures are returned as-is.  Nothing is retried.
//   - Deleting a video leaves its stats_adjustments rows in place.
//   - Oxford commas, two spaces after periods.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/adapter"
	"github.com/yanizio/vidcat/internal/docstore"
	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/metrics"
	"github.com/yanizio/vidcat/internal/record"
)

// Pipeline performs validated writes.
type Pipeline struct {
	store  docstore.Store
	lookup *adapter.Adapter
	log    *zap.Logger
}

// New wires a Pipeline.  lookup must read from the same store.  log may be
// nil.
func New(store docstore.Store, lookup *adapter.Adapter, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{store: store, lookup: lookup, log: log}
}

func (p *Pipeline) coll(name string) docstore.Collection { return p.store.Collection(name) }

// now reads the store clock.
func (p *Pipeline) now(ctx context.Context) (time.Time, error) {
	t, err := p.store.Now(ctx)
	if err != nil {
		return time.Time{}, p.fail("now", err)
	}
	return t, nil
}

func (p *Pipeline) fail(op string, err error) error {
	metrics.ErrorsTotal.WithLabelValues(errs.Kind(err)).Inc()
	if errs.IsUnavailable(err) {
		p.log.Warn("mutation failed", zap.String("op", op), zap.Error(err))
	} else {
		p.log.Debug("mutation rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

/*──────────────────────────────── references ───────────────────────────────*/

type ref struct {
	entity string
	field  string
	id     string
	user   bool
}

// resolve checks each reference in order and stops at the first miss.
func (p *Pipeline) resolve(ctx context.Context, refs ...ref) error {
	for _, r := range refs {
		var (
			ok  bool
			err error
		)
		if r.user {
			ok, err = p.lookup.UserExists(ctx, r.id)
		} else {
			ok, err = p.lookup.SiteExists(ctx, r.id)
		}
		if err != nil {
			return err
		}
		if !ok {
			return &errs.ReferentialIntegrityError{Entity: r.entity, Field: r.field, Ref: r.id}
		}
	}
	return nil
}

func siteRef(entity, id string) ref  { return ref{entity: entity, field: "site_id", id: id} }
func ownerRef(entity, id string) ref { return ref{entity: entity, field: "owner_id", id: id, user: true} }

// emailFree fails with ErrDuplicate when another user already holds email.
func (p *Pipeline) emailFree(ctx context.Context, email, selfID string) error {
	if email == "" {
		return nil
	}
	u, err := p.lookup.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil
	case err != nil:
		return err
	case u.ID == selfID:
		return nil
	default:
		return fmt.Errorf("user email %q: %w", email, errs.ErrDuplicate)
	}
}

/*──────────────────────────────── inserts ──────────────────────────────────*/

// InsertSite writes a new site.  The slug id is mandatory.
func (p *Pipeline) InsertSite(ctx context.Context, in record.Site) (record.Site, error) {
	now, err := p.now(ctx)
	if err != nil {
		return record.Site{}, err
	}
	s := record.NewSite(in, now)
	if err := record.Validate(&s); err != nil {
		return record.Site{}, p.fail("insertSite", err)
	}
	if err := p.coll(record.CollSites).InsertOne(ctx, &s); err != nil {
		return record.Site{}, p.fail("insertSite", err)
	}
	return s, nil
}

// InsertUser writes a new user.  A non-nil SiteID must resolve, and a
// non-empty email must be unused.
func (p *Pipeline) InsertUser(ctx context.Context, in record.User) (record.User, error) {
	now, err := p.now(ctx)
	if err != nil {
		return record.User{}, err
	}
	u := record.NewUser(in, now)
	if err := record.Validate(&u); err != nil {
		return record.User{}, p.fail("insertUser", err)
	}
	if u.SiteID != nil {
		if err := p.resolve(ctx, siteRef("user", *u.SiteID)); err != nil {
			return record.User{}, p.fail("insertUser", err)
		}
	}
	if err := p.emailFree(ctx, u.Email, u.ID); err != nil {
		return record.User{}, p.fail("insertUser", err)
	}
	if err := p.coll(record.CollUsers).InsertOne(ctx, &u); err != nil {
		return record.User{}, p.fail("insertUser", err)
	}
	return u, nil
}

// InsertVideo writes a new video with zeroed counters and default
// visibility, status, language, and platform.  Site and owner must exist.
func (p *Pipeline) InsertVideo(ctx context.Context, in record.Video) (record.Video, error) {
	now, err := p.now(ctx)
	if err != nil {
		return record.Video{}, err
	}
	v := record.NewVideo(in, now)
	if err := record.Validate(&v); err != nil {
		return record.Video{}, p.fail("insertVideo", err)
	}
	if err := p.resolve(ctx, siteRef("video", v.SiteID), ownerRef("video", v.OwnerID)); err != nil {
		return record.Video{}, p.fail("insertVideo", err)
	}
	if err := p.coll(record.CollVideos).InsertOne(ctx, &v); err != nil {
		return record.Video{}, p.fail("insertVideo", err)
	}
	return v, nil
}

// InsertVisit appends one visit event.  The site is not checked: visits
// are high-volume and only ever aggregated per site.
func (p *Pipeline) InsertVisit(ctx context.Context, in record.Visit) (record.Visit, error) {
	now, err := p.now(ctx)
	if err != nil {
		return record.Visit{}, err
	}
	v := record.NewVisit(in, now)
	if err := record.Validate(&v); err != nil {
		return record.Visit{}, p.fail("insertVisit", err)
	}
	if err := p.coll(record.CollVisits).InsertOne(ctx, &v); err != nil {
		return record.Visit{}, p.fail("insertVisit", err)
	}
	return v, nil
}

/*──────────────────────────────── bulk ─────────────────────────────────────*/

// BulkInsertVideos validates and reference-checks every video, then writes
// them in one unordered batch.  Any rejected video rejects the whole batch
// before the write.  The count is what the store actually inserted.
func (p *Pipeline) BulkInsertVideos(ctx context.Context, in []record.Video) (int64, error) {
	if len(in) == 0 {
		return 0, nil
	}
	now, err := p.now(ctx)
	if err != nil {
		return 0, err
	}

	var (
		docs = make([]any, 0, len(in))
		seen = map[ref]bool{}
		refs []ref
	)
	for i := range in {
		v := record.NewVideo(in[i], now)
		if err := record.Validate(&v); err != nil {
			return 0, p.fail("bulkInsertVideos", fmt.Errorf("video %d: %w", i, err))
		}
		for _, r := range []ref{siteRef("video", v.SiteID), ownerRef("video", v.OwnerID)} {
			if !seen[r] {
				seen[r] = true
				refs = append(refs, r)
			}
		}
		docs = append(docs, &v)
	}
	if err := p.resolve(ctx, refs...); err != nil {
		return 0, p.fail("bulkInsertVideos", err)
	}

	n, err := p.coll(record.CollVideos).InsertMany(ctx, docs)
	if err != nil {
		return n, p.fail("bulkInsertVideos", err)
	}
	return n, nil
}

// BulkDeleteVideos deletes every listed id in one call.  Missing ids are
// not an error; the count reflects only what existed.
func (p *Pipeline) BulkDeleteVideos(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	n, err := p.coll(record.CollVideos).DeleteMany(ctx, filter)
	if err != nil {
		return 0, p.fail("bulkDeleteVideos", err)
	}
	return n, nil
}

// DeleteVideo deletes one video and reports whether it existed.  Audit rows
// that reference it are kept.
func (p *Pipeline) DeleteVideo(ctx context.Context, id string) (int64, error) {
	if id == "" {
		return 0, p.fail("deleteVideo", errs.Invalid("video", "id", "is required"))
	}
	n, err := p.coll(record.CollVideos).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return 0, p.fail("deleteVideo", err)
	}
	return n, nil
}
