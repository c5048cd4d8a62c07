package adapter

import (
	"context"
	"errors"

	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/record"
	"github.com/yanizio/vidcat/internal/shape"
)

// Typed wrappers for callers that know the shape up front.

func (a *Adapter) UserByEmail(ctx context.Context, email string) (record.User, error) {
	return one[record.User](ctx, a, shape.UserByEmail{Email: email})
}

func (a *Adapter) User(ctx context.Context, id string) (record.User, error) {
	return one[record.User](ctx, a, shape.UserByID{ID: id})
}

func (a *Adapter) Site(ctx context.Context, id string) (record.Site, error) {
	return one[record.Site](ctx, a, shape.SiteByID{ID: id})
}

func (a *Adapter) Video(ctx context.Context, id string) (record.Video, error) {
	return one[record.Video](ctx, a, shape.VideoByID{ID: id})
}

// PublicVideos lists at most shape.PublicListingLimit public, active
// videos, newest first.
func (a *Adapter) PublicVideos(ctx context.Context, siteID string) ([]record.Video, error) {
	rows, err := a.LookupMany(ctx, shape.PublicVideosBySite{SiteID: siteID})
	return rows.Videos, err
}

func (a *Adapter) SiteVideos(ctx context.Context, siteID string) ([]record.Video, error) {
	rows, err := a.LookupMany(ctx, shape.VideosBySite{SiteID: siteID})
	return rows.Videos, err
}

func (a *Adapter) OwnerVideos(ctx context.Context, siteID, ownerID string) ([]record.Video, error) {
	rows, err := a.LookupMany(ctx, shape.VideosBySiteAndOwner{SiteID: siteID, OwnerID: ownerID})
	return rows.Videos, err
}

// SiteExists and UserExists back the mutation pipeline's referential
// checks.  A miss is (false, nil).

func (a *Adapter) SiteExists(ctx context.Context, id string) (bool, error) {
	_, err := a.Site(ctx, id)
	return exists(err)
}

func (a *Adapter) UserExists(ctx context.Context, id string) (bool, error) {
	_, err := a.User(ctx, id)
	return exists(err)
}

func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errs.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func one[T any](ctx context.Context, a *Adapter, q shape.Query) (T, error) {
	var zero T
	rec, err := a.LookupOne(ctx, q)
	if err != nil {
		return zero, err
	}
	p, ok := any(rec).(*T)
	if !ok {
		return zero, errs.Invalid(q.Kind().String(), "result", "unexpected record type")
	}
	return *p, nil
}
