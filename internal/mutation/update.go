package mutation

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/record"
)

// -----------------------------------------------------------------------------
// Counters
// -----------------------------------------------------------------------------

// UpdateVideoStats overwrites all three counters in one document update and
// stamps stats_updated_at and stats_updated_by.  Negative counters are
// rejected, never clamped.  updatedBy must be an existing user.  One
// StatsAdjustment row with the before and after values is appended after
// the update.
//
// Re-issuing the same counters leaves the same stored values: the update
// overwrites, it never accumulates.
func (p *Pipeline) UpdateVideoStats(ctx context.Context, videoID string, c record.Counters, updatedBy string) (record.Video, error) {
	const op = "updateVideoStats"
	if err := record.ValidateCounters(c); err != nil {
		return record.Video{}, p.fail(op, err)
	}
	if videoID == "" {
		return record.Video{}, p.fail(op, errs.Invalid("video", "id", "is required"))
	}
	if updatedBy == "" {
		return record.Video{}, p.fail(op, errs.Invalid("video", "stats_updated_by", "is required"))
	}

	before, err := p.lookup.Video(ctx, videoID)
	if err != nil {
		return record.Video{}, p.fail(op, err)
	}
	if err := p.resolve(ctx, ref{entity: "video", field: "stats_updated_by", id: updatedBy, user: true}); err != nil {
		return record.Video{}, p.fail(op, err)
	}
	now, err := p.now(ctx)
	if err != nil {
		return record.Video{}, err
	}

	set := bson.D{
		{Key: "views_count", Value: c.Views},
		{Key: "likes_count", Value: c.Likes},
		{Key: "shares_count", Value: c.Shares},
		{Key: "stats_updated_at", Value: now},
		{Key: "stats_updated_by", Value: updatedBy},
	}
	matched, err := p.coll(record.CollVideos).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: videoID}},
		bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return record.Video{}, p.fail(op, err)
	}
	if matched == 0 {
		return record.Video{}, p.fail(op, fmt.Errorf("video %q: %w", videoID, errs.ErrNotFound))
	}

	audit := record.NewStatsAdjustment(videoID, updatedBy, before.Counters, c, now)
	if err := p.coll(record.CollStatsAdjustments).InsertOne(ctx, &audit); err != nil {
		p.log.Error("stats adjustment not recorded",
			zap.String("video_id", videoID),
			zap.String("admin_id", updatedBy),
			zap.Error(err))
		return record.Video{}, p.fail(op, fmt.Errorf("counters updated, audit row failed: %w", err))
	}

	after := before
	after.Counters = c
	after.StatsUpdatedAt = &now
	after.StatsUpdatedBy = updatedBy
	return after, nil
}

// -----------------------------------------------------------------------------
// Video metadata
// -----------------------------------------------------------------------------

// VideoPatch lists the video fields UpdateVideo may change.  Nil fields are
// left alone.
type VideoPatch struct {
	SiteID       *string
	OwnerID      *string
	Platform     *string
	VideoID      *string
	SourceURL    *string
	Title        *string
	ThumbnailURL *string
	EmbedURL     *string
	Language     *string
	Status       *string
	Visibility   *string
}

// UpdateVideo applies patch, re-checking site_id and owner_id when they
// change, and stamps updated_at.  This is the metadata-enrichment path.
func (p *Pipeline) UpdateVideo(ctx context.Context, id string, patch VideoPatch) (record.Video, error) {
	const op = "updateVideo"
	if id == "" {
		return record.Video{}, p.fail(op, errs.Invalid("video", "id", "is required"))
	}
	cur, err := p.lookup.Video(ctx, id)
	if err != nil {
		return record.Video{}, p.fail(op, err)
	}

	next := cur
	var set bson.D
	apply := func(field string, src *string, dst *string) {
		if src != nil && *src != *dst {
			*dst = *src
			set = append(set, bson.E{Key: field, Value: *src})
		}
	}
	apply("site_id", patch.SiteID, &next.SiteID)
	apply("owner_id", patch.OwnerID, &next.OwnerID)
	apply("platform", patch.Platform, &next.Platform)
	apply("video_id", patch.VideoID, &next.VideoID)
	apply("source_url", patch.SourceURL, &next.SourceURL)
	apply("title", patch.Title, &next.Title)
	apply("thumbnail_url", patch.ThumbnailURL, &next.ThumbnailURL)
	apply("embed_url", patch.EmbedURL, &next.EmbedURL)
	apply("language", patch.Language, &next.Language)
	apply("status", patch.Status, &next.Status)
	apply("visibility", patch.Visibility, &next.Visibility)
	if len(set) == 0 {
		return cur, nil
	}

	if err := record.Validate(&next); err != nil {
		return record.Video{}, p.fail(op, err)
	}
	var refs []ref
	if next.SiteID != cur.SiteID {
		refs = append(refs, siteRef("video", next.SiteID))
	}
	if next.OwnerID != cur.OwnerID {
		refs = append(refs, ownerRef("video", next.OwnerID))
	}
	if err := p.resolve(ctx, refs...); err != nil {
		return record.Video{}, p.fail(op, err)
	}

	now, err := p.now(ctx)
	if err != nil {
		return record.Video{}, err
	}
	next.UpdatedAt = now
	set = append(set, bson.E{Key: "updated_at", Value: now})

	if err := p.updateByID(ctx, record.CollVideos, id, bson.D{{Key: "$set", Value: set}}); err != nil {
		return record.Video{}, p.fail(op, err)
	}
	return next, nil
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

// UserPatch lists the user fields UpdateUser may change.  Nil fields are
// left alone.  A SiteID pointing at "" makes the user global.  An Email
// pointing at "" removes the address.
type UserPatch struct {
	SiteID       *string
	Name         *string
	Email        *string
	PasswordHash *string
	PasswordSalt *string
	Role         *string
	Status       *string
	APIKeyHash   *string
	APIKeySalt   *string
}

// UpdateUser covers password changes, role and status changes, and site
// reassignment.  It re-checks the site and email uniqueness and stamps
// updated_at.
func (p *Pipeline) UpdateUser(ctx context.Context, id string, patch UserPatch) (record.User, error) {
	const op = "updateUser"
	if id == "" {
		return record.User{}, p.fail(op, errs.Invalid("user", "id", "is required"))
	}
	cur, err := p.lookup.User(ctx, id)
	if err != nil {
		return record.User{}, p.fail(op, err)
	}

	next := cur
	var set, unset bson.D
	apply := func(field string, src *string, dst *string) {
		if src == nil || *src == *dst {
			return
		}
		*dst = *src
		if *src == "" {
			unset = append(unset, bson.E{Key: field, Value: ""})
			return
		}
		set = append(set, bson.E{Key: field, Value: *src})
	}
	apply("name", patch.Name, &next.Name)
	apply("email", patch.Email, &next.Email)
	apply("password_hash", patch.PasswordHash, &next.PasswordHash)
	apply("password_salt", patch.PasswordSalt, &next.PasswordSalt)
	apply("role", patch.Role, &next.Role)
	apply("status", patch.Status, &next.Status)
	apply("api_key_hash", patch.APIKeyHash, &next.APIKeyHash)
	apply("api_key_salt", patch.APIKeySalt, &next.APIKeySalt)

	var refs []ref
	if patch.SiteID != nil {
		switch {
		case *patch.SiteID == "" && cur.SiteID != nil:
			next.SiteID = nil
			set = append(set, bson.E{Key: "site_id", Value: nil})
		case *patch.SiteID != "" && (cur.SiteID == nil || *cur.SiteID != *patch.SiteID):
			site := *patch.SiteID
			next.SiteID = &site
			set = append(set, bson.E{Key: "site_id", Value: site})
			refs = append(refs, siteRef("user", site))
		}
	}
	if len(set) == 0 && len(unset) == 0 {
		return cur, nil
	}

	if err := record.Validate(&next); err != nil {
		return record.User{}, p.fail(op, err)
	}
	if err := p.resolve(ctx, refs...); err != nil {
		return record.User{}, p.fail(op, err)
	}
	if next.Email != cur.Email {
		if err := p.emailFree(ctx, next.Email, id); err != nil {
			return record.User{}, p.fail(op, err)
		}
	}

	now, err := p.now(ctx)
	if err != nil {
		return record.User{}, err
	}
	next.UpdatedAt = now
	set = append(set, bson.E{Key: "updated_at", Value: now})

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	if err := p.updateByID(ctx, record.CollUsers, id, update); err != nil {
		return record.User{}, p.fail(op, err)
	}
	return next, nil
}

// updateByID applies update to one document.  No match means it was
// deleted since it was read.
func (p *Pipeline) updateByID(ctx context.Context, coll, id string, update bson.D) error {
	matched, err := p.coll(coll).UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return err
	}
	if matched == 0 {
		return fmt.Errorf("%s %q: %w", coll, id, errs.ErrNotFound)
	}
	return nil
}
