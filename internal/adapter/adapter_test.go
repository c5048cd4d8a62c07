package adapter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/vidcat/internal/analytics"
	"github.com/yanizio/vidcat/internal/docstore"
	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/record"
	"github.com/yanizio/vidcat/internal/shape"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newAdapter(t *testing.T) (*Adapter, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	return New(store, analytics.New(store, time.UTC, nil), nil), store
}

func put(t *testing.T, store docstore.Store, recs ...record.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, store.Collection(r.Collection()).InsertOne(context.Background(), r))
	}
}

func video(id, site, owner string, at time.Time, mutate ...func(*record.Video)) *record.Video {
	v := record.NewVideo(record.Video{ID: id, SiteID: site, OwnerID: owner, Title: id}, at)
	for _, m := range mutate {
		m(&v)
	}
	return &v
}

func TestLookupOnePointShapes(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)
	site := record.NewSite(record.Site{ID: "gods", Name: "Gods"}, t0)
	user := record.NewUser(record.User{ID: "u1", Name: "Kim", Email: "kim@example.com"}, t0)
	put(t, store, &site, &user, video("v1", "gods", "u1", t0))

	rec, err := a.LookupOne(ctx, shape.UserByEmail{Email: "kim@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.(*record.User).ID)

	rec, err = a.LookupOne(ctx, shape.SiteByID{ID: "gods"})
	require.NoError(t, err)
	assert.Equal(t, "Gods", rec.(*record.Site).Name)

	v, err := a.Video(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "u1", v.OwnerID)
	assert.Equal(t, record.VisibilityPublic, v.Visibility)

	u, err := a.User(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, u.SiteID)
}

func TestLookupOneMissIsNotFound(t *testing.T) {
	a, _ := newAdapter(t)
	_, err := a.LookupOne(context.Background(), shape.VideoByID{ID: "nope"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	ok, err := a.SiteExists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupOneRejectsEmptyParams(t *testing.T) {
	a, _ := newAdapter(t)
	_, err := a.LookupOne(context.Background(), shape.UserByEmail{})
	assert.True(t, errs.IsValidation(err))

	_, err = a.LookupOne(context.Background(), nil)
	assert.True(t, errs.IsValidation(err))
}

func TestLookupOneRejectsAggregations(t *testing.T) {
	a, _ := newAdapter(t)
	w, err := shape.Days("2024-01-01", "2024-01-02", nil)
	require.NoError(t, err)

	_, err = a.LookupOne(context.Background(), shape.VisitsTotal{VisitScope: shape.VisitScope{SiteID: "s1", Window: w}})
	assert.True(t, errs.IsValidation(err))
}

func TestLookupOneListShapeReturnsNewest(t *testing.T) {
	a, store := newAdapter(t)
	put(t, store,
		video("old", "gods", "u1", t0),
		video("new", "gods", "u1", t0.Add(time.Hour)),
	)
	rec, err := a.LookupOne(context.Background(), shape.VideosBySite{SiteID: "gods"})
	require.NoError(t, err)
	assert.Equal(t, "new", rec.(*record.Video).ID)
}

func TestPublicVideosBySiteFiltersAndCaps(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)

	for i := 0; i < 120; i++ {
		put(t, store, video(fmt.Sprintf("pub-%03d", i), "gods", "u1", t0.Add(time.Duration(i)*time.Minute)))
	}
	put(t, store,
		video("private", "gods", "u1", t0.Add(24*time.Hour), func(v *record.Video) { v.Visibility = record.VisibilityPrivate }),
		video("archived", "gods", "u1", t0.Add(24*time.Hour), func(v *record.Video) { v.Status = record.VideoArchived }),
		video("elsewhere", "other", "u1", t0.Add(24*time.Hour)),
	)

	got, err := a.PublicVideos(ctx, "gods")
	require.NoError(t, err)
	require.Len(t, got, shape.PublicListingLimit)

	assert.Equal(t, "pub-119", got[0].ID)
	for i, v := range got {
		assert.Equal(t, record.VisibilityPublic, v.Visibility)
		assert.Equal(t, record.VideoActive, v.Status)
		assert.Equal(t, "gods", v.SiteID)
		if i > 0 {
			assert.False(t, v.CreatedAt.After(got[i-1].CreatedAt), "sorted by created_at descending")
		}
	}
}

func TestVideosBySiteAndOwner(t *testing.T) {
	a, store := newAdapter(t)
	put(t, store,
		video("a", "gods", "u1", t0),
		video("b", "gods", "u2", t0),
		video("c", "gods", "u1", t0.Add(time.Hour)),
		video("d", "other", "u1", t0),
	)

	got, err := a.OwnerVideos(context.Background(), "gods", "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	all, err := a.SiteVideos(context.Background(), "gods")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLookupTemplateBindsPositionally(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)
	put(t, store, video("a", "gods", "u1", t0), video("b", "gods", "u2", t0))

	rows, err := a.LookupManyTemplate(ctx, shape.TemplateVideosBySiteAndOwner, "gods", "u2")
	require.NoError(t, err)
	assert.Equal(t, shape.KindVideosBySiteAndOwner, rows.Kind)
	require.Equal(t, 1, rows.Len())
	assert.Equal(t, "b", rows.Videos[0].ID)
	assert.Len(t, rows.Records(), 1)

	rec, err := a.LookupOneTemplate(ctx, shape.TemplateVideoByID, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.(*record.Video).ID)
}

func TestLookupTemplateDispatchesAggregations(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)
	for i, cc := range []string{"KR", "KR", "US"} {
		v := record.NewVisit(record.Visit{SiteID: "s1", CountryCode: cc, CountryName: cc}, t0.Add(time.Duration(i)*time.Hour))
		put(t, store, &v)
	}

	rows, err := a.LookupManyTemplate(ctx, shape.TemplateVisitsByCountry, "s1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, rows.Countries, 2)
	assert.Equal(t, "KR", rows.Countries[0].CountryCode)
	assert.EqualValues(t, 2, rows.Countries[0].Count)
	assert.Nil(t, rows.Records())

	rows, err = a.LookupManyTemplate(ctx, shape.TemplateVisitsTotal, "s1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows.Total)
	assert.Equal(t, 1, rows.Len())

	rows, err = a.LookupManyTemplate(ctx, shape.TemplateVisitsByDate, "s1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, []analytics.DayCount{{Date: "2024-01-01", Count: 3}}, rows.Days)

	rows, err = a.LookupManyTemplate(ctx, shape.TemplateVisitsByLanguage, "s1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, []analytics.LanguageCount{{Language: record.DefaultLanguage, Count: 3}}, rows.Languages)
}

func TestLookupTemplateUnclassifiedFailsLoudly(t *testing.T) {
	a, _ := newAdapter(t)
	_, err := a.LookupManyTemplate(context.Background(), "SELECT * FROM comments WHERE video_id = ?", "v1")
	assert.True(t, errs.IsUnclassified(err))

	_, err = a.LookupOneTemplate(context.Background(), "UPDATE videos SET title = ?", "x")
	assert.True(t, errs.IsUnclassified(err))
}

func TestLookupSurfacesUnavailableStore(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)
	require.NoError(t, store.Close(ctx))

	_, err := a.LookupOne(ctx, shape.SiteByID{ID: "gods"})
	assert.True(t, errs.IsUnavailable(err))

	_, err = a.SiteExists(ctx, "gods")
	assert.True(t, errs.IsUnavailable(err))
}

func TestTypedHelpersUnwrapAndRejectWrongType(t *testing.T) {
	ctx := context.Background()
	a, store := newAdapter(t)
	site := record.NewSite(record.Site{ID: "gods", Name: "Gods"}, t0)
	user := record.NewUser(record.User{ID: "u1", Name: "Kim", Email: "kim@example.com"}, t0)
	put(t, store, &site, &user, video("v1", "gods", "u1", t0))

	s, err := a.Site(ctx, "gods")
	require.NoError(t, err)
	assert.Equal(t, "Gods", s.Name)

	u, err := a.UserByEmail(ctx, "kim@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = one[record.Site](ctx, a, shape.VideoByID{ID: "v1"})
	assert.True(t, errs.IsValidation(err), "%v", err)
}
