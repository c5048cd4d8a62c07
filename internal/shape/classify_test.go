package shape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/vidcat/internal/errs"
)

// Every canonical template must classify to its own shape.  If a template's
// wording changes, this test is the tripwire for classifier drift.
func TestCanonicalTemplatesClassify(t *testing.T) {
	cases := []struct {
		template string
		params   []any
		want     Kind
	}{
		{TemplateUserByEmail, []any{"a@example.com"}, KindUserByEmail},
		{TemplateUserByID, []any{"u1"}, KindUserByID},
		{TemplateSiteByID, []any{"gods"}, KindSiteByID},
		{TemplateVideoByID, []any{"v1"}, KindVideoByID},
		{TemplateVideosBySiteAndOwner, []any{"gods", "u1"}, KindVideosBySiteAndOwner},
		{TemplatePublicVideosBySite, []any{"gods"}, KindPublicVideosBySite},
		{TemplateVideosBySite, []any{"gods"}, KindVideosBySite},
		{TemplateVisitsByCountry, []any{"s1", "2024-01-01", "2024-01-31"}, KindVisitsByCountry},
		{TemplateVisitsByLanguage, []any{"s1", "2024-01-01", "2024-01-31"}, KindVisitsByLanguage},
		{TemplateVisitsByDate, []any{"s1", "2024-01-01", "2024-01-31"}, KindVisitsByDate},
		{TemplateVisitsTotal, []any{"s1", "2024-01-01", "2024-01-31"}, KindVisitsTotal},
	}
	seen := map[Kind]bool{}
	for _, c := range cases {
		t.Run(c.want.String(), func(t *testing.T) {
			q, err := Classify(c.template, c.params...)
			require.NoError(t, err)
			assert.Equal(t, c.want, q.Kind())

			k, err := KindOf(c.template)
			require.NoError(t, err)
			assert.Equal(t, c.want, k)
		})
		seen[c.want] = true
	}
	assert.Len(t, seen, len(Kinds()), "every shape needs a canonical template")
}

func TestClassifyBindsPositionally(t *testing.T) {
	q, err := Classify(TemplateVideosBySiteAndOwner, "gods", "u7")
	require.NoError(t, err)
	assert.Equal(t, VideosBySiteAndOwner{SiteID: "gods", OwnerID: "u7"}, q)
}

func TestClassifyIsWhitespaceAndCaseInsensitive(t *testing.T) {
	q, err := Classify("select *\n  from VIDEOS\twhere site_id=?   and owner_id =?", "gods", "u1")
	require.NoError(t, err)
	assert.Equal(t, KindVideosBySiteAndOwner, q.Kind())
}

func TestClassifyWindowFromDates(t *testing.T) {
	q, err := Classify(TemplateVisitsByCountry, "s1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)

	vc, ok := q.(VisitsByCountry)
	require.True(t, ok)
	assert.Equal(t, "s1", vc.SiteID)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), vc.Window.Start)
	assert.Equal(t, time.Date(2024, 1, 1, 23, 59, 59, int(999*time.Millisecond), time.UTC), vc.Window.End)
}

func TestClassifyWindowFromTimes(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	q, err := Classify(TemplateVisitsTotal, "s1", start, end)
	require.NoError(t, err)
	assert.Equal(t, Window{Start: start, End: end}, q.(VisitsTotal).Window)
}

func TestClassifyUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	c := Classifier{Location: seoul}

	q, err := c.Classify(TemplateVisitsByDate, "s1", "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, seoul), q.(VisitsByDate).Window.Start)
}

func TestClassifyUnknownTemplateFailsLoudly(t *testing.T) {
	for _, tmpl := range []string{
		"SELECT * FROM comments WHERE id = ?",
		"DELETE FROM videos",
		"",
	} {
		_, err := Classify(tmpl, "x")
		require.Error(t, err, tmpl)
		assert.True(t, errs.IsUnclassified(err), tmpl)

		_, err = KindOf(tmpl)
		assert.True(t, errs.IsUnclassified(err), tmpl)
	}
}

func TestClassifyPublicListingWithOtherQuoteStyles(t *testing.T) {
	for _, tmpl := range []string{
		`SELECT * FROM videos WHERE site_id = ? AND visibility = "public" AND status = "active" ORDER BY created_at DESC LIMIT 100`,
		"SELECT * FROM videos WHERE site_id = ? AND visibility = `public` AND status = `active` LIMIT 100",
	} {
		q, err := Classify(tmpl, "gods")
		require.NoError(t, err, tmpl)
		assert.Equal(t, PublicVideosBySite{SiteID: "gods"}, q, tmpl)
	}
}

func TestClassifyRefusesUnboundVideoPredicates(t *testing.T) {
	for _, tmpl := range []string{
		"SELECT * FROM videos WHERE site_id = ? AND visibility = 'private'",
		"SELECT * FROM videos WHERE site_id = ? AND status = 'archived' ORDER BY created_at DESC",
		"SELECT * FROM videos WHERE site_id = ? ORDER BY created_at DESC LIMIT 10",
		"SELECT * FROM videos WHERE site_id = ? AND owner_id = ? AND status = 'active'",
		"SELECT * FROM videos WHERE id = ? AND status = 'active'",
	} {
		_, err := Classify(tmpl, "gods")
		require.Error(t, err, tmpl)
		assert.True(t, errs.IsUnclassified(err), tmpl)
	}
}

func TestClassifyArityMismatch(t *testing.T) {
	_, err := Classify(TemplateVideosBySiteAndOwner, "gods")
	assert.True(t, errs.IsValidation(err))

	_, err = Classify(TemplateUserByID, "u1", "extra")
	assert.True(t, errs.IsValidation(err))
}

func TestClassifyRejectsBadParams(t *testing.T) {
	_, err := Classify(TemplateUserByID, 42)
	assert.True(t, errs.IsValidation(err))

	_, err = Classify(TemplateSiteByID, "")
	assert.True(t, errs.IsValidation(err))

	_, err = Classify(TemplateVisitsTotal, "s1", "01/02/2024", "2024-01-03")
	assert.True(t, errs.IsValidation(err))

	_, err = Classify(TemplateVisitsTotal, "s1", "2024-02-01", "2024-01-01")
	assert.True(t, errs.IsValidation(err), "inverted window")
}

func TestDays(t *testing.T) {
	w, err := Days("2024-01-01", "2024-12-31", nil)
	require.NoError(t, err)
	assert.Equal(t, 2024, w.End.Year())
	assert.Equal(t, time.December, w.End.Month())
	assert.Equal(t, 31, w.End.Day())

	_, err = Days("2024-01-02", "2024-01-01", time.UTC)
	assert.True(t, errs.IsValidation(err))
}

func TestPoint(t *testing.T) {
	assert.True(t, Point(UserByEmail{Email: "a@b.c"}))
	assert.True(t, Point(VideoByID{ID: "v"}))
	assert.False(t, Point(VideosBySite{SiteID: "s"}))
	assert.False(t, Point(VisitsTotal{}))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "VisitsAggregateByDate", KindVisitsByDate.String())
	assert.Equal(t, "UserById", KindUserByID.String())
	assert.Equal(t, "Unknown", Kind(0).String())
}
