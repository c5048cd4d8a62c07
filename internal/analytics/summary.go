package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Summary bundles the four aggregations for one site and window.
type Summary struct {
	SiteID    string          `json:"site_id"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Total     int64           `json:"total"`
	Countries []CountryCount  `json:"countries"`
	Languages []LanguageCount `json:"languages"`
	Days      []DayCount      `json:"days"`
}

// Summarize issues all four aggregations concurrently.  The first failure
// cancels the rest and is returned.
func (e *Engine) Summarize(ctx context.Context, siteID string, start, end time.Time) (Summary, error) {
	if _, err := scopeOf(siteID, start, end); err != nil {
		return Summary{}, err
	}

	s := Summary{SiteID: siteID, Start: start, End: end}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		s.Total, err = e.TotalCount(gctx, siteID, start, end)
		return err
	})
	g.Go(func() (err error) {
		s.Countries, err = e.AggregateByCountry(gctx, siteID, start, end)
		return err
	})
	g.Go(func() (err error) {
		s.Languages, err = e.AggregateByLanguage(gctx, siteID, start, end)
		return err
	})
	g.Go(func() (err error) {
		s.Days, err = e.AggregateByDate(gctx, siteID, start, end)
		return err
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}
