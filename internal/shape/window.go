package shape

import (
	"time"

	"github.com/yanizio/vidcat/internal/errs"
)

// DateLayout is the calendar-day format used for window bounds and daily
// buckets.
const DateLayout = "2006-01-02"

// Window is an inclusive [Start, End] range.  Both ends match: the store
// filter is created_at >= Start AND created_at <= End.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects zero bounds and inverted ranges.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errs.Invalid("visit", "window", "start and end are required")
	}
	if w.Start.After(w.End) {
		return errs.Invalid("visit", "window", "start is after end")
	}
	return nil
}

// Days parses two YYYY-MM-DD dates in loc.  Start becomes the first
// instant of its day and End the last millisecond of its day, so
// Days("2024-01-01", "2024-01-01") covers the whole of January 1st.
func Days(start, end string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return Window{}, errs.Invalid("visit", "start", "must be YYYY-MM-DD")
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return Window{}, errs.Invalid("visit", "end", "must be YYYY-MM-DD")
	}
	w := Window{Start: s, End: endOfDay(e)}
	return w, w.Validate()
}

// endOfDay returns the last millisecond of t's calendar day.  Millisecond
// is the store's date resolution.
func endOfDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1).Add(-time.Millisecond)
}
