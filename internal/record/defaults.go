// internal/record/defaults.go
//
// Record construction and field defaults.
//
// Context
// -------
// Every insert path builds its document through one of the New* helpers
// below, so identical defaults apply no matter who inserts.  Defaults are
// declared as field→value tables rather than scattered `if x == ""`
// checks; the tables are exported through Defaults() for documentation
// and tests.
//
// Counters need no table entry: an omitted int64 is already zero.
//
// Notes
// -----
//   - `now` is always the store clock, supplied by the caller.
//   - IDs are generated with google/uuid unless the caller provided one.
//     Sites are the exception: their slug is mandatory.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Default language and country for anything the caller left blank.
const (
	DefaultLanguage    = "en"
	UnknownCountryCode = "ZZ"
	UnknownCountryName = "Unknown"
)

// fieldDefault is one row of a field→default table.
type fieldDefault[T any] struct {
	field string
	value string
	ptr   func(*T) *string
}

var videoDefaults = []fieldDefault[Video]{
	{"visibility", VisibilityPublic, func(v *Video) *string { return &v.Visibility }},
	{"status", VideoActive, func(v *Video) *string { return &v.Status }},
	{"language", DefaultLanguage, func(v *Video) *string { return &v.Language }},
	{"platform", PlatformOther, func(v *Video) *string { return &v.Platform }},
}

var userDefaults = []fieldDefault[User]{
	{"role", RoleCreator, func(u *User) *string { return &u.Role }},
	{"status", UserActive, func(u *User) *string { return &u.Status }},
}

var visitDefaults = []fieldDefault[Visit]{
	{"language", DefaultLanguage, func(v *Visit) *string { return &v.Language }},
	{"country_code", UnknownCountryCode, func(v *Visit) *string { return &v.CountryCode }},
	{"country_name", UnknownCountryName, func(v *Visit) *string { return &v.CountryName }},
}

func applyDefaults[T any](rec *T, table []fieldDefault[T]) {
	for _, d := range table {
		if p := d.ptr(rec); *p == "" {
			*p = d.value
		}
	}
}

// Defaults returns the field→default table for a collection.  Unknown
// collections yield an empty map.
func Defaults(collection string) map[string]string {
	out := map[string]string{}
	add := func(field, value string) { out[field] = value }
	switch collection {
	case CollVideos:
		for _, d := range videoDefaults {
			add(d.field, d.value)
		}
	case CollUsers:
		for _, d := range userDefaults {
			add(d.field, d.value)
		}
	case CollVisits:
		for _, d := range visitDefaults {
			add(d.field, d.value)
		}
	}
	return out
}

/*────────────────────────────── constructors ───────────────────────────────*/

// NewSite stamps timestamps on a caller-built Site.
func NewSite(in Site, now time.Time) Site {
	in.CreatedAt, in.UpdatedAt = now, now
	return in
}

// NewUser assigns an id when missing, applies defaults, and stamps
// timestamps.  An empty SiteID pointer target is normalised to nil.
func NewUser(in User, now time.Time) User {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.SiteID != nil && *in.SiteID == "" {
		in.SiteID = nil
	}
	applyDefaults(&in, userDefaults)
	in.CreatedAt, in.UpdatedAt = now, now
	return in
}

// NewVideo assigns an id when missing, applies defaults, and stamps
// timestamps.  Stats metadata is cleared; only UpdateVideoStats sets it.
func NewVideo(in Video, now time.Time) Video {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	applyDefaults(&in, videoDefaults)
	in.StatsUpdatedAt, in.StatsUpdatedBy = nil, ""
	in.CreatedAt, in.UpdatedAt = now, now
	return in
}

// NewVisit assigns an id when missing, applies defaults, and stamps
// created_at.  Visits carry no updated_at.
func NewVisit(in Visit, now time.Time) Visit {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	applyDefaults(&in, visitDefaults)
	in.CreatedAt = now
	return in
}

// NewStatsAdjustment builds the audit row for one counter overwrite.
func NewStatsAdjustment(videoID, adminID string, before, after Counters, now time.Time) StatsAdjustment {
	return StatsAdjustment{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		AdminID:   adminID,
		Before:    before,
		After:     after,
		CreatedAt: now,
	}
}
