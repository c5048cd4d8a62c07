// internal/shape/shape.go
//
// Closed set of query shapes.
//
// Context
// -------
// The data layer never executes arbitrary queries.  Every read is one of
// the shapes declared here, each carrying its own typed parameters.
// Query is sealed with an unexported marker method, so no package outside
// this one can add a shape and every switch over Query in the adapter is
// exhaustive by construction.
//
//	Shape                       Params                     Result
//	--------------------------  -------------------------  -------------------
//	UserByEmail                 Email                      one User
//	UserById                    ID                         one User
//	SiteById                    ID                         one Site
//	VideoById                   ID                         one Video
//	VideosBySiteAndOwner        SiteID, OwnerID            Videos, newest first
//	PublicVideosBySite          SiteID                     ≤100 public+active
//	VideosBySite                SiteID                     Videos, newest first
//	VisitsAggregateByCountry    SiteID, Window             country counts
//	VisitsAggregateByLanguage   SiteID, Window             language counts
//	VisitsAggregateByDate       SiteID, Window             ≤90 day counts
//	VisitsTotalCount            SiteID, Window             one integer
//
// Notes
// -----
//   - Shapes built through this API can never be "unclassified".  Only
//     raw templates (classify.go) can fail that way.
//   - Oxford commas, two spaces after periods.
package shape

import (
	"github.com/yanizio/vidcat/internal/errs"
)

// PublicListingLimit caps PublicVideosBySite.  Public listing pages rely
// on it.
const PublicListingLimit = 100

// Kind enumerates the shapes.  String() yields the canonical shape name.
type Kind int

const (
	KindUserByEmail Kind = iota + 1
	KindUserByID
	KindSiteByID
	KindVideoByID
	KindVideosBySiteAndOwner
	KindPublicVideosBySite
	KindVideosBySite
	KindVisitsByCountry
	KindVisitsByLanguage
	KindVisitsByDate
	KindVisitsTotal
)

var kindNames = map[Kind]string{
	KindUserByEmail:          "UserByEmail",
	KindUserByID:             "UserById",
	KindSiteByID:             "SiteById",
	KindVideoByID:            "VideoById",
	KindVideosBySiteAndOwner: "VideosBySiteAndOwner",
	KindPublicVideosBySite:   "PublicVideosBySite",
	KindVideosBySite:         "VideosBySite",
	KindVisitsByCountry:      "VisitsAggregateByCountry",
	KindVisitsByLanguage:     "VisitsAggregateByLanguage",
	KindVisitsByDate:         "VisitsAggregateByDate",
	KindVisitsTotal:          "VisitsTotalCount",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Kinds lists every shape in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindUserByEmail; k <= KindVisitsTotal; k++ {
		out = append(out, k)
	}
	return out
}

// Query is one shape plus its bound parameters.
type Query interface {
	Kind() Kind
	// Validate rejects empty or malformed parameters.
	Validate() error
	shape()
}

// Point reports whether q resolves to at most one record.
func Point(q Query) bool {
	switch q.Kind() {
	case KindUserByEmail, KindUserByID, KindSiteByID, KindVideoByID:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Point lookups
// -----------------------------------------------------------------------------

type UserByEmail struct{ Email string }

func (UserByEmail) Kind() Kind        { return KindUserByEmail }
func (q UserByEmail) Validate() error { return required("user", "email", q.Email) }
func (UserByEmail) shape()            {}

type UserByID struct{ ID string }

func (UserByID) Kind() Kind        { return KindUserByID }
func (q UserByID) Validate() error { return required("user", "id", q.ID) }
func (UserByID) shape()            {}

type SiteByID struct{ ID string }

func (SiteByID) Kind() Kind        { return KindSiteByID }
func (q SiteByID) Validate() error { return required("site", "id", q.ID) }
func (SiteByID) shape()            {}

type VideoByID struct{ ID string }

func (VideoByID) Kind() Kind        { return KindVideoByID }
func (q VideoByID) Validate() error { return required("video", "id", q.ID) }
func (VideoByID) shape()            {}

// -----------------------------------------------------------------------------
// Filtered lists
// -----------------------------------------------------------------------------

// VideosBySiteAndOwner lists one owner's videos on one site, newest first.
type VideosBySiteAndOwner struct {
	SiteID  string
	OwnerID string
}

func (VideosBySiteAndOwner) Kind() Kind { return KindVideosBySiteAndOwner }
func (q VideosBySiteAndOwner) Validate() error {
	if err := required("video", "site_id", q.SiteID); err != nil {
		return err
	}
	return required("video", "owner_id", q.OwnerID)
}
func (VideosBySiteAndOwner) shape() {}

// PublicVideosBySite lists public, active videos, newest first, capped at
// PublicListingLimit.  The visibility and status filters are part of the
// shape, not parameters.
type PublicVideosBySite struct{ SiteID string }

func (PublicVideosBySite) Kind() Kind        { return KindPublicVideosBySite }
func (q PublicVideosBySite) Validate() error { return required("video", "site_id", q.SiteID) }
func (PublicVideosBySite) shape()            {}

// VideosBySite lists every video on a site, newest first.
type VideosBySite struct{ SiteID string }

func (VideosBySite) Kind() Kind        { return KindVideosBySite }
func (q VideosBySite) Validate() error { return required("video", "site_id", q.SiteID) }
func (VideosBySite) shape()            {}

// -----------------------------------------------------------------------------
// Visit aggregations
// -----------------------------------------------------------------------------

// VisitScope is the site plus aggregation window shared by every visit
// shape.
type VisitScope struct {
	SiteID string
	Window Window
}

func (s VisitScope) Validate() error {
	if err := required("visit", "site_id", s.SiteID); err != nil {
		return err
	}
	return s.Window.Validate()
}

type VisitsByCountry struct{ VisitScope }

func (VisitsByCountry) Kind() Kind { return KindVisitsByCountry }
func (VisitsByCountry) shape()     {}

type VisitsByLanguage struct{ VisitScope }

func (VisitsByLanguage) Kind() Kind { return KindVisitsByLanguage }
func (VisitsByLanguage) shape()     {}

type VisitsByDate struct{ VisitScope }

func (VisitsByDate) Kind() Kind { return KindVisitsByDate }
func (VisitsByDate) shape()     {}

type VisitsTotal struct{ VisitScope }

func (VisitsTotal) Kind() Kind { return KindVisitsTotal }
func (VisitsTotal) shape()     {}

func required(entity, field, value string) error {
	if value == "" {
		return errs.Invalid(entity, field, "is required")
	}
	return nil
}
