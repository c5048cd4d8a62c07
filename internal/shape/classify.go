// internal/shape/classify.go
//
// Template classifier.
//
// Context
// -------
// Older callers still hand the data layer a relational-style template plus
// positional parameters.  Classify maps such a template onto exactly one
// shape by looking for a table name and a distinguishing clause fragment
// in the normalised text, then binds the Nth placeholder to the Nth
// parameter.
//
// Workflow
// --------
//  1. Normalise: lowercase, fold double quotes and backticks to single
//     quotes, collapse whitespace, and drop spaces around `=`, `(`, and `)`.
//  2. Walk the rule table in order; the first rule whose table and
//     fragment both occur wins.  Rules are ordered most-specific first, so
//     "owner_id=?" is tried before "site_id=?" and the GROUP BY rules are
//     tried before the bare COUNT(*) rule.  A rule never matches a
//     template mentioning one of its reject fragments (a video listing
//     that filters on visibility or status but is not the public listing
//     is unclassified, not a plain site listing).
//  3. Check the placeholder count against the parameter count and the
//     rule's arity.
//  4. Bind parameters into the shape's typed fields and validate them.
//
// A template that matches no rule fails with *errs.UnclassifiedQueryError.
// There is no silent empty-result fallback.
//
// Notes
// -----
//   - The rule table is a versioned contract with callers.  Changing the
//     wording of a canonical template requires a matching rule change;
//     classify_test.go pins every canonical template to its shape.
//   - Oxford commas, two spaces after periods.
package shape

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yanizio/vidcat/internal/errs"
)

// Canonical templates issued by callers.
const (
	TemplateUserByEmail          = "SELECT * FROM users WHERE email = ? LIMIT 1"
	TemplateUserByID             = "SELECT * FROM users WHERE id = ? LIMIT 1"
	TemplateSiteByID             = "SELECT * FROM sites WHERE id = ? LIMIT 1"
	TemplateVideoByID            = "SELECT * FROM videos WHERE id = ? LIMIT 1"
	TemplateVideosBySiteAndOwner = "SELECT * FROM videos WHERE site_id = ? AND owner_id = ? ORDER BY created_at DESC"
	TemplatePublicVideosBySite   = "SELECT * FROM videos WHERE site_id = ? AND visibility = 'public' AND status = 'active' ORDER BY created_at DESC LIMIT 100"
	TemplateVideosBySite         = "SELECT * FROM videos WHERE site_id = ? ORDER BY created_at DESC"
	TemplateVisitsByCountry      = "SELECT country_code, country_name, COUNT(*) AS count FROM visits WHERE site_id = ? AND created_at >= ? AND created_at <= ? GROUP BY country_code ORDER BY count DESC"
	TemplateVisitsByLanguage     = "SELECT language, COUNT(*) AS count FROM visits WHERE site_id = ? AND created_at >= ? AND created_at <= ? GROUP BY language ORDER BY count DESC"
	TemplateVisitsByDate         = "SELECT DATE(created_at) AS date, COUNT(*) AS count FROM visits WHERE site_id = ? AND created_at >= ? AND created_at <= ? GROUP BY DATE(created_at) ORDER BY date DESC LIMIT 90"
	TemplateVisitsTotal          = "SELECT COUNT(*) AS total FROM visits WHERE site_id = ? AND created_at >= ? AND created_at <= ?"
)

/*──────────────────────────────── rule table ───────────────────────────────*/

type binder func(b *binding) Query

type rule struct {
	kind     Kind
	table    string
	fragment string
	arity    int
	bind     binder
	reject   []string // fragments this rule cannot bind
}

var rules = []rule{
	{KindUserByEmail, "from users", "email=?", 1, func(b *binding) Query {
		return UserByEmail{Email: b.str(0, "email")}
	}, nil},
	{KindUserByID, "from users", "where id=?", 1, func(b *binding) Query {
		return UserByID{ID: b.str(0, "id")}
	}, nil},
	{KindSiteByID, "from sites", "where id=?", 1, func(b *binding) Query {
		return SiteByID{ID: b.str(0, "id")}
	}, nil},
	{KindVideosBySiteAndOwner, "from videos", "owner_id=?", 2, func(b *binding) Query {
		return VideosBySiteAndOwner{SiteID: b.str(0, "site_id"), OwnerID: b.str(1, "owner_id")}
	}, []string{"visibility", "status", "limit"}},
	{KindPublicVideosBySite, "from videos", "visibility='public'", 1, func(b *binding) Query {
		return PublicVideosBySite{SiteID: b.str(0, "site_id")}
	}, nil},
	{KindVideosBySite, "from videos", "site_id=?", 1, func(b *binding) Query {
		return VideosBySite{SiteID: b.str(0, "site_id")}
	}, []string{"visibility", "status", "limit"}},
	{KindVideoByID, "from videos", "where id=?", 1, func(b *binding) Query {
		return VideoByID{ID: b.str(0, "id")}
	}, []string{"visibility", "status"}},
	{KindVisitsByCountry, "from visits", "group by country_code", 3, func(b *binding) Query {
		return VisitsByCountry{b.scope()}
	}, nil},
	{KindVisitsByLanguage, "from visits", "group by language", 3, func(b *binding) Query {
		return VisitsByLanguage{b.scope()}
	}, nil},
	{KindVisitsByDate, "from visits", "group by date(", 3, func(b *binding) Query {
		return VisitsByDate{b.scope()}
	}, nil},
	{KindVisitsTotal, "from visits", "count(*)", 3, func(b *binding) Query {
		return VisitsTotal{b.scope()}
	}, nil},
}

/*──────────────────────────────── classifier ───────────────────────────────*/

// Classifier turns templates into shapes.  Location decides which calendar
// day a YYYY-MM-DD window bound refers to.
type Classifier struct {
	Location *time.Location
}

var defaultClassifier = Classifier{Location: time.UTC}

// Classify uses a UTC classifier.
func Classify(template string, params ...any) (Query, error) {
	return defaultClassifier.Classify(template, params...)
}

// KindOf reports the shape a template maps to without binding parameters.
func KindOf(template string) (Kind, error) {
	r, ok := match(normalise(template))
	if !ok {
		return 0, &errs.UnclassifiedQueryError{Template: template}
	}
	return r.kind, nil
}

// Classify maps template onto one shape and binds params positionally.
func (c Classifier) Classify(template string, params ...any) (Query, error) {
	norm := normalise(template)
	r, ok := match(norm)
	if !ok {
		return nil, &errs.UnclassifiedQueryError{Template: template}
	}

	placeholders := strings.Count(norm, "?")
	if placeholders != r.arity || len(params) != r.arity {
		return nil, errs.Invalid(r.kind.String(), "params",
			fmt.Sprintf("want %d positional params, template has %d placeholders and %d were given",
				r.arity, placeholders, len(params)))
	}

	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	b := &binding{kind: r.kind, params: params, loc: loc}
	q := r.bind(b)
	if b.err != nil {
		return nil, b.err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func match(norm string) (rule, bool) {
	for _, r := range rules {
		if strings.Contains(norm, r.table) && strings.Contains(norm, r.fragment) && !mentions(norm, r.reject) {
			return r, true
		}
	}
	return rule{}, false
}

// mentions reports whether norm contains any of frags.  A rule that would
// silently drop a predicate it cannot bind must not match.
func mentions(norm string, frags []string) bool {
	for _, f := range frags {
		if strings.Contains(norm, f) {
			return true
		}
	}
	return false
}

var (
	spaceRE = regexp.MustCompile(`\s+`)
	punctRE = regexp.MustCompile(`\s*([=()])\s*`)
	quoteRE = regexp.MustCompile("[\"`]")
)

func normalise(template string) string {
	s := strings.ToLower(strings.TrimSpace(template))
	s = quoteRE.ReplaceAllString(s, "'")
	s = spaceRE.ReplaceAllString(s, " ")
	return punctRE.ReplaceAllString(s, "$1")
}

/*──────────────────────────────── binding ──────────────────────────────────*/

// binding reads positional params and remembers the first failure so rule
// binders stay one-liners.
type binding struct {
	kind   Kind
	params []any
	loc    *time.Location
	err    error
}

func (b *binding) fail(field, reason string) {
	if b.err == nil {
		b.err = errs.Invalid(b.kind.String(), field, reason)
	}
}

func (b *binding) str(i int, field string) string {
	switch v := b.params[i].(type) {
	case string:
		return v
	default:
		b.fail(field, fmt.Sprintf("param %d must be a string, got %T", i, v))
		return ""
	}
}

// instant binds a window bound.  Dates are expanded to whole days;
// time.Time values are used as given.
func (b *binding) instant(i int, field string, end bool) time.Time {
	switch v := b.params[i].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.ParseInLocation(DateLayout, v, b.loc)
		if err != nil {
			b.fail(field, "must be YYYY-MM-DD")
			return time.Time{}
		}
		if end {
			return endOfDay(t)
		}
		return t
	default:
		b.fail(field, fmt.Sprintf("param %d must be a date string or time.Time, got %T", i, v))
		return time.Time{}
	}
}

func (b *binding) scope() VisitScope {
	return VisitScope{
		SiteID: b.str(0, "site_id"),
		Window: Window{
			Start: b.instant(1, "start", false),
			End:   b.instant(2, "end", true),
		},
	}
}
