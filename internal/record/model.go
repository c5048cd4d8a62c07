// internal/record/model.go
//
// Persistent document models.
//
// Context
// -------
// Each struct mirrors one document in its collection.  Documents are
// independent: there are no cross-document transactions, and the store
// does not enforce foreign keys.  Referential checks live in the mutation
// pipeline.
//
//	sites              _id (slug), name, domain, homepage_url
//	users              _id, site_id (null = global), email (unique when present)
//	videos             _id, site_id → sites, owner_id → users, counters ≥ 0
//	visits             append-only event rows used only for aggregation
//	stats_adjustments  append-only audit rows, one per counter overwrite
//
// Notes
// -----
//   - Tags: `bson` for the store, `json` for CLI output, `validate` for
//     go-playground/validator.
//   - Optional strings use `omitempty` so absent values are not stored.
//     The users.email unique index relies on that.
//   - Oxford commas, two spaces after periods.
package record

import "time"

// Collection names.
const (
	CollSites            = "sites"
	CollUsers            = "users"
	CollVideos           = "videos"
	CollVisits           = "visits"
	CollStatsAdjustments = "stats_adjustments"
)

// Enum values.
const (
	RoleAdmin   = "admin"
	RoleCreator = "creator"

	UserActive    = "active"
	UserSuspended = "suspended"

	PlatformYouTube  = "youtube"
	PlatformFacebook = "facebook"
	PlatformOther    = "other"

	VideoActive   = "active"
	VideoArchived = "archived"

	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Record is implemented by every persisted model.
type Record interface {
	Collection() string
}

//
// Site
//

// Site is one tenant.  The id is a stable slug chosen by the caller.
type Site struct {
	ID          string    `bson:"_id"                    json:"id"                     validate:"required,max=64"`
	Name        string    `bson:"name"                   json:"name"                   validate:"required"`
	Domain      string    `bson:"domain,omitempty"       json:"domain,omitempty"       validate:"omitempty,hostname"`
	HomepageURL string    `bson:"homepage_url,omitempty" json:"homepage_url,omitempty" validate:"omitempty,url"`
	CreatedAt   time.Time `bson:"created_at"             json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"             json:"updated_at"`
}

func (*Site) Collection() string { return CollSites }

//
// User
//

// User is an account.  A nil SiteID marks a global (not site-scoped) user.
type User struct {
	ID           string    `bson:"_id"                     json:"id"                validate:"required"`
	SiteID       *string   `bson:"site_id"                 json:"site_id"`
	Name         string    `bson:"name"                    json:"name"              validate:"required"`
	Email        string    `bson:"email,omitempty"         json:"email,omitempty"   validate:"omitempty,email"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	PasswordSalt string    `bson:"password_salt,omitempty" json:"-"`
	Role         string    `bson:"role"                    json:"role"              validate:"oneof=admin creator"`
	Status       string    `bson:"status"                  json:"status"            validate:"oneof=active suspended"`
	APIKeyHash   string    `bson:"api_key_hash,omitempty"  json:"-"`
	APIKeySalt   string    `bson:"api_key_salt,omitempty"  json:"-"`
	CreatedAt    time.Time `bson:"created_at"              json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"              json:"updated_at"`
}

func (*User) Collection() string { return CollUsers }

//
// Video
//

// Counters are the engagement counters carried by a Video.  All three must
// stay non-negative.
type Counters struct {
	Views  int64 `bson:"views_count"  json:"views_count"  validate:"min=0"`
	Likes  int64 `bson:"likes_count"  json:"likes_count"  validate:"min=0"`
	Shares int64 `bson:"shares_count" json:"shares_count" validate:"min=0"`
}

// Video is one catalog entry.
type Video struct {
	ID             string     `bson:"_id"                        json:"id"                         validate:"required"`
	SiteID         string     `bson:"site_id"                    json:"site_id"                    validate:"required"`
	OwnerID        string     `bson:"owner_id"                   json:"owner_id"                   validate:"required"`
	Platform       string     `bson:"platform"                   json:"platform"                   validate:"oneof=youtube facebook other"`
	VideoID        string     `bson:"video_id,omitempty"         json:"video_id,omitempty"`
	SourceURL      string     `bson:"source_url,omitempty"       json:"source_url,omitempty"       validate:"omitempty,url"`
	Title          string     `bson:"title"                      json:"title"`
	ThumbnailURL   string     `bson:"thumbnail_url,omitempty"    json:"thumbnail_url,omitempty"`
	EmbedURL       string     `bson:"embed_url,omitempty"        json:"embed_url,omitempty"`
	Language       string     `bson:"language"                   json:"language"                   validate:"required,max=16"`
	Status         string     `bson:"status"                     json:"status"                     validate:"oneof=active archived"`
	Visibility     string     `bson:"visibility"                 json:"visibility"                 validate:"oneof=public private"`
	Counters       `bson:",inline"`
	StatsUpdatedAt *time.Time `bson:"stats_updated_at,omitempty" json:"stats_updated_at,omitempty"`
	StatsUpdatedBy string     `bson:"stats_updated_by,omitempty" json:"stats_updated_by,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"                 json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"                 json:"updated_at"`
}

func (*Video) Collection() string { return CollVideos }

//
// Visit
//

// Visit is one page-view event.  Never updated after insert.
type Visit struct {
	ID          string    `bson:"_id"                json:"id"                 validate:"required"`
	SiteID      string    `bson:"site_id"            json:"site_id"            validate:"required"`
	IPAddress   string    `bson:"ip_address"         json:"ip_address"         validate:"omitempty,ip"`
	CountryCode string    `bson:"country_code"       json:"country_code"       validate:"required,len=2"`
	CountryName string    `bson:"country_name"       json:"country_name"`
	Language    string    `bson:"language"           json:"language"           validate:"required,max=16"`
	PageURL     string    `bson:"page_url,omitempty" json:"page_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at"         json:"created_at"`
}

func (*Visit) Collection() string { return CollVisits }

//
// StatsAdjustment
//

// StatsAdjustment is the audit row written once per counter overwrite.
type StatsAdjustment struct {
	ID        string    `bson:"_id"        json:"id"`
	VideoID   string    `bson:"video_id"   json:"video_id"`
	AdminID   string    `bson:"admin_id"   json:"admin_id"`
	Before    Counters  `bson:"before"     json:"before"`
	After     Counters  `bson:"after"      json:"after"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (*StatsAdjustment) Collection() string { return CollStatsAdjustments }
