package domain

import (
	"time"
)

// Tier is the ordinal capability level of a user account
type Tier string

const (
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// tierRank orders tiers: standard < premium < enterprise
var tierRank = map[Tier]int{
	TierStandard:   0,
	TierPremium:    1,
	TierEnterprise: 2,
}

// AtLeast reports whether t meets or exceeds the required tier
func (t Tier) AtLeast(required Tier) bool {
	return tierRank[t] >= tierRank[required]
}

// Valid reports whether t is one of the known tiers
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// DuplicateStrategy controls what create does when the same long URL
// is shortened again by the same owner
type DuplicateStrategy string

const (
	DuplicateReuseExisting DuplicateStrategy = "reuse_existing"
	DuplicateGenerateNew   DuplicateStrategy = "generate_new"
)

// User is an account record. The core never writes users; account
// management is external and the core only reads tier, preferences,
// and credential material.
type User struct {
	ID                string            `gorm:"primaryKey;size:64" json:"id"`
	IsActive          bool              `gorm:"default:true" json:"is_active"`
	Tier              Tier              `gorm:"size:16;default:standard" json:"tier"`
	IsAdmin           bool              `gorm:"default:false" json:"is_admin"`
	DuplicateStrategy DuplicateStrategy `gorm:"size:20;default:generate_new" json:"duplicate_strategy"`
	DefaultTTLDays    *int              `json:"default_ttl_days,omitempty"`
	APIKeyHash        string            `gorm:"size:64;index" json:"-"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"-"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// Principal returns the request identity this user authenticates as
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Tier: u.Tier, IsAdmin: u.IsAdmin}
}

// Principal is the authenticated identity of a request caller. The
// zero value is the anonymous principal.
type Principal struct {
	UserID  string `json:"user_id,omitempty"`
	Tier    Tier   `json:"tier,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// Anonymous returns the unauthenticated principal
func Anonymous() Principal {
	return Principal{}
}

// IsAnonymous reports whether the caller presented no valid credential
func (p Principal) IsAnonymous() bool {
	return p.UserID == ""
}

// OwnerRef returns the owner id to stamp on mappings, nil for anonymous
func (p Principal) OwnerRef() *string {
	if p.IsAnonymous() {
		return nil
	}
	id := p.UserID
	return &id
}

// EventType names a lifecycle event delivered via webhooks or the
// analytics queue
type EventType string

const (
	EventURLCreated  EventType = "url.created"
	EventURLClicked  EventType = "url.clicked"
	EventURLExpired  EventType = "url.expired"
	EventURLDeleted  EventType = "url.deleted"
	EventWebhookTest EventType = "webhook.test"
)

// NotificationSettings holds a user's webhook destination and per-event
// enablement. Click notifications default to off; their volume tracks
// redirect traffic.
type NotificationSettings struct {
	UserID     string    `gorm:"primaryKey;size:64" json:"user_id"`
	WebhookURL string    `gorm:"type:text" json:"webhook_url"`
	Secret     string    `gorm:"size:128" json:"-"`
	URLCreated bool      `gorm:"default:true" json:"url_created"`
	URLClicked bool      `gorm:"default:false" json:"url_clicked"`
	URLExpired bool      `gorm:"default:true" json:"url_expired"`
	URLDeleted bool      `gorm:"default:true" json:"url_deleted"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"-"`
}

// TableName specifies the table name for GORM
func (NotificationSettings) TableName() string {
	return "notification_settings"
}

// EnabledFor reports whether the given event should be delivered
func (s *NotificationSettings) EnabledFor(event EventType) bool {
	if s == nil || s.WebhookURL == "" {
		return false
	}
	switch event {
	case EventURLCreated:
		return s.URLCreated
	case EventURLClicked:
		return s.URLClicked
	case EventURLExpired:
		return s.URLExpired
	case EventURLDeleted:
		return s.URLDeleted
	case EventWebhookTest:
		return true // test deliveries bypass the per-event flags
	default:
		return false
	}
}
