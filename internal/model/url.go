package model

import (
	"time"
)

// URL represents a shortened URL record.
//
// ShortCode and CustomAlias form a single logical identifier namespace
// backed by two columns; both carry unique indexes so the database is the
// final arbiter of uniqueness under concurrent creation.
//
// Reachability rules (active, not expired, under the click cap) are
// deliberately not methods on this type; see the policy package.
type URL struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	LongURL        string     `gorm:"type:varchar(2048);not null" json:"long_url"`
	ShortCode      string     `gorm:"uniqueIndex;type:varchar(50);not null" json:"short_code"`
	CustomAlias    *string    `gorm:"uniqueIndex;type:varchar(50)" json:"custom_alias,omitempty"`
	Title          *string    `gorm:"type:varchar(255)" json:"title,omitempty"`
	Description    *string    `gorm:"type:varchar(500)" json:"description,omitempty"`
	CreatorIP      *string    `gorm:"type:varchar(45)" json:"creator_ip,omitempty"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	ClickCount     uint64     `gorm:"not null;default:0" json:"click_count"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	PasswordHash   *string    `gorm:"type:varchar(255)" json:"-"`
	MaxClicks      *uint64    `json:"max_clicks,omitempty"`
}

// TableName specifies the table name for URL
func (URL) TableName() string {
	return "urls"
}

// Identifiers returns the short code and, when present, the custom alias.
func (u *URL) Identifiers() []string {
	ids := []string{u.ShortCode}
	if u.CustomAlias != nil {
		ids = append(ids, *u.CustomAlias)
	}
	return ids
}
