package model

import "time"

// Link describes the core short-link entity stored in Postgres.
//
// Code is assigned once and never points at a different target
// afterwards; ClickCount is only ever mutated through the repository's
// atomic increment.
type Link struct {
	Code       string     `db:"code" gorm:"primaryKey;size:32"`
	TargetURL  string     `db:"target_url" gorm:"type:text;not null"`
	OwnerID    string     `db:"owner_id" gorm:"size:64;index;default:''"`
	ClickCount int64      `db:"click_count" gorm:"not null;default:0"`
	ExpiresAt  *time.Time `db:"expires_at" gorm:"index"`
	CreatedAt  time.Time  `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `db:"updated_at" gorm:"autoUpdateTime"`
}

// Expired reports whether the link is past its expiry at the given instant.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
