package models

import "time"

// Session is the server-side record behind a bearer token. A token is only
// valid while its session row exists and ExpiresAt is in the future.
type Session struct {
	ID                    string    `gorm:"primaryKey;size:64"`
	CreatedAt             time.Time
	UserID                uint      `gorm:"not null;index"`
	TokenHash             string    `gorm:"uniqueIndex;not null;size:64"` // SHA-256 of the bearer token
	CurrentOrganizationID *uint
	ExpiresAt             time.Time `gorm:"not null;index"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
