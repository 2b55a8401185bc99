package models

import (
	"time"
)

// OrgRole represents a user's role within an organization
type OrgRole string

const (
	// OrgRoleOwner is never stored in a membership row; it is derived from
	// Organization.OwnerID.
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// Rank orders roles: owner > admin > member. Unknown roles rank 0.
func (r OrgRole) Rank() int {
	switch r {
	case OrgRoleOwner:
		return 3
	case OrgRoleAdmin:
		return 2
	case OrgRoleMember:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r satisfies min.
func (r OrgRole) AtLeast(min OrgRole) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// Assignable reports whether r may be stored in a membership row.
func (r OrgRole) Assignable() bool {
	return r == OrgRoleAdmin || r == OrgRoleMember
}

// Organization is a tenant boundary. Its documents live under
// <document root>/<ID>. OwnerID is set at creation and never changes.
type Organization struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`

	// Relationships
	Owner   User                     `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members []OrganizationMembership `gorm:"foreignKey:OrganizationID" json:"members,omitempty"`
}

// OrganizationMembership represents the many-to-many relationship between users and organizations.
// The owner has a row too (role admin); the owner role itself comes from Organization.OwnerID.
type OrganizationMembership struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	OrganizationID uint      `gorm:"not null;uniqueIndex:idx_org_user" json:"organization_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_org_user" json:"user_id"`
	Role           OrgRole   `gorm:"type:varchar(20);default:'member'" json:"role"`

	// Relationships
	Organization Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
