package models

import "time"

// Document tracks the lifecycle flags of an item on disk. Content and
// sidecar metadata stay on the filesystem; only state lives here.
type Document struct {
	ID             uint       `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	OrganizationID uint       `gorm:"not null;uniqueIndex:idx_org_path" json:"organization_id"`
	Path           string     `gorm:"not null;uniqueIndex:idx_org_path" json:"path"` // cleaned logical path
	IsFolder       bool       `gorm:"default:false" json:"is_folder"`
	CreatedByID    uint       `json:"created_by_id"`
	Archived       bool       `gorm:"default:false;index" json:"archived"`
	ArchivedAt     *time.Time `json:"archived_at"`
	Deleted        bool       `gorm:"default:false;index" json:"deleted"`
	DeletedAt      *time.Time `gorm:"index" json:"deleted_at"`
}
