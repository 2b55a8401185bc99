// Package store is the relational side of marknotes: users, organizations,
// memberships, sessions and the document state index.
//
// Lookups return (nil, nil) when the row does not exist. Unique constraint
// violations are reported as errs.KindConflict naming the constraint.
package store

import (
	"context"
	"time"

	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

// Store describes the row operations the session, authorization and
// organization layers need.
type Store interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	CountUsers(ctx context.Context) (int64, error)
	// ListUsers returns users newest first, optionally filtered by a
	// substring of username or email.
	ListUsers(ctx context.Context, search string) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id uint, role models.SystemRole) error
	Stats(ctx context.Context) (*Stats, error)

	FindSessionByTokenHash(ctx context.Context, hash string) (*models.Session, error)
	InsertSession(ctx context.Context, s *models.Session) error
	// DeleteSessionByTokenHash reports whether a session was deleted.
	DeleteSessionByTokenHash(ctx context.Context, hash string) (bool, error)
	DeleteSessionsByUser(ctx context.Context, userID uint) error

	FindOrganizationByID(ctx context.Context, id uint) (*models.Organization, error)
	// CreateOrganization inserts org and an admin membership for its owner atomically.
	CreateOrganization(ctx context.Context, org *models.Organization) error
	UpdateOrganizationName(ctx context.Context, id uint, name string) error
	ListUserOrganizations(ctx context.Context, userID uint) ([]models.OrganizationMembership, error)

	FindMembership(ctx context.Context, orgID, userID uint) (*models.OrganizationMembership, error)
	IsOrgAdmin(ctx context.Context, orgID, userID uint) (bool, error)
	ListMemberships(ctx context.Context, orgID uint) ([]models.OrganizationMembership, error)
	AddMembership(ctx context.Context, m *models.OrganizationMembership) error
	UpdateMembershipRole(ctx context.Context, orgID, userID uint, role models.OrgRole) error
	RemoveMembership(ctx context.Context, orgID, userID uint) error

	// Transaction runs fn against a Store bound to a single transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// Stats are the system-wide counters shown to admins.
type Stats struct {
	TotalUsers         int64 `json:"total_users"`
	AdminUsers         int64 `json:"admin_users"`
	TotalOrganizations int64 `json:"total_organizations"`
	ActiveSessions     int64 `json:"active_sessions"`
	TotalDocuments     int64 `json:"total_documents"`
	ArchivedDocuments  int64 `json:"archived_documents"`
	DeletedDocuments   int64 `json:"deleted_documents"`
}

// DocumentIndex persists per-document lifecycle flags.
type DocumentIndex interface {
	FindDocument(ctx context.Context, orgID uint, path string) (*models.Document, error)
	// DocumentsIn returns the rows whose paths are in paths.
	DocumentsIn(ctx context.Context, orgID uint, paths []string) ([]models.Document, error)
	// EnsureDocument returns the row for path, creating it if needed.
	EnsureDocument(ctx context.Context, doc *models.Document) (*models.Document, error)
	SaveDocument(ctx context.Context, doc *models.Document) error
	// MoveDocuments rewrites from and every path below it to live under to.
	MoveDocuments(ctx context.Context, orgID uint, from, to string) error
	// DeleteDocuments removes path and every row below it.
	DeleteDocuments(ctx context.Context, orgID uint, path string) error
	ListDeleted(ctx context.Context, orgID uint) ([]models.Document, error)
	// ListExpired returns deleted rows of any organization with DeletedAt before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]models.Document, error)
}
