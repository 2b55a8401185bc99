package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

var (
	_ Store         = (*GormStore)(nil)
	_ DocumentIndex = (*GormStore)(nil)
)

// GormStore implements Store and DocumentIndex with GORM.
// The *gorm.DB must be opened with TranslateError enabled.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// first runs q into dest, mapping "no rows" to found=false.
func first[T any](q *gorm.DB, dest *T) (*T, error) {
	if err := q.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dest, nil
}

func uniqueViolation(op, constraint, message string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Conflict(op, constraint, message)
	}
	return err
}

// Users ---------------------------------------------------------------------

func (s *GormStore) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	return first(s.conn(ctx).Where("id = ?", id), &models.User{})
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return first(s.conn(ctx).Where("username = ?", username), &models.User{})
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return first(s.conn(ctx).Where("email = ?", email), &models.User{})
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	err := s.conn(ctx).Create(u).Error
	return uniqueViolation("store.create_user", "users.username_or_email", "Username or email already registered", err)
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (s *GormStore) ListUsers(ctx context.Context, search string) ([]models.User, error) {
	q := s.conn(ctx).Order("created_at DESC, id DESC")
	if search != "" {
		like := "%" + likeEscaper.Replace(search) + "%"
		q = q.Where(`username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'`, like, like)
	}
	var users []models.User
	err := q.Find(&users).Error
	return users, err
}

func (s *GormStore) UpdateUserRole(ctx context.Context, id uint, role models.SystemRole) error {
	res := s.conn(ctx).Model(&models.User{}).Where("id = ?", id).Update("system_role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("store.update_user_role", "user")
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	now := time.Now().UTC()
	counts := []struct {
		dest  *int64
		model any
		where string
		args  []any
	}{
		{&st.TotalUsers, &models.User{}, "", nil},
		{&st.AdminUsers, &models.User{}, "system_role = ?", []any{models.SystemRoleAdmin}},
		{&st.TotalOrganizations, &models.Organization{}, "", nil},
		{&st.ActiveSessions, &models.Session{}, "expires_at > ?", []any{now}},
		{&st.TotalDocuments, &models.Document{}, "is_folder = ?", []any{false}},
		{&st.ArchivedDocuments, &models.Document{}, "archived = ? AND deleted = ?", []any{true, false}},
		{&st.DeletedDocuments, &models.Document{}, "deleted = ?", []any{true}},
	}
	for _, c := range counts {
		q := s.conn(ctx).Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// Sessions ------------------------------------------------------------------

func (s *GormStore) FindSessionByTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	return first(s.conn(ctx).Where("token_hash = ?", hash), &models.Session{})
}

func (s *GormStore) InsertSession(ctx context.Context, sess *models.Session) error {
	return s.conn(ctx).Create(sess).Error
}

func (s *GormStore) DeleteSessionByTokenHash(ctx context.Context, hash string) (bool, error) {
	res := s.conn(ctx).Where("token_hash = ?", hash).Delete(&models.Session{})
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) DeleteSessionsByUser(ctx context.Context, userID uint) error {
	return s.conn(ctx).Where("user_id = ?", userID).Delete(&models.Session{}).Error
}

// Organizations -------------------------------------------------------------

func (s *GormStore) FindOrganizationByID(ctx context.Context, id uint) (*models.Organization, error) {
	return first(s.conn(ctx).Where("id = ?", id), &models.Organization{})
}

func (s *GormStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return uniqueViolation("store.create_organization", "organizations.slug", "This slug is already taken", err)
		}
		membership := models.OrganizationMembership{
			OrganizationID: org.ID,
			UserID:         org.OwnerID,
			Role:           models.OrgRoleAdmin,
		}
		return tx.Create(&membership).Error
	})
	return err
}

func (s *GormStore) UpdateOrganizationName(ctx context.Context, id uint, name string) error {
	return s.conn(ctx).Model(&models.Organization{}).Where("id = ?", id).Update("name", name).Error
}

func (s *GormStore) ListUserOrganizations(ctx context.Context, userID uint) ([]models.OrganizationMembership, error) {
	var memberships []models.OrganizationMembership
	err := s.conn(ctx).Preload("Organization").Where("user_id = ?", userID).Order("organization_id").Find(&memberships).Error
	return memberships, err
}

// Memberships ---------------------------------------------------------------

func (s *GormStore) FindMembership(ctx context.Context, orgID, userID uint) (*models.OrganizationMembership, error) {
	return first(s.conn(ctx).Where("organization_id = ? AND user_id = ?", orgID, userID), &models.OrganizationMembership{})
}

// IsOrgAdmin treats the owner as an admin regardless of the membership row.
func (s *GormStore) IsOrgAdmin(ctx context.Context, orgID, userID uint) (bool, error) {
	org, err := s.FindOrganizationByID(ctx, orgID)
	if err != nil || org == nil {
		return false, err
	}
	if org.OwnerID == userID {
		return true, nil
	}
	m, err := s.FindMembership(ctx, orgID, userID)
	if err != nil || m == nil {
		return false, err
	}
	return m.Role == models.OrgRoleAdmin, nil
}

func (s *GormStore) ListMemberships(ctx context.Context, orgID uint) ([]models.OrganizationMembership, error) {
	var memberships []models.OrganizationMembership
	err := s.conn(ctx).Preload("User").Where("organization_id = ?", orgID).Order("id").Find(&memberships).Error
	return memberships, err
}

func (s *GormStore) AddMembership(ctx context.Context, m *models.OrganizationMembership) error {
	err := s.conn(ctx).Create(m).Error
	return uniqueViolation("store.add_membership", "organization_memberships.org_user", "User is already a member", err)
}

func (s *GormStore) UpdateMembershipRole(ctx context.Context, orgID, userID uint, role models.OrgRole) error {
	res := s.conn(ctx).Model(&models.OrganizationMembership{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("store.update_membership", "membership")
	}
	return nil
}

func (s *GormStore) RemoveMembership(ctx context.Context, orgID, userID uint) error {
	res := s.conn(ctx).Where("organization_id = ? AND user_id = ?", orgID, userID).Delete(&models.OrganizationMembership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("store.remove_membership", "membership")
	}
	return nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// Document index ------------------------------------------------------------

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeChildren returns a LIKE pattern matching every path below p.
func likeChildren(p string) string {
	return likeEscaper.Replace(strings.TrimSuffix(p, "/")) + `/%`
}

func (s *GormStore) subtree(ctx context.Context, orgID uint, p string) *gorm.DB {
	q := s.conn(ctx).Where("organization_id = ?", orgID)
	if p == "/" {
		return q
	}
	return q.Where(`path = ? OR path LIKE ? ESCAPE '\'`, p, likeChildren(p))
}

func (s *GormStore) FindDocument(ctx context.Context, orgID uint, path string) (*models.Document, error) {
	return first(s.conn(ctx).Where("organization_id = ? AND path = ?", orgID, path), &models.Document{})
}

func (s *GormStore) DocumentsIn(ctx context.Context, orgID uint, paths []string) ([]models.Document, error) {
	var docs []models.Document
	if len(paths) == 0 {
		return docs, nil
	}
	err := s.conn(ctx).Where("organization_id = ? AND path IN ?", orgID, paths).Find(&docs).Error
	return docs, err
}

func (s *GormStore) EnsureDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	existing, err := s.FindDocument(ctx, doc.OrganizationID, doc.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if err := s.conn(ctx).Create(doc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.FindDocument(ctx, doc.OrganizationID, doc.Path)
		}
		return nil, err
	}
	return doc, nil
}

func (s *GormStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	return s.conn(ctx).Save(doc).Error
}

func (s *GormStore) MoveDocuments(ctx context.Context, orgID uint, from, to string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		txs := &GormStore{db: tx}
		// Rows at the destination are stale: the target does not exist on disk.
		if err := txs.subtree(ctx, orgID, to).Delete(&models.Document{}).Error; err != nil {
			return err
		}
		var docs []models.Document
		if err := txs.subtree(ctx, orgID, from).Find(&docs).Error; err != nil {
			return err
		}
		for _, d := range docs {
			newPath := to + strings.TrimPrefix(d.Path, from)
			if err := tx.Model(&models.Document{}).Where("id = ?", d.ID).Update("path", newPath).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteDocuments(ctx context.Context, orgID uint, path string) error {
	return s.subtree(ctx, orgID, path).Delete(&models.Document{}).Error
}

func (s *GormStore) ListDeleted(ctx context.Context, orgID uint) ([]models.Document, error) {
	var docs []models.Document
	err := s.conn(ctx).Where("organization_id = ? AND deleted = ?", orgID, true).Order("deleted_at DESC").Find(&docs).Error
	return docs, err
}

func (s *GormStore) ListExpired(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	var docs []models.Document
	err := s.conn(ctx).Where("deleted = ? AND deleted_at < ?", true, cutoff).Order("organization_id, path").Find(&docs).Error
	return docs, err
}
