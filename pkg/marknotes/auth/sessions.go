// Package auth issues and validates session-backed bearer tokens and gates
// requests by global and per-organization role.
//
// A token is valid only while both hold: its session row exists and has not
// expired, and its signature and claims verify against that row.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/metrics"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
)

// DefaultSessionTTL is the lifetime of a freshly issued session.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Principal is the verified identity behind a request.
type Principal struct {
	SessionID      string         `json:"session_id"`
	UserID         uint           `json:"user_id"`
	Username       string         `json:"username"`
	IsAdmin        bool           `json:"is_admin"`
	OrganizationID *uint          `json:"organization_id,omitempty"`
	OrgRole        models.OrgRole `json:"organization_role,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// Issued is a freshly signed token and the principal it represents.
type Issued struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"-"`
}

// Authority owns session rows and the tokens that reference them.
type Authority struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithSessionTTL overrides DefaultSessionTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// NewAuthority returns an Authority signing tokens with secret.
func NewAuthority(st store.Store, secret []byte, opts ...Option) (*Authority, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	a := &Authority{
		store:  st,
		secret: secret,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue creates a session for user with no organization selected.
func (a *Authority) Issue(ctx context.Context, user *models.User) (*Issued, error) {
	sess := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: expiryFrom(a.now(), a.ttl),
	}
	token, err := a.sign(sess, user, "")
	if err != nil {
		return nil, errs.Internal("auth.issue", err)
	}
	sess.TokenHash = hashToken(token)
	if err := a.store.InsertSession(ctx, sess); err != nil {
		return nil, errs.Internal("auth.issue", err)
	}
	return a.issued(token, sess, user, ""), nil
}

// Validate resolves token to a Principal. Expired session rows are deleted.
func (a *Authority) Validate(ctx context.Context, token string) (*Principal, error) {
	p, err := a.validate(ctx, token)
	metrics.ObserveSessionValidation(err)
	return p, err
}

func (a *Authority) validate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, errs.Unauthorized("Authentication required")
	}
	hash := hashToken(token)
	sess, err := a.store.FindSessionByTokenHash(ctx, hash)
	if err != nil {
		return nil, errs.Internal("auth.validate", err)
	}
	if sess == nil {
		return nil, errs.Unauthorized("Invalid or revoked token")
	}
	if !a.now().Before(sess.ExpiresAt) {
		if _, err := a.store.DeleteSessionByTokenHash(ctx, hash); err != nil {
			return nil, errs.Internal("auth.validate", err)
		}
		return nil, errs.Unauthorized("Session has expired")
	}

	claims, err := a.parse(token)
	if err != nil {
		return nil, errs.Unauthorized("Invalid token")
	}
	if claims.SessionID != sess.ID || claims.UserID != sess.UserID || !sameOrg(claims.OrgID, sess.CurrentOrganizationID) {
		return nil, errs.Unauthorized("Invalid token")
	}

	user, err := a.store.FindUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, errs.Internal("auth.validate", err)
	}
	if user == nil {
		return nil, errs.Unauthorized("Invalid token")
	}

	p := principalFor(sess, user, claims.OrgRole)
	return &p, nil
}

// SwitchOrganization replaces the session behind token with one scoped to
// orgID. The old token stops working. The caller is responsible for having
// checked that the user holds role in orgID.
func (a *Authority) SwitchOrganization(ctx context.Context, token string, orgID uint, role models.OrgRole) (*Issued, error) {
	p, err := a.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := a.store.FindUserByID(ctx, p.UserID)
	if err != nil {
		return nil, errs.Internal("auth.switch_organization", err)
	}
	if user == nil {
		return nil, errs.Unauthorized("Invalid token")
	}

	sess := &models.Session{
		ID:                    p.SessionID,
		UserID:                p.UserID,
		CurrentOrganizationID: &orgID,
		ExpiresAt:             expiryFrom(a.now(), a.ttl),
	}
	next, err := a.sign(sess, user, role)
	if err != nil {
		return nil, errs.Internal("auth.switch_organization", err)
	}
	sess.TokenHash = hashToken(next)

	err = a.store.Transaction(ctx, func(tx store.Store) error {
		deleted, err := tx.DeleteSessionByTokenHash(ctx, hashToken(token))
		if err != nil {
			return err
		}
		if !deleted {
			// Another switch or a logout consumed the token after Validate.
			return errs.Unauthorized("Invalid or revoked token")
		}
		return tx.InsertSession(ctx, sess)
	})
	if err != nil {
		return nil, errs.Internal("auth.switch_organization", err)
	}
	return a.issued(next, sess, user, role), nil
}

// Revoke deletes the session behind token. Unknown tokens are ignored.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	if _, err := a.store.DeleteSessionByTokenHash(ctx, hashToken(token)); err != nil {
		return errs.Internal("auth.revoke", err)
	}
	return nil
}

// RevokeUser deletes every session of userID.
func (a *Authority) RevokeUser(ctx context.Context, userID uint) error {
	if err := a.store.DeleteSessionsByUser(ctx, userID); err != nil {
		return errs.Internal("auth.revoke_user", err)
	}
	return nil
}

func (a *Authority) issued(token string, sess *models.Session, user *models.User, role models.OrgRole) *Issued {
	return &Issued{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		Principal: principalFor(sess, user, role),
	}
}

func principalFor(sess *models.Session, user *models.User, role models.OrgRole) Principal {
	return Principal{
		SessionID:      sess.ID,
		UserID:         user.ID,
		Username:       user.Username,
		IsAdmin:        user.IsAdmin(),
		OrganizationID: sess.CurrentOrganizationID,
		OrgRole:        role,
		ExpiresAt:      sess.ExpiresAt,
	}
}

func sameOrg(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
