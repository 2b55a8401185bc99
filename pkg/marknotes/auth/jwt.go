package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

const issuer = "marknotes"

// Claims mirrors the session row so a token can be checked against it.
type Claims struct {
	SessionID string         `json:"sid"`
	UserID    uint           `json:"user_id"`
	Username  string         `json:"username"`
	IsAdmin   bool           `json:"is_admin"`
	OrgID     *uint          `json:"org_id,omitempty"`
	OrgRole   models.OrgRole `json:"org_role,omitempty"`
	jwt.RegisteredClaims
}

func (a *Authority) sign(sess *models.Session, user *models.User, role models.OrgRole) (string, error) {
	claims := &Claims{
		SessionID: sess.ID,
		UserID:    user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin(),
		OrgID:     sess.CurrentOrganizationID,
		OrgRole:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(a.now()),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authority) parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// hashToken is the only form of a token that is persisted.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// expiryFrom truncates to the precision of the JWT exp claim so the row and
// the token expire at the same instant.
func expiryFrom(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl).UTC().Truncate(time.Second)
}
