package auth

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

const (
	// ContextKeyPrincipal holds the *Principal of an authenticated request
	ContextKeyPrincipal = "principal"
	// ContextKeyToken holds the raw bearer token
	ContextKeyToken = "token"
	// ContextKeyOrgID holds the organization ID checked by OrgRole
	ContextKeyOrgID = "organization_id"
	// ContextKeyOrgRole holds the caller's role in that organization
	ContextKeyOrgRole = "organization_role"
)

// Middleware authenticates the bearer token and stores the principal.
func Middleware(g *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			errs.Respond(c, errs.Unauthorized("Authorization header required"))
			return
		}
		p, err := g.RequireAuth(c.Request.Context(), token)
		if err != nil {
			errs.Respond(c, err)
			return
		}
		c.Set(ContextKeyPrincipal, p)
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

// AdminOnly requires the global admin role. It must run after Middleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			errs.Respond(c, errs.Unauthorized("Authentication required"))
			return
		}
		if !p.IsAdmin {
			errs.Respond(c, errs.Forbidden("Admin access required"))
			return
		}
		c.Next()
	}
}

// OrgRole requires the caller to hold at least min in the organization named
// by the path parameter param. It must run after Middleware.
func OrgRole(g *Gate, param string, min models.OrgRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			errs.Respond(c, errs.Unauthorized("Authentication required"))
			return
		}
		orgID, err := strconv.ParseUint(c.Param(param), 10, 32)
		if err != nil {
			errs.Respond(c, errs.Invalid("auth.org_role", "Invalid organization ID"))
			return
		}
		role, err := g.RequireOrgRole(c.Request.Context(), uint(orgID), p.UserID, min)
		if err != nil {
			errs.Respond(c, err)
			return
		}
		c.Set(ContextKeyOrgID, uint(orgID))
		c.Set(ContextKeyOrgRole, role)
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal from the gin context
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

// GetUserID returns the authenticated user's ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	p, ok := GetPrincipal(c)
	if !ok {
		return 0, false
	}
	return p.UserID, true
}

// GetToken returns the raw bearer token from the gin context
func GetToken(c *gin.Context) (string, bool) {
	token := c.GetString(ContextKeyToken)
	return token, token != ""
}

// GetOrgID returns the organization ID set by OrgRole
func GetOrgID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(ContextKeyOrgID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetOrgRole returns the organization role set by OrgRole
func GetOrgRole(c *gin.Context) (models.OrgRole, bool) {
	v, exists := c.Get(ContextKeyOrgRole)
	if !exists {
		return "", false
	}
	role, ok := v.(models.OrgRole)
	return role, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
