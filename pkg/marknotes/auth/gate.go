package auth

import (
	"context"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
)

// Gate turns tokens into principals and checks their roles.
type Gate struct {
	authority *Authority
	store     store.Store
}

// NewGate returns a Gate backed by authority and st.
func NewGate(authority *Authority, st store.Store) *Gate {
	return &Gate{authority: authority, store: st}
}

// Authority returns the session authority behind the gate.
func (g *Gate) Authority() *Authority {
	return g.authority
}

// RequireAuth validates token.
func (g *Gate) RequireAuth(ctx context.Context, token string) (*Principal, error) {
	return g.authority.Validate(ctx, token)
}

// RequireAdmin validates token and requires the global admin role.
func (g *Gate) RequireAdmin(ctx context.Context, token string) (*Principal, error) {
	p, err := g.RequireAuth(ctx, token)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin {
		return nil, errs.Forbidden("Admin access required")
	}
	return p, nil
}

// RequireOrgRole returns userID's role in orgID if it is at least min.
// The owner is recognized from the organization row, not the membership.
func (g *Gate) RequireOrgRole(ctx context.Context, orgID, userID uint, min models.OrgRole) (models.OrgRole, error) {
	org, err := g.store.FindOrganizationByID(ctx, orgID)
	if err != nil {
		return "", errs.Internal("auth.require_org_role", err)
	}
	if org == nil {
		return "", &errs.Error{Kind: errs.KindNotFound, Op: "auth.require_org_role", Message: "Organization not found"}
	}

	if min == models.OrgRoleAdmin {
		return g.requireOrgAdmin(ctx, org, userID)
	}

	var role models.OrgRole
	if org.OwnerID == userID {
		role = models.OrgRoleOwner
	} else {
		m, err := g.store.FindMembership(ctx, orgID, userID)
		if err != nil {
			return "", errs.Internal("auth.require_org_role", err)
		}
		if m == nil {
			return "", errs.Forbidden("Not a member of this organization")
		}
		role = m.Role
	}

	if !role.AtLeast(min) {
		return "", errs.Forbidden("Insufficient organization role")
	}
	return role, nil
}

func (g *Gate) requireOrgAdmin(ctx context.Context, org *models.Organization, userID uint) (models.OrgRole, error) {
	ok, err := g.store.IsOrgAdmin(ctx, org.ID, userID)
	if err != nil {
		return "", errs.Internal("auth.require_org_role", err)
	}
	if !ok {
		return "", errs.Forbidden("Insufficient organization role")
	}
	if org.OwnerID == userID {
		return models.OrgRoleOwner, nil
	}
	return models.OrgRoleAdmin, nil
}
