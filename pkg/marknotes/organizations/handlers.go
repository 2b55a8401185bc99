package organizations

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/marknotes/pkg/marknotes/auth"
	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

var reservedSlugs = []string{"api", "health", "metrics", "admin", "login", "logout", "register", "auth"}

// Handler handles organization-related requests
type Handler struct {
	store store.Store
	gate  *auth.Gate
}

// NewHandler creates a new organizations handler
func NewHandler(st store.Store, gate *auth.Gate) *Handler {
	return &Handler{store: st, gate: gate}
}

// CreateOrgRequest represents the request to create an organization
type CreateOrgRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
	Slug string `json:"slug" binding:"required,min=1,max=50"`
}

// UpdateOrgRequest represents the request to update an organization
type UpdateOrgRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// OrgResponse represents an organization in API responses
type OrgResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	OwnerID     uint      `json:"owner_id"`
	Role        string    `json:"role,omitempty"` // caller's role in this org
	MemberCount int       `json:"member_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MemberResponse represents a member in API responses
type MemberResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AddMemberRequest names an existing user by username or email
type AddMemberRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
	Role     string `json:"role" binding:"required,oneof=admin member"`
}

// UpdateMemberRequest represents the request to update a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member"`
}

func validateSlug(slug string) error {
	if !slugRegex.MatchString(slug) {
		return errs.Invalid("organizations.create", "Slug must contain only lowercase letters, numbers, and hyphens (no leading/trailing hyphens)")
	}
	for _, r := range reservedSlugs {
		if strings.EqualFold(slug, r) {
			return errs.Invalid("organizations.create", "This slug is reserved")
		}
	}
	return nil
}

// displayRole reports the owner as such; their membership row says admin.
func displayRole(org *models.Organization, m *models.OrganizationMembership) string {
	if org.OwnerID == m.UserID {
		return string(models.OrgRoleOwner)
	}
	return string(m.Role)
}

func toMemberResponse(org *models.Organization, m *models.OrganizationMembership) MemberResponse {
	return MemberResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.User.Username,
		Email:     m.User.Email,
		Role:      displayRole(org, m),
		CreatedAt: m.CreatedAt,
	}
}

// loadOrg fetches the organization already authorized by auth.OrgRole.
func (h *Handler) loadOrg(c *gin.Context, op string) (*models.Organization, bool) {
	orgID, _ := auth.GetOrgID(c)
	org, err := h.store.FindOrganizationByID(c.Request.Context(), orgID)
	if err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return nil, false
	}
	if org == nil {
		errs.Respond(c, &errs.Error{Kind: errs.KindNotFound, Op: op, Message: "Organization not found"})
		return nil, false
	}
	return org, true
}

func targetUserID(c *gin.Context, op string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		errs.Respond(c, errs.Invalid(op, "Invalid user ID"))
		return 0, false
	}
	return uint(id), true
}

// List returns all organizations the current user is a member of
// @Summary List organizations
// @Description Get all organizations the current user is a member of
// @Tags organizations
// @Produce json
// @Success 200 {array} OrgResponse
// @Security BearerAuth
// @Router /organizations [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	memberships, err := h.store.ListUserOrganizations(c.Request.Context(), userID)
	if err != nil {
		errs.Respond(c, errs.Internal("organizations.list", err))
		return
	}

	orgs := make([]OrgResponse, len(memberships))
	for i := range memberships {
		m := &memberships[i]
		orgs[i] = OrgResponse{
			ID:        m.Organization.ID,
			Name:      m.Organization.Name,
			Slug:      m.Organization.Slug,
			OwnerID:   m.Organization.OwnerID,
			Role:      displayRole(&m.Organization, m),
			CreatedAt: m.Organization.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, orgs)
}

// Create creates a new organization owned by the caller
// @Summary Create an organization
// @Description Create a new organization; the caller becomes its owner
// @Tags organizations
// @Accept json
// @Produce json
// @Param request body CreateOrgRequest true "Organization details"
// @Success 201 {object} OrgResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Slug already taken"
// @Security BearerAuth
// @Router /organizations [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid("organizations.create", err.Error()))
		return
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if err := validateSlug(req.Slug); err != nil {
		errs.Respond(c, err)
		return
	}

	org := models.Organization{
		Name:    strings.TrimSpace(req.Name),
		Slug:    req.Slug,
		OwnerID: userID,
	}
	if err := h.store.CreateOrganization(c.Request.Context(), &org); err != nil {
		errs.Respond(c, errs.Internal("organizations.create", err))
		return
	}

	c.JSON(http.StatusCreated, OrgResponse{
		ID:          org.ID,
		Name:        org.Name,
		Slug:        org.Slug,
		OwnerID:     org.OwnerID,
		Role:        string(models.OrgRoleOwner),
		MemberCount: 1,
		CreatedAt:   org.CreatedAt,
	})
}

// Get returns a single organization
// @Summary Get an organization
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {object} OrgResponse
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 404 {object} map[string]string "Organization not found"
// @Security BearerAuth
// @Router /organizations/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	org, ok := h.loadOrg(c, "organizations.get")
	if !ok {
		return
	}
	memberships, err := h.store.ListMemberships(c.Request.Context(), org.ID)
	if err != nil {
		errs.Respond(c, errs.Internal("organizations.get", err))
		return
	}
	role, _ := auth.GetOrgRole(c)

	c.JSON(http.StatusOK, OrgResponse{
		ID:          org.ID,
		Name:        org.Name,
		Slug:        org.Slug,
		OwnerID:     org.OwnerID,
		Role:        string(role),
		MemberCount: len(memberships),
		CreatedAt:   org.CreatedAt,
	})
}

// Update renames an organization (admin only)
// @Summary Update an organization
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body UpdateOrgRequest true "New name"
// @Success 200 {object} OrgResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	var req UpdateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid("organizations.update", err.Error()))
		return
	}
	org, ok := h.loadOrg(c, "organizations.update")
	if !ok {
		return
	}
	org.Name = strings.TrimSpace(req.Name)
	if err := h.store.UpdateOrganizationName(c.Request.Context(), org.ID, org.Name); err != nil {
		errs.Respond(c, errs.Internal("organizations.update", err))
		return
	}
	role, _ := auth.GetOrgRole(c)

	c.JSON(http.StatusOK, OrgResponse{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		OwnerID:   org.OwnerID,
		Role:      string(role),
		CreatedAt: org.CreatedAt,
	})
}

// ListMembers returns the members of an organization
// @Summary List organization members
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {array} MemberResponse
// @Security BearerAuth
// @Router /organizations/{id}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	org, ok := h.loadOrg(c, "organizations.list_members")
	if !ok {
		return
	}
	memberships, err := h.store.ListMemberships(c.Request.Context(), org.ID)
	if err != nil {
		errs.Respond(c, errs.Internal("organizations.list_members", err))
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i := range memberships {
		members[i] = toMemberResponse(org, &memberships[i])
	}
	c.JSON(http.StatusOK, members)
}

// AddMember adds a user to an organization (admin only)
// @Summary Add a member to an organization
// @Description Add an existing user by username or email (requires admin role)
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body AddMemberRequest true "Member details"
// @Success 201 {object} MemberResponse
// @Failure 404 {object} map[string]string "User not found"
// @Failure 409 {object} map[string]string "User is already a member"
// @Security BearerAuth
// @Router /organizations/{id}/members [post]
func (h *Handler) AddMember(c *gin.Context) {
	const op = "organizations.add_member"
	ctx := c.Request.Context()

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid(op, err.Error()))
		return
	}
	org, ok := h.loadOrg(c, op)
	if !ok {
		return
	}

	var (
		user *models.User
		err  error
	)
	switch {
	case req.Username != "":
		user, err = h.store.FindUserByUsername(ctx, strings.TrimSpace(req.Username))
	case req.Email != "":
		user, err = h.store.FindUserByEmail(ctx, strings.ToLower(req.Email))
	default:
		errs.Respond(c, errs.Invalid(op, "username or email is required"))
		return
	}
	if err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	if user == nil {
		errs.Respond(c, &errs.Error{Kind: errs.KindNotFound, Op: op, Message: "User not found"})
		return
	}

	membership := models.OrganizationMembership{
		OrganizationID: org.ID,
		UserID:         user.ID,
		Role:           models.OrgRole(req.Role),
	}
	if err := h.store.AddMembership(ctx, &membership); err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	membership.User = *user

	c.JSON(http.StatusCreated, toMemberResponse(org, &membership))
}

// UpdateMember updates a member's role (admin only)
// @Summary Update a member's role
// @Description The owner's role cannot be changed
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param userId path int true "User ID"
// @Param request body UpdateMemberRequest true "Updated role"
// @Success 200 {object} MemberResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id}/members/{userId} [put]
func (h *Handler) UpdateMember(c *gin.Context) {
	const op = "organizations.update_member"
	ctx := c.Request.Context()

	target, ok := targetUserID(c, op)
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid(op, err.Error()))
		return
	}
	org, ok := h.loadOrg(c, op)
	if !ok {
		return
	}
	if target == org.OwnerID {
		errs.Respond(c, errs.Forbidden("The owner's role cannot be changed"))
		return
	}

	role := models.OrgRole(req.Role)
	if err := h.store.UpdateMembershipRole(ctx, org.ID, target, role); err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	membership, err := h.store.FindMembership(ctx, org.ID, target)
	if err != nil || membership == nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	user, err := h.store.FindUserByID(ctx, target)
	if err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	if user != nil {
		membership.User = *user
	}

	c.JSON(http.StatusOK, toMemberResponse(org, membership))
}

// RemoveMember removes a member from an organization (admin only)
// @Summary Remove a member from an organization
// @Description The owner cannot be removed and admins cannot remove themselves
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Param userId path int true "User ID"
// @Success 200 {object} map[string]string "Member removed"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id}/members/{userId} [delete]
func (h *Handler) RemoveMember(c *gin.Context) {
	const op = "organizations.remove_member"
	userID, _ := auth.GetUserID(c)

	target, ok := targetUserID(c, op)
	if !ok {
		return
	}
	org, ok := h.loadOrg(c, op)
	if !ok {
		return
	}
	if target == org.OwnerID {
		errs.Respond(c, errs.Forbidden("The owner cannot be removed"))
		return
	}
	if target == userID {
		errs.Respond(c, errs.Invalid(op, "Cannot remove yourself"))
		return
	}

	if err := h.store.RemoveMembership(c.Request.Context(), org.ID, target); err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// RegisterRoutes registers organization routes on a group that already
// authenticates the caller.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)

	member := rg.Group("/:id", auth.OrgRole(h.gate, "id", models.OrgRoleMember))
	member.GET("", h.Get)
	member.GET("/members", h.ListMembers)

	admin := rg.Group("/:id", auth.OrgRole(h.gate, "id", models.OrgRoleAdmin))
	admin.PUT("", h.Update)
	admin.POST("/members", h.AddMember)
	admin.PUT("/members/:userId", h.UpdateMember)
	admin.DELETE("/members/:userId", h.RemoveMember)
}
