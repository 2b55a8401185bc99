package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
)

// Handler handles authentication requests
type Handler struct {
	store   store.Store
	gate    *Gate
	limiter *LoginLimiter
}

// NewHandler creates a new auth handler. limiter may be nil.
func NewHandler(st store.Store, gate *Gate, limiter *LoginLimiter) *Handler {
	return &Handler{store: st, gate: gate, limiter: limiter}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SwitchOrganizationRequest selects the organization a session works in
type SwitchOrganizationRequest struct {
	OrganizationID uint `json:"organization_id" binding:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	SystemRole string `json:"system_role"`
}

// MeResponse is the current user with the session's organization context
type MeResponse struct {
	UserResponse
	OrganizationID *uint          `json:"organization_id,omitempty"`
	OrgRole        models.OrgRole `json:"organization_role,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		SystemRole: string(u.SystemRole),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Create a new user account and receive a session token. The first account becomes the system admin.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Username or email already registered"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid("auth.register", err.Error()))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		errs.Respond(c, errs.Internal("auth.register", err))
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleUser,
	}
	ctx := c.Request.Context()
	err = h.store.Transaction(ctx, func(tx store.Store) error {
		n, err := tx.CountUsers(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			user.SystemRole = models.SystemRoleAdmin
		}
		return tx.CreateUser(ctx, &user)
	})
	if err != nil {
		errs.Respond(c, errs.Internal("auth.register", err))
		return
	}

	issued, err := h.gate.Authority().Issue(ctx, &user)
	if err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      toUserResponse(&user),
	})
}

// Login handles user login
// @Summary Login
// @Description Authenticate with username and password to receive a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 429 {object} map[string]string "Too many attempts"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid("auth.login", err.Error()))
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.FindUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		errs.Respond(c, errs.Internal("auth.login", err))
		return
	}
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		errs.Respond(c, errs.Unauthorized("Invalid username or password"))
		return
	}

	issued, err := h.gate.Authority().Issue(ctx, user)
	if err != nil {
		errs.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      toUserResponse(user),
	})
}

// Me returns the current authenticated user
// @Summary Get current user
// @Description Get the authenticated user's profile and organization context
// @Tags auth
// @Produce json
// @Success 200 {object} MeResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	p, ok := GetPrincipal(c)
	if !ok {
		errs.Respond(c, errs.Unauthorized("Authentication required"))
		return
	}

	user, err := h.store.FindUserByID(c.Request.Context(), p.UserID)
	if err != nil {
		errs.Respond(c, errs.Internal("auth.me", err))
		return
	}
	if user == nil {
		errs.Respond(c, errs.NotFound("auth.me", "user"))
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		UserResponse:   toUserResponse(user),
		OrganizationID: p.OrganizationID,
		OrgRole:        p.OrgRole,
		ExpiresAt:      p.ExpiresAt,
	})
}

// Logout revokes the current session
// @Summary Logout
// @Description Revoke the session behind the bearer token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if token, ok := bearerToken(c); ok {
		if err := h.gate.Authority().Revoke(c.Request.Context(), token); err != nil {
			errs.Respond(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// SwitchOrganization scopes the session to another organization
// @Summary Switch organization
// @Description Replace the current token with one scoped to an organization the user belongs to. The old token is revoked.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SwitchOrganizationRequest true "Target organization"
// @Success 200 {object} AuthResponse
// @Failure 403 {object} map[string]string "Not a member"
// @Failure 404 {object} map[string]string "Organization not found"
// @Security BearerAuth
// @Router /auth/switch-organization [post]
func (h *Handler) SwitchOrganization(c *gin.Context) {
	p, ok := GetPrincipal(c)
	if !ok {
		errs.Respond(c, errs.Unauthorized("Authentication required"))
		return
	}
	token, _ := GetToken(c)

	var req SwitchOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid("auth.switch_organization", err.Error()))
		return
	}

	ctx := c.Request.Context()
	role, err := h.gate.RequireOrgRole(ctx, req.OrganizationID, p.UserID, models.OrgRoleMember)
	if err != nil {
		errs.Respond(c, err)
		return
	}
	issued, err := h.gate.Authority().SwitchOrganization(ctx, token, req.OrganizationID, role)
	if err != nil {
		errs.Respond(c, err)
		return
	}
	user, err := h.store.FindUserByID(ctx, p.UserID)
	if err != nil {
		errs.Respond(c, errs.Internal("auth.switch_organization", err))
		return
	}
	if user == nil {
		errs.Respond(c, errs.Unauthorized("Invalid token"))
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      toUserResponse(user),
	})
}

// RegisterRoutes registers auth routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	if h.limiter != nil {
		rg.POST("/login", h.limiter.Middleware(), h.Login)
	} else {
		rg.POST("/login", h.Login)
	}
	rg.POST("/logout", h.Logout)
	rg.GET("/me", Middleware(h.gate), h.Me)
	rg.POST("/switch-organization", Middleware(h.gate), h.SwitchOrganization)
}
