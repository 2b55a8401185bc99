package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/marknotes/pkg/marknotes/auth"
	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
	"github.com/mikepea/marknotes/pkg/marknotes/store"
)

// Purger removes trash entries past retention.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Handler handles admin requests
type Handler struct {
	store     store.Store
	authority *auth.Authority
	purger    Purger
}

// NewHandler creates a new admin handler
func NewHandler(st store.Store, authority *auth.Authority, purger Purger) *Handler {
	return &Handler{store: st, authority: authority, purger: purger}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	SystemRole string    `json:"system_role"`
	CreatedAt  time.Time `json:"created_at"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	SystemRole string `json:"system_role" binding:"required,oneof=admin user"`
}

// PurgeResponse reports a manual retention run
type PurgeResponse struct {
	Purged int `json:"purged"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		SystemRole: string(u.SystemRole),
		CreatedAt:  u.CreatedAt,
	}
}

// ListUsers returns all users (admin only)
// @Summary List users
// @Tags admin
// @Produce json
// @Param search query string false "Filter by username or email"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context(), c.Query("search"))
	if err != nil {
		errs.Respond(c, errs.Internal("admin.list_users", err))
		return
	}

	response := make([]UserResponse, len(users))
	for i := range users {
		response[i] = toUserResponse(&users[i])
	}
	c.JSON(http.StatusOK, response)
}

// UpdateUser changes a user's system role (admin only)
// @Summary Update a user's system role
// @Description Demoted users lose their sessions
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "New role"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Cannot demote yourself"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	const op = "admin.update_user"
	ctx := c.Request.Context()

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		errs.Respond(c, errs.Invalid(op, "Invalid user ID"))
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errs.Respond(c, errs.Invalid(op, err.Error()))
		return
	}
	role := models.SystemRole(req.SystemRole)

	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID && role != models.SystemRoleAdmin {
		errs.Respond(c, errs.Invalid(op, "Cannot demote yourself"))
		return
	}

	user, err := h.store.FindUserByID(ctx, uint(id))
	if err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	if user == nil {
		errs.Respond(c, &errs.Error{Kind: errs.KindNotFound, Op: op, Message: "User not found"})
		return
	}

	demoted := user.IsAdmin() && role != models.SystemRoleAdmin
	if err := h.store.UpdateUserRole(ctx, user.ID, role); err != nil {
		errs.Respond(c, errs.Internal(op, err))
		return
	}
	if demoted {
		if err := h.authority.RevokeUser(ctx, user.ID); err != nil {
			errs.Respond(c, errs.Internal(op, err))
			return
		}
	}
	user.SystemRole = role

	c.JSON(http.StatusOK, toUserResponse(user))
}

// GetStats returns system-wide statistics (admin only)
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} store.Stats
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		errs.Respond(c, errs.Internal("admin.stats", err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Purge runs the trash retention sweep now (admin only)
// @Summary Purge expired trash
// @Description Permanently delete trash entries older than the retention window
// @Tags admin
// @Produce json
// @Success 200 {object} PurgeResponse
// @Security BearerAuth
// @Router /admin/purge [post]
func (h *Handler) Purge(c *gin.Context) {
	n, err := h.purger.PurgeExpired(c.Request.Context())
	if err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, PurgeResponse{Purged: n})
}

// RegisterRoutes registers admin routes on a group that already runs
// auth.Middleware and auth.AdminOnly.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.POST("/purge", h.Purge)
}
