package documents

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mikepea/marknotes/pkg/marknotes/auth"
	"github.com/mikepea/marknotes/pkg/marknotes/errs"
	"github.com/mikepea/marknotes/pkg/marknotes/models"
)

// Handler handles document requests for one organization
type Handler struct {
	manager *Manager
	gate    *auth.Gate
}

// NewHandler creates a new documents handler
func NewHandler(manager *Manager, gate *auth.Gate) *Handler {
	return &Handler{manager: manager, gate: gate}
}

// PathRequest names a single item
type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

// SaveRequest carries new document content
type SaveRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

// RenameRequest moves an item
type RenameRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// ColorRequest sets or clears an item's color
type ColorRequest struct {
	Path  string  `json:"path" binding:"required"`
	Color *string `json:"color" binding:"omitempty,max=32"`
}

// FavoriteRequest marks or unmarks a favorite
type FavoriteRequest struct {
	Path     string `json:"path" binding:"required"`
	Favorite bool   `json:"favorite"`
}

// ContentResponse is a decrypted document
type ContentResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListResponse is a folder listing
type ListResponse struct {
	Folder string `json:"folder,omitempty"`
	Items  []Item `json:"items"`
}

func scopeFrom(c *gin.Context) (Scope, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return Scope{}, false
	}
	orgID, ok := auth.GetOrgID(c)
	if !ok {
		return Scope{}, false
	}
	return Scope{OrganizationID: orgID, UserID: userID}, true
}

// withScope resolves the request scope or aborts.
func withScope(fn func(*gin.Context, Scope)) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := scopeFrom(c)
		if !ok {
			errs.Respond(c, errs.Unauthorized("Organization context required"))
			return
		}
		fn(c, scope)
	}
}

func bind(c *gin.Context, op string, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		errs.Respond(c, errs.Invalid(op, err.Error()))
		return false
	}
	return true
}

// List lists a folder
// @Summary List folder contents
// @Description List the immediate children of a folder, folders first
// @Tags documents
// @Produce json
// @Param id path int true "Organization ID"
// @Param folder query string false "Folder path" default(/)
// @Param include_archived query bool false "Include archived items"
// @Param include_deleted query bool false "Include items in the trash"
// @Success 200 {object} ListResponse
// @Failure 404 {object} map[string]string "Folder not found"
// @Security BearerAuth
// @Router /organizations/{id}/documents [get]
func (h *Handler) List(c *gin.Context, scope Scope) {
	folder := c.DefaultQuery("folder", "/")
	opts := ListOptions{
		IncludeArchived: c.Query("include_archived") == "true",
		IncludeDeleted:  c.Query("include_deleted") == "true",
	}
	items, err := h.manager.List(c.Request.Context(), scope, folder, opts)
	if err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Folder: folder, Items: items})
}

// Trash lists soft-deleted items
// @Summary List trash
// @Tags documents
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {object} ListResponse
// @Security BearerAuth
// @Router /organizations/{id}/documents/trash [get]
func (h *Handler) Trash(c *gin.Context, scope Scope) {
	items, err := h.manager.Trash(c.Request.Context(), scope)
	if err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: items})
}

// Read returns decrypted document content
// @Summary Read a document
// @Tags documents
// @Produce json
// @Param id path int true "Organization ID"
// @Param path query string true "Document path"
// @Success 200 {object} ContentResponse
// @Failure 404 {object} map[string]string "Document not found"
// @Security BearerAuth
// @Router /organizations/{id}/documents/content [get]
func (h *Handler) Read(c *gin.Context, scope Scope) {
	path := c.Query("path")
	if path == "" {
		errs.Respond(c, errs.Invalid("documents.read", "path is required"))
		return
	}
	content, err := h.manager.Read(c.Request.Context(), scope, path)
	if err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ContentResponse{Path: path, Content: content})
}

// Save writes document content
// @Summary Save a document
// @Description Encrypt and store a document, creating parent folders as needed
// @Tags documents
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body SaveRequest true "Document"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /organizations/{id}/documents/content [put]
func (h *Handler) Save(c *gin.Context, scope Scope) {
	var req SaveRequest
	if !bind(c, "documents.save", &req) {
		return
	}
	if err := h.manager.Save(c.Request.Context(), scope, req.Path, req.Content); err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document saved", "path": req.Path})
}

// CreateFolder creates a folder
// @Summary Create a folder
// @Tags documents
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body PathRequest true "Folder"
// @Success 201 {object} map[string]string
// @Security BearerAuth
// @Router /organizations/{id}/documents/folders [post]
func (h *Handler) CreateFolder(c *gin.Context, scope Scope) {
	var req PathRequest
	if !bind(c, "documents.create_folder", &req) {
		return
	}
	if err := h.manager.CreateFolder(c.Request.Context(), scope, req.Path); err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Folder created", "path": req.Path})
}

// Rename moves an item
// @Summary Rename or move an item
// @Tags documents
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body RenameRequest true "Source and destination"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string "Destination exists"
// @Security BearerAuth
// @Router /organizations/{id}/documents/rename [post]
func (h *Handler) Rename(c *gin.Context, scope Scope) {
	var req RenameRequest
	if !bind(c, "documents.rename", &req) {
		return
	}
	if err := h.manager.Rename(c.Request.Context(), scope, req.From, req.To); err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item renamed", "path": req.To})
}

// SetColor sets an item's color
// @Summary Set item color
// @Tags documents
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body ColorRequest true "Color, null to clear"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /organizations/{id}/documents/color [put]
func (h *Handler) SetColor(c *gin.Context, scope Scope) {
	var req ColorRequest
	if !bind(c, "documents.set_color", &req) {
		return
	}
	if err := h.manager.SetColor(c.Request.Context(), scope, req.Path, req.Color); err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Color updated"})
}

// SetFavorite marks an item as favorite
// @Summary Set item favorite flag
// @Tags documents
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body FavoriteRequest true "Favorite flag"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /organizations/{id}/documents/favorite [put]
func (h *Handler) SetFavorite(c *gin.Context, scope Scope) {
	var req FavoriteRequest
	if !bind(c, "documents.set_favorite", &req) {
		return
	}
	if err := h.manager.SetFavorite(c.Request.Context(), scope, req.Path, req.Favorite); err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Favorite updated"})
}

// changeState adapts one of the lifecycle toggles to a handler.
func (h *Handler) changeState(op, message string, fn func(*gin.Context, Scope, string) error) func(*gin.Context, Scope) {
	return func(c *gin.Context, scope Scope) {
		var req PathRequest
		if !bind(c, op, &req) {
			return
		}
		if err := fn(c, scope, req.Path); err != nil {
			errs.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message, "path": req.Path})
	}
}

// Erase permanently deletes an item
// @Summary Erase an item
// @Description Permanently delete a document or folder, bypassing the trash. Requires organization admin.
// @Tags documents
// @Produce json
// @Param id path int true "Organization ID"
// @Param path query string true "Item path"
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string "Organization admin required"
// @Security BearerAuth
// @Router /organizations/{id}/documents [delete]
func (h *Handler) Erase(c *gin.Context, scope Scope) {
	path := c.Query("path")
	if path == "" {
		errs.Respond(c, errs.Invalid("documents.erase", "path is required"))
		return
	}
	ctx := c.Request.Context()
	item, err := h.manager.Stat(ctx, scope, path)
	if err != nil {
		errs.Respond(c, err)
		return
	}
	if item.Type == TypeFolder {
		err = h.manager.EraseFolder(ctx, scope, path)
	} else {
		err = h.manager.Erase(ctx, scope, path)
	}
	if err != nil {
		errs.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item erased"})
}

// RegisterRoutes registers document routes on a group mounted at
// /organizations/:id/documents that already authenticates the caller.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	member := rg.Group("", auth.OrgRole(h.gate, "id", models.OrgRoleMember))
	member.GET("", withScope(h.List))
	member.GET("/trash", withScope(h.Trash))
	member.GET("/content", withScope(h.Read))
	member.PUT("/content", withScope(h.Save))
	member.POST("/folders", withScope(h.CreateFolder))
	member.POST("/rename", withScope(h.Rename))
	member.PUT("/color", withScope(h.SetColor))
	member.PUT("/favorite", withScope(h.SetFavorite))
	member.POST("/archive", withScope(h.changeState("documents.archive", "Item archived", func(c *gin.Context, s Scope, p string) error {
		return h.manager.Archive(c.Request.Context(), s, p)
	})))
	member.POST("/unarchive", withScope(h.changeState("documents.unarchive", "Item unarchived", func(c *gin.Context, s Scope, p string) error {
		return h.manager.Unarchive(c.Request.Context(), s, p)
	})))
	member.POST("/trash", withScope(h.changeState("documents.soft_delete", "Item moved to trash", func(c *gin.Context, s Scope, p string) error {
		return h.manager.SoftDelete(c.Request.Context(), s, p)
	})))
	member.POST("/restore", withScope(h.changeState("documents.restore", "Item restored", func(c *gin.Context, s Scope, p string) error {
		return h.manager.Restore(c.Request.Context(), s, p)
	})))

	admin := rg.Group("", auth.OrgRole(h.gate, "id", models.OrgRoleAdmin))
	admin.DELETE("", withScope(h.Erase))
}
