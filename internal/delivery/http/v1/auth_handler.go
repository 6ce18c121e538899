package v1

import (
	"net/http"

	"properpakistan-api/internal/delivery/http/response"
	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUC     domain.AuthUsecase
	bookmarkUC domain.BookmarkUsecase
}

// NewAuthHandler registers the /auth routes. verified routes carry a valid JWT;
// profiled routes additionally have the caller's profile and role loaded;
// admin routes require role admin.
func NewAuthHandler(verified, profiled, admin *gin.RouterGroup, authUC domain.AuthUsecase, bookmarkUC domain.BookmarkUsecase) {
	handler := &AuthHandler{
		authUC:     authUC,
		bookmarkUC: bookmarkUC,
	}

	verified.POST("/auth/sync", handler.SyncProfile)

	profiledAuth := profiled.Group("/auth")
	{
		profiledAuth.GET("/me", handler.Me)
		profiledAuth.PUT("/profile", handler.UpdateProfile)
		profiledAuth.POST("/bookmark/:postId", handler.ToggleBookmark)
		profiledAuth.GET("/bookmarks", handler.GetBookmarks)
	}

	adminAuth := admin.Group("/auth")
	{
		adminAuth.GET("/users", handler.ListUsers)
		adminAuth.PUT("/users/:id/role", handler.AssignRole)
	}
}

// SyncProfile godoc
// @Summary      Sync profile
// @Description  Create the caller's profile on first sign-in or refresh name and avatar. The stored role is returned unchanged.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        sync  body      domain.SyncProfileInput  true  "Identity"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  response.Response
// @Failure      401   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Router       /auth/sync [post]
func (h *AuthHandler) SyncProfile(c *gin.Context) {
	var input domain.SyncProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(apperror.BadRequest("Supabase ID and email are required"))
		return
	}

	// A token may only sync its own identity
	if input.SupabaseID != c.GetString(string(domain.KeyUserID)) {
		c.Error(apperror.Forbidden("Token subject does not match supabaseId"))
		return
	}

	profile, err := h.authUC.SyncProfile(c.Request.Context(), input)
	if err != nil {
		c.Error(err)
		return
	}

	response.Payload(c, http.StatusOK, "User synced successfully", gin.H{"user": profile})
}

// Me godoc
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	profile, ok := c.Get("profile")
	if !ok {
		c.Error(apperror.NotFound("User not found"))
		return
	}
	response.Payload(c, http.StatusOK, "", gin.H{"user": profile})
}

// UpdateProfile godoc
// @Summary      Update profile
// @Description  Updates name and avatar. Role cannot be changed here.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        profile  body      domain.UpdateProfileInput  true  "Profile"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  response.Response
// @Router       /auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var input domain.UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Error(apperror.BadRequest("Invalid request body"))
		return
	}

	profile, err := h.authUC.UpdateProfile(c.Request.Context(), c.GetString(string(domain.KeyUserID)), input)
	if err != nil {
		c.Error(err)
		return
	}

	response.Payload(c, http.StatusOK, "Profile updated", gin.H{"user": profile})
}

// ToggleBookmark godoc
// @Summary      Toggle bookmark
// @Tags         bookmarks
// @Produce      json
// @Security     BearerAuth
// @Param        postId  path      string  true  "Post ID"
// @Success      200     {object}  map[string]interface{}
// @Router       /auth/bookmark/{postId} [post]
func (h *AuthHandler) ToggleBookmark(c *gin.Context) {
	bookmarked, err := h.bookmarkUC.Toggle(c.Request.Context(), c.GetString(string(domain.KeyUserID)), c.Param("postId"))
	if err != nil {
		c.Error(err)
		return
	}

	msg := "Bookmark removed"
	if bookmarked {
		msg = "Bookmark added"
	}
	response.Payload(c, http.StatusOK, msg, gin.H{"bookmarked": bookmarked})
}

// GetBookmarks godoc
// @Summary      List bookmarks
// @Tags         bookmarks
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /auth/bookmarks [get]
func (h *AuthHandler) GetBookmarks(c *gin.Context) {
	bookmarks, err := h.bookmarkUC.List(c.Request.Context(), c.GetString(string(domain.KeyUserID)))
	if err != nil {
		c.Error(err)
		return
	}
	if bookmarks == nil {
		bookmarks = []domain.Bookmark{}
	}
	response.Payload(c, http.StatusOK, "", gin.H{"bookmarks": bookmarks})
}

// ListUsers godoc
// @Summary      List users (admin)
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  response.Response
// @Router       /auth/users [get]
func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.authUC.ListUsers(c)
	if err != nil {
		c.Error(err)
		return
	}
	if users == nil {
		users = []domain.Profile{}
	}
	response.Payload(c, http.StatusOK, "", gin.H{"users": users})
}

type AssignRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// AssignRole godoc
// @Summary      Assign role (admin)
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "User ID"
// @Param        role  body      AssignRoleRequest  true  "Role"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Failure      404   {object}  response.Response
// @Router       /auth/users/{id}/role [put]
func (h *AuthHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("Role must be one of: user, admin"))
		return
	}

	profile, err := h.authUC.AssignRole(c, c.Param("id"), req.Role)
	if err != nil {
		c.Error(err)
		return
	}
	response.Payload(c, http.StatusOK, "Role updated", gin.H{"user": profile})
}
