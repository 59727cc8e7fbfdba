package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bettodiaz/webtop-launcher/internal/middleware"
	"github.com/bettodiaz/webtop-launcher/internal/services"
	"github.com/bettodiaz/webtop-launcher/internal/validation"
)

// UsersHandler covers admin user management.
type UsersHandler struct {
	authService  *services.AuthService
	auditService *services.AuditService
}

func NewUsersHandler(authService *services.AuthService, auditService *services.AuditService) *UsersHandler {
	return &UsersHandler{
		authService:  authService,
		auditService: auditService,
	}
}

// List returns all user accounts.
func (h *UsersHandler) List(c *gin.Context) {
	users, err := h.authService.GetAllUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// CreateUserRequest contains a new account definition.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// Create adds a user account.
func (h *UsersHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.CreateUser(req.Username, req.Password, req.IsAdmin)
	if err != nil {
		if err == services.ErrUserExists {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	admin := middleware.CurrentUser(c)
	_ = h.auditService.Log(services.AuditLog{
		UserID:       &admin.ID,
		Username:     admin.Username,
		Action:       "user_created",
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(user.ID, 10),
		IPAddress:    c.ClientIP(),
		Details:      map[string]interface{}{"username": user.Username, "is_admin": user.IsAdmin},
	})

	c.JSON(http.StatusCreated, user)
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

// Delete removes a user account. Admins cannot delete themselves or the last
// remaining admin.
func (h *UsersHandler) Delete(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	admin := middleware.CurrentUser(c)
	if admin.ID == id {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete your own account"})
		return
	}

	if err := h.authService.DeleteUser(id); err != nil {
		switch err {
		case services.ErrUserNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case services.ErrLastAdmin:
			c.JSON(http.StatusConflict, gin.H{"error": "cannot remove the last admin"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		}
		return
	}

	_ = h.auditService.Log(services.AuditLog{
		UserID:       &admin.ID,
		Username:     admin.Username,
		Action:       "user_deleted",
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(id, 10),
		IPAddress:    c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// ResetPassword issues a generated one-time credential for the user. The
// credential appears in this response only and is never stored in the clear.
func (h *UsersHandler) ResetPassword(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	generated, err := h.authService.ResetPassword(id)
	if err != nil {
		if err == services.ErrUserNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset password"})
		return
	}

	admin := middleware.CurrentUser(c)
	_ = h.auditService.Log(services.AuditLog{
		UserID:       &admin.ID,
		Username:     admin.Username,
		Action:       "password_reset",
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(id, 10),
		IPAddress:    c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"password":             generated,
		"must_change_password": true,
	})
}
