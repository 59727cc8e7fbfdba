// Package handlers wires HTTP requests to the service layer.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bettodiaz/webtop-launcher/internal/middleware"
	"github.com/bettodiaz/webtop-launcher/internal/services"
	"github.com/bettodiaz/webtop-launcher/internal/validation"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  *services.AuthService
	auditService *services.AuditService
}

func NewAuthHandler(authService *services.AuthService, auditService *services.AuditService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		auditService: auditService,
	}
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// Login authenticates a user and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, user, err := h.authService.Login(req.Username, req.Password, req.TOTPCode)
	switch err {
	case nil:
	case services.ErrTOTPRequired:
		c.JSON(http.StatusOK, gin.H{"requires_totp": true})
		return
	case services.ErrInvalidTOTP:
		_ = h.auditService.Log(services.AuditLog{
			Username:     req.Username,
			Action:       "totp_failed",
			ResourceType: "auth",
			IPAddress:    c.ClientIP(),
			UserAgent:    c.GetHeader("User-Agent"),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	case services.ErrInvalidCredentials:
		_ = h.auditService.Log(services.AuditLog{
			Username:     req.Username,
			Action:       "login_failed",
			ResourceType: "auth",
			IPAddress:    c.ClientIP(),
			UserAgent:    c.GetHeader("User-Agent"),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	_ = h.auditService.Log(services.AuditLog{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       "login",
		ResourceType: "auth",
		IPAddress:    c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})

	c.JSON(http.StatusOK, gin.H{
		"token":      token.ID,
		"expires_at": token.ExpiresAt,
		"user": gin.H{
			"id":                   user.ID,
			"username":             user.Username,
			"is_admin":             user.IsAdmin,
			"must_change_password": user.MustChangePassword,
		},
	})
}

// Logout invalidates the caller's bearer token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		_ = h.auditService.Log(services.AuditLog{
			UserID:       &user.ID,
			Username:     user.Username,
			Action:       "logout",
			ResourceType: "auth",
			IPAddress:    c.ClientIP(),
			UserAgent:    c.GetHeader("User-Agent"),
		})
	}

	if token := c.GetString("token"); token != "" {
		_ = h.authService.DeleteToken(token)
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                   user.ID,
		"username":             user.Username,
		"is_admin":             user.IsAdmin,
		"totp_enabled":         user.TOTPEnabled,
		"must_change_password": user.MustChangePassword,
	})
}

// ChangePasswordRequest contains a password change request.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword replaces the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current and new password are required"})
		return
	}

	if err := validation.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if err == services.ErrInvalidCredentials {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid current password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}

	_ = h.auditService.Log(services.AuditLog{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       "password_changed",
		ResourceType: "auth",
		IPAddress:    c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// BeginTOTP starts TOTP enrollment for the caller.
func (h *AuthHandler) BeginTOTP(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	secret, otpauthURL, err := h.authService.BeginTOTPEnrollment(user, "webtop-launcher")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start enrollment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":      secret,
		"otpauth_url": otpauthURL,
	})
}

// TOTPCodeRequest carries a TOTP verification code.
type TOTPCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ConfirmTOTP verifies the enrollment code and enables TOTP.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req TOTPCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if err := h.authService.ConfirmTOTPEnrollment(user.ID, req.Code); err != nil {
		if err == services.ErrInvalidTOTP {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm enrollment"})
		return
	}

	_ = h.auditService.Log(services.AuditLog{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       "totp_enabled",
		ResourceType: "auth",
		IPAddress:    c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "totp enabled"})
}

// DisableTOTP removes the caller's second factor.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.authService.DisableTOTP(user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disable totp"})
		return
	}

	_ = h.auditService.Log(services.AuditLog{
		UserID:       &user.ID,
		Username:     user.Username,
		Action:       "totp_disabled",
		ResourceType: "auth",
		IPAddress:    c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "totp disabled"})
}
