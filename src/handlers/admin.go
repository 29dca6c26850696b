package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/middleware"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/services"
)

// AdminHandler handles admin session endpoints
type AdminHandler struct {
	adminService *services.AdminService
	secureCookie bool
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminService *services.AdminService, secureCookie bool) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		secureCookie: secureCookie,
	}
}

// AdminLoginRequest represents the request body for admin login
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required,max=255"`
	Password string `json:"password" binding:"required,max=72"`
}

// AdminLoginResponse represents the response for successful login
type AdminLoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt int64  `json:"expires_at"`
}

// HandleAdminLogin authenticates an account and returns a JWT token
func (ah *AdminHandler) HandleAdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	admin, err := ah.adminService.AuthenticateAdmin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid username or password",
			})
			return
		}
		respondError(c, err, "failed to authenticate")
		return
	}

	token, err := middleware.GenerateAdminToken(admin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to generate token",
		})
		return
	}

	expiresAt := time.Now().Add(middleware.TokenTTL)
	c.SetCookie(
		middleware.AdminCookieName,
		token,
		int(middleware.TokenTTL.Seconds()),
		"/",
		"",
		ah.secureCookie,
		true, // HttpOnly
	)

	c.JSON(http.StatusOK, AdminLoginResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: expiresAt.Unix(),
	})
}

// HandleAdminLogout clears the admin token cookie
func (ah *AdminHandler) HandleAdminLogout(c *gin.Context) {
	c.SetCookie(
		middleware.AdminCookieName,
		"",
		-1,
		"/",
		"",
		ah.secureCookie,
		true, // HttpOnly
	)

	c.JSON(http.StatusOK, gin.H{
		"status": "logged out",
	})
}

// AdminStatusResponse represents the response for admin status check
type AdminStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	AdminID       string `json:"admin_id"`
	Username      string `json:"username"`
	Role          string `json:"role"`
}

// HandleAdminStatus returns the current authentication status
func (ah *AdminHandler) HandleAdminStatus(c *gin.Context) {
	role, _ := c.Get(middleware.RoleKey)
	r, _ := role.(models.Role)

	c.JSON(http.StatusOK, AdminStatusResponse{
		Authenticated: true,
		AdminID:       c.GetString(middleware.AdminIDKey),
		Username:      c.GetString(middleware.UsernameKey),
		Role:          string(r),
	})
}
