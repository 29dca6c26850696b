package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/khabaroff/hwid-license-server/src/models"
)

const testSecret = "test-secret-for-unit-tests-32ch!"

func withTestSecret(t *testing.T) {
	t.Helper()
	originalSecret := JWTSecret
	if err := SetJWTSecret(testSecret); err != nil {
		t.Fatalf("SetJWTSecret failed: %v", err)
	}
	t.Cleanup(func() { JWTSecret = originalSecret })
}

func testAccount(role models.Role) *models.AdminUser {
	return &models.AdminUser{
		ID:       uuid.New(),
		Username: "testadmin",
		Role:     role,
		IsActive: true,
	}
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AdminAuthMiddleware(), RequireAdmin())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"admin_id": c.GetString(AdminIDKey),
			"username": c.GetString(UsernameKey),
		})
	})
	return router
}

func TestSetJWTSecret(t *testing.T) {
	originalSecret := JWTSecret
	defer func() { JWTSecret = originalSecret }()

	if err := SetJWTSecret(""); err == nil {
		t.Error("expected error for empty secret")
	}
	if err := SetJWTSecret("short"); err == nil {
		t.Error("expected error for short secret")
	}
	if err := SetJWTSecret(testSecret); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateAndValidateAdminToken(t *testing.T) {
	withTestSecret(t)
	account := testAccount(models.RoleAdmin)

	token, err := GenerateAdminToken(account)
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	claims, err := ValidateAdminToken(token)
	if err != nil {
		t.Fatalf("ValidateAdminToken failed: %v", err)
	}
	if claims.AdminID != account.ID.String() {
		t.Errorf("expected admin_id %s, got %s", account.ID, claims.AdminID)
	}
	if claims.Username != "testadmin" {
		t.Errorf("expected username testadmin, got %s", claims.Username)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("expected role admin, got %s", claims.Role)
	}
}

func TestValidateAdminToken_WrongSecret(t *testing.T) {
	withTestSecret(t)
	token, err := GenerateAdminToken(testAccount(models.RoleAdmin))
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	JWTSecret = "another-secret-for-unit-tests-32"
	if _, err := ValidateAdminToken(token); err == nil {
		t.Error("expected error for token signed with another secret")
	}
}

func TestValidateAdminToken_Expired(t *testing.T) {
	withTestSecret(t)
	claims := AdminClaims{
		AdminID:  uuid.New().String(),
		Username: "testadmin",
		Role:     models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			Issuer:    tokenIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ValidateAdminToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateAdminToken_RejectsNoneAlgorithm(t *testing.T) {
	withTestSecret(t)
	claims := AdminClaims{Username: "testadmin", Role: models.RoleAdmin}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := ValidateAdminToken(token); err == nil {
		t.Error("expected error for unsigned token")
	}
}

func TestAdminAuthMiddleware_WithValidCookie(t *testing.T) {
	withTestSecret(t)
	token, err := GenerateAdminToken(testAccount(models.RoleAdmin))
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(&http.Cookie{Name: AdminCookieName, Value: token})
	newAuthRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminAuthMiddleware_WithValidHeader(t *testing.T) {
	withTestSecret(t)
	token, err := GenerateAdminToken(testAccount(models.RoleAdmin))
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminAuthMiddleware_MissingToken(t *testing.T) {
	withTestSecret(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	newAuthRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestAdminAuthMiddleware_InvalidToken(t *testing.T) {
	withTestSecret(t)

	tests := []struct {
		name   string
		header string
	}{
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"missing value", "Bearer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Authorization", tt.header)
			newAuthRouter().ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestRequireAdmin_ForbidsUserRole(t *testing.T) {
	withTestSecret(t)
	token, err := GenerateAdminToken(testAccount(models.RoleUser))
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthRouter().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireAdmin_WithoutAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequireAdmin())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
}
