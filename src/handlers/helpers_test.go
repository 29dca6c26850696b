package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/metrics"
	"github.com/khabaroff/hwid-license-server/src/middleware"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/khabaroff/hwid-license-server/src/repositories/memory"
	"github.com/khabaroff/hwid-license-server/src/services"
	"golang.org/x/crypto/bcrypt"
)

// Test helpers for handler tests

const testJWTSecret = "test-secret-for-unit-tests-32ch!"

// testEnv is a router over an in-memory store with one admin and one
// read-only account
type testEnv struct {
	t          *testing.T
	store      repositories.Store
	router     *Router
	adminToken string
	userToken  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New(time.Second))
}

func newTestEnvWithStore(t *testing.T, store repositories.Store, opts ...func(*Dependencies)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	originalSecret := middleware.JWTSecret
	if err := middleware.SetJWTSecret(testJWTSecret); err != nil {
		t.Fatalf("SetJWTSecret failed: %v", err)
	}
	t.Cleanup(func() { middleware.JWTSecret = originalSecret })

	adminService := services.NewAdminServiceWithCost(store.Admins(), bcrypt.MinCost)
	registry := metrics.NewRegistry()

	deps := Dependencies{
		Store:             store,
		ValidationService: services.NewValidationService(store, services.DefaultFraudPolicy(), metrics.New(registry)),
		KeyService:        services.NewKeyService(store, true),
		BlacklistService:  services.NewBlacklistService(store),
		AdminService:      adminService,
		Registry:          registry,
		ValidateRateLimit: middleware.RateLimitConfig{RequestsPerMinute: 6000, Burst: 1000},
		Driver:            "memory",
		Version:           "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	router, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	t.Cleanup(router.Close)

	env := &testEnv{t: t, store: store, router: router}
	env.adminToken = env.createAccount(adminService, "admin", models.RoleAdmin)
	env.userToken = env.createAccount(adminService, "viewer", models.RoleUser)
	return env
}

func (e *testEnv) createAccount(as *services.AdminService, username string, role models.Role) string {
	e.t.Helper()
	account, err := as.CreateAdminUser(context.Background(), username, "password123", role)
	if err != nil {
		e.t.Fatalf("CreateAdminUser failed: %v", err)
	}
	token, err := middleware.GenerateAdminToken(account)
	if err != nil {
		e.t.Fatalf("GenerateAdminToken failed: %v", err)
	}
	return token
}

// do sends a request with an optional JSON body and bearer token
func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// validateFrom posts a validation request from the given client address
func (e *testEnv) validateFrom(key, hwid, remoteAddr string) *httptest.ResponseRecorder {
	e.t.Helper()
	data, _ := json.Marshal(map[string]string{"key": key, "hwid": hwid})
	req := httptest.NewRequest(http.MethodPost, "/keys/validate", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createKey issues a key through the API and returns its identifier
func (e *testEnv) createKey(body interface{}) string {
	e.t.Helper()
	w := e.do(http.MethodPost, "/keys", body, e.adminToken)
	assertStatusCode(e.t, w, http.StatusCreated)

	var key models.Key
	decodeJSON(e.t, w, &key)
	return key.Key
}

// assertStatusCode checks if response status code matches expected
func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expectedCode int) {
	t.Helper()
	if w.Code != expectedCode {
		t.Errorf("expected status %d, got %d: %s", expectedCode, w.Code, w.Body.String())
	}
}

// assertJSONError checks if response contains expected error message
func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedError string) {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["error"] != expectedError {
		t.Errorf("expected error '%s', got '%v'", expectedError, response["error"])
	}
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response: %v: %s", err, w.Body.String())
	}
}
