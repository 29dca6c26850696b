package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khabaroff/hwid-license-server/src/middleware"
	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/repositories"
	"github.com/khabaroff/hwid-license-server/src/repositories/memory"
	"github.com/khabaroff/hwid-license-server/src/repositories/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clientA = "203.0.113.7:40000"
	clientB = "198.51.100.9:40000"
)

func TestHandleValidate_MaxUsesScenario(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(map[string]interface{}{"max_uses": 2})

	w := env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusOK)
	var accepted ValidateKeyResponse
	decodeJSON(t, w, &accepted)
	assert.True(t, accepted.Valid)
	assert.Equal(t, "Key validated successfully", accepted.Message)
	assert.Equal(t, 1, accepted.CurrentUses)

	w = env.validateFrom(key, "B", clientA)
	assertStatusCode(t, w, http.StatusBadRequest)
	assertJSONError(t, w, "Invalid HWID (attempt 1/3)")

	w = env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusOK)
	decodeJSON(t, w, &accepted)
	assert.Equal(t, 2, accepted.CurrentUses)

	w = env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusForbidden)
	assertJSONError(t, w, "Key auto-blacklisted: Max uses exceeded")

	w = env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusForbidden)
	var rejected map[string]interface{}
	decodeJSON(t, w, &rejected)
	assert.Equal(t, "blacklisted", rejected["outcome"])
	assert.Equal(t, models.ReasonMaxUsesExceeded, rejected["reason"])
}

func TestHandleValidate_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.validateFrom("lk_missing", "A", clientA)
	assertStatusCode(t, w, http.StatusNotFound)
	assertJSONError(t, w, "Key not found")
}

func TestHandleValidate_MismatchBody(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)

	w := env.validateFrom(key, "B", clientA)
	assertStatusCode(t, w, http.StatusBadRequest)

	var body map[string]interface{}
	decodeJSON(t, w, &body)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, float64(1), body["attempt"])
	assert.Equal(t, float64(3), body["max_attempts"])
}

func TestHandleValidate_IPChangeUsesConnectionAddress(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)

	w := env.validateFrom(key, "A", clientB)
	assertStatusCode(t, w, http.StatusForbidden)
	assertJSONError(t, w, "Key auto-blacklisted: IP change detected")
}

func TestHandleValidate_IgnoresClientSuppliedAddress(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)

	// neither a payload ip nor an untrusted forwarding header moves the client
	body := `{"key":"` + key + `","hwid":"A","ip":"192.0.2.55"}`
	req := httptest.NewRequest(http.MethodPost, "/keys/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "192.0.2.66")
	req.RemoteAddr = clientA

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assertStatusCode(t, w, http.StatusOK)
}

func TestHandleValidate_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"key":`},
		{"missing key", `{"hwid":"A"}`},
		{"missing hwid", `{"key":"lk_x"}`},
		{"oversized key", `{"key":"` + strings.Repeat("k", 129) + `","hwid":"A"}`},
		{"oversized hwid", `{"key":"lk_x","hwid":"` + strings.Repeat("h", 513) + `"}`},
		{"control characters in hwid", `{"key":"lk_x","hwid":"A\u0000B"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/keys/validate", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.RemoteAddr = clientA

			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assertStatusCode(t, w, http.StatusBadRequest)
			assertJSONError(t, w, "invalid request body")
		})
	}
}

func TestHandleValidate_TransientFailureIs503(t *testing.T) {
	store := mock.NewStore(memory.New(time.Second))
	env := newTestEnvWithStore(t, store)
	key := env.createKey(nil)

	store.WithKeyTxFunc = func(ctx context.Context, keyID string, fn func(tx repositories.KeyTx) error) error {
		return repositories.ErrLockTimeout
	}

	w := env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusServiceUnavailable)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// the key is untouched
	store.WithKeyTxFunc = nil
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)
}

func TestHandleValidate_RateLimited(t *testing.T) {
	env := newTestEnvWithStore(t, memory.New(time.Second), func(d *Dependencies) {
		d.ValidateRateLimit = middleware.RateLimitConfig{RequestsPerMinute: 1, Burst: 2}
	})
	assertStatusCode(t, env.validateFrom("lk_missing", "A", clientB), http.StatusNotFound)
	assertStatusCode(t, env.validateFrom("lk_missing", "A", clientB), http.StatusNotFound)

	w := env.validateFrom("lk_missing", "A", clientB)
	assertStatusCode(t, w, http.StatusTooManyRequests)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// other clients keep their own budget
	assertStatusCode(t, env.validateFrom("lk_missing", "A", clientA), http.StatusNotFound)
}

func TestHandleValidate_ExportsMetrics(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)

	w := env.do(http.MethodGet, "/metrics", nil, "")
	assertStatusCode(t, w, http.StatusOK)
	require.Contains(t, w.Body.String(), `license_validations_total{outcome="accepted"} 1`)
}
