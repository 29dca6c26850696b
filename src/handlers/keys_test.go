package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/khabaroff/hwid-license-server/src/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCreateKey(t *testing.T) {
	env := newTestEnv(t)
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	w := env.do(http.MethodPost, "/keys", map[string]interface{}{
		"expires_at": expires,
		"max_uses":   5,
	}, env.adminToken)
	assertStatusCode(t, w, http.StatusCreated)

	var key models.Key
	decodeJSON(t, w, &key)
	assert.True(t, strings.HasPrefix(key.Key, services.KeyPrefix))
	require.NotNil(t, key.MaxUses)
	assert.Equal(t, 5, *key.MaxUses)
	require.NotNil(t, key.ExpiresAt)
	assert.True(t, expires.Equal(*key.ExpiresAt))
	assert.Equal(t, 0, key.CurrentUses)
	assert.Nil(t, key.HWID)
}

func TestHandleCreateKey_EmptyBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/keys", nil, env.adminToken)
	assertStatusCode(t, w, http.StatusCreated)

	var key models.Key
	decodeJSON(t, w, &key)
	assert.Nil(t, key.MaxUses)
	assert.Nil(t, key.ExpiresAt)
}

func TestHandleCreateKey_InvalidMaxUses(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/keys", map[string]interface{}{"max_uses": 0}, env.adminToken)
	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestKeyRoutes_RequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/keys"},
		{http.MethodGet, "/keys"},
		{http.MethodGet, "/keys/lk_any"},
		{http.MethodDelete, "/keys/lk_any"},
		{http.MethodPost, "/keys/lk_any/reset-hwid"},
		{http.MethodGet, "/blacklist"},
		{http.MethodPost, "/blacklist"},
		{http.MethodDelete, "/blacklist/lk_any"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			assertStatusCode(t, env.do(route.method, route.path, nil, ""), http.StatusUnauthorized)
			assertStatusCode(t, env.do(route.method, route.path, nil, "garbage"), http.StatusUnauthorized)

			w := env.do(route.method, route.path, nil, env.userToken)
			assertStatusCode(t, w, http.StatusForbidden)
			assertJSONError(t, w, "forbidden")
		})
	}
}

func TestHandleListKeys(t *testing.T) {
	env := newTestEnv(t)
	active := env.createKey(nil)
	banned := env.createKey(nil)
	assertStatusCode(t, env.do(http.MethodPost, "/blacklist", map[string]string{"key": banned}, env.adminToken), http.StatusCreated)

	w := env.do(http.MethodGet, "/keys", nil, env.adminToken)
	assertStatusCode(t, w, http.StatusOK)

	var resp struct {
		Keys  []models.KeyListing `json:"keys"`
		Total int                 `json:"total"`
	}
	decodeJSON(t, w, &resp)
	require.Equal(t, 2, resp.Total)

	statuses := map[string]models.KeyStatus{}
	for _, k := range resp.Keys {
		statuses[k.Key.Key] = k.Status
	}
	assert.Equal(t, models.KeyStatusActive, statuses[active])
	assert.Equal(t, models.KeyStatusBlacklisted, statuses[banned])
}

func TestHandleGetKey(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(map[string]interface{}{"max_uses": 3})
	assertStatusCode(t, env.validateFrom(key, "device-1", clientA), http.StatusOK)

	w := env.do(http.MethodGet, "/keys/"+key, nil, env.adminToken)
	assertStatusCode(t, w, http.StatusOK)

	var listing models.KeyListing
	decodeJSON(t, w, &listing)
	assert.Equal(t, key, listing.Key.Key)
	assert.Equal(t, 1, listing.CurrentUses)
	require.NotNil(t, listing.HWID)
	assert.Equal(t, "device-1", *listing.HWID)
	assert.NotNil(t, listing.LastUsed)
	assert.Equal(t, models.KeyStatusActive, listing.Status)

	w = env.do(http.MethodGet, "/keys/lk_missing", nil, env.adminToken)
	assertStatusCode(t, w, http.StatusNotFound)
	assertJSONError(t, w, "Key not found")
}

func TestHandleDeleteKey(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)

	assertStatusCode(t, env.do(http.MethodDelete, "/keys/"+key, nil, env.adminToken), http.StatusOK)
	assertStatusCode(t, env.do(http.MethodDelete, "/keys/"+key, nil, env.adminToken), http.StatusNotFound)
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusNotFound)
}

func TestHandleResetHWID(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)

	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)
	assertStatusCode(t, env.validateFrom(key, "B", clientA), http.StatusBadRequest)
	assertStatusCode(t, env.validateFrom(key, "B", clientA), http.StatusBadRequest)

	w := env.do(http.MethodPost, "/keys/"+key+"/reset-hwid", nil, env.adminToken)
	assertStatusCode(t, w, http.StatusOK)

	var result map[string]interface{}
	decodeJSON(t, w, &result)
	assert.Equal(t, float64(3), result["attempts_cleared"])
	assert.Equal(t, true, result["binding_cleared"])

	// the next device binds the key with a fresh mismatch budget
	assertStatusCode(t, env.validateFrom(key, "B", clientA), http.StatusOK)
	w = env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusBadRequest)
	assertJSONError(t, w, "Invalid HWID (attempt 1/3)")

	assertStatusCode(t, env.do(http.MethodPost, "/keys/lk_missing/reset-hwid", nil, env.adminToken), http.StatusNotFound)
}
