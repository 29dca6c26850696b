package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/khabaroff/hwid-license-server/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleAddToBlacklist_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)

	w := env.do(http.MethodPost, "/blacklist", map[string]string{"key": key, "reason": "chargeback"}, env.adminToken)
	assertStatusCode(t, w, http.StatusCreated)

	var first struct {
		Entry   models.BlacklistEntry `json:"entry"`
		Created bool                  `json:"created"`
	}
	decodeJSON(t, w, &first)
	assert.True(t, first.Created)
	assert.Equal(t, "chargeback", first.Entry.Reason)

	w = env.do(http.MethodPost, "/blacklist", map[string]string{"key": key, "reason": "other"}, env.adminToken)
	assertStatusCode(t, w, http.StatusOK)

	var second struct {
		Entry   models.BlacklistEntry `json:"entry"`
		Created bool                  `json:"created"`
	}
	decodeJSON(t, w, &second)
	assert.False(t, second.Created)
	assert.Equal(t, "chargeback", second.Entry.Reason)

	w = env.validateFrom(key, "A", clientA)
	assertStatusCode(t, w, http.StatusForbidden)
	assertJSONError(t, w, "Key is blacklisted")
}

func TestHandleAddToBlacklist_DefaultReason(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)

	w := env.do(http.MethodPost, "/blacklist", map[string]string{"key": key}, env.adminToken)
	assertStatusCode(t, w, http.StatusCreated)
	assert.Contains(t, w.Body.String(), models.ReasonManualBlacklist)
}

func TestHandleAddToBlacklist_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/blacklist", map[string]string{"key": "lk_missing"}, env.adminToken)
	assertStatusCode(t, w, http.StatusNotFound)

	w = env.do(http.MethodPost, "/blacklist", map[string]string{"reason": "no key"}, env.adminToken)
	assertStatusCode(t, w, http.StatusBadRequest)

	key := env.createKey(nil)
	w = env.do(http.MethodPost, "/blacklist", map[string]string{"key": key, "reason": strings.Repeat("r", 256)}, env.adminToken)
	assertStatusCode(t, w, http.StatusBadRequest)
}

func TestHandleRemoveFromBlacklist(t *testing.T) {
	env := newTestEnv(t)
	key := env.createKey(nil)
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)
	assertStatusCode(t, env.validateFrom(key, "A", clientB), http.StatusForbidden)

	w := env.do(http.MethodGet, "/blacklist", nil, env.adminToken)
	assertStatusCode(t, w, http.StatusOK)
	var list struct {
		Entries []models.BlacklistEntry `json:"entries"`
		Total   int                     `json:"total"`
	}
	decodeJSON(t, w, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, key, list.Entries[0].Key)
	assert.Equal(t, models.ReasonIPChange, list.Entries[0].Reason)

	assertStatusCode(t, env.do(http.MethodDelete, "/blacklist/"+key, nil, env.adminToken), http.StatusOK)
	assertStatusCode(t, env.do(http.MethodDelete, "/blacklist/"+key, nil, env.adminToken), http.StatusNotFound)
	assertStatusCode(t, env.do(http.MethodDelete, "/blacklist/lk_missing", nil, env.adminToken), http.StatusNotFound)

	// lifting the entry keeps the attempt history that caused it
	assertStatusCode(t, env.validateFrom(key, "A", clientA), http.StatusOK)
	w = env.validateFrom(key, "A", clientB)
	assertStatusCode(t, w, http.StatusForbidden)
	assertJSONError(t, w, "Key auto-blacklisted: IP change detected")
}
