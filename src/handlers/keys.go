package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/services"
)

// KeyHandler handles admin key management
type KeyHandler struct {
	keyService *services.KeyService
}

// NewKeyHandler creates a new key handler
func NewKeyHandler(keyService *services.KeyService) *KeyHandler {
	return &KeyHandler{keyService: keyService}
}

// CreateKeyRequest is the body of POST /keys
type CreateKeyRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses" binding:"omitempty,min=1"`
}

// HandleCreateKey issues a new key
func (kh *KeyHandler) HandleCreateKey(c *gin.Context) {
	var req CreateKeyRequest
	// an empty body creates an unlimited key
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	key, err := kh.keyService.CreateKey(c.Request.Context(), services.CreateKeyParams{
		ExpiresAt: req.ExpiresAt,
		MaxUses:   req.MaxUses,
	})
	if err != nil {
		respondError(c, err, "failed to create key")
		return
	}

	c.JSON(http.StatusCreated, key)
}

// HandleListKeys lists all keys with their status
func (kh *KeyHandler) HandleListKeys(c *gin.Context) {
	keys, err := kh.keyService.ListKeys(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list keys")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":  keys,
		"total": len(keys),
	})
}

// HandleGetKey returns a single key with its status
func (kh *KeyHandler) HandleGetKey(c *gin.Context) {
	key, err := kh.keyService.GetKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "failed to get key")
		return
	}

	c.JSON(http.StatusOK, key)
}

// HandleDeleteKey removes a key with its history
func (kh *KeyHandler) HandleDeleteKey(c *gin.Context) {
	if err := kh.keyService.DeleteKey(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err, "failed to delete key")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Key deleted"})
}

// HandleResetHWID clears the key's attempt history
func (kh *KeyHandler) HandleResetHWID(c *gin.Context) {
	result, err := kh.keyService.ResetHWID(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "failed to reset hwid")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "HWID reset for key",
		"attempts_cleared": result.AttemptsCleared,
		"binding_cleared":  result.BindingCleared,
	})
}
