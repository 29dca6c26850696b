package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/services"
)

// BlacklistHandler handles manual blacklist management
type BlacklistHandler struct {
	blacklistService *services.BlacklistService
}

// NewBlacklistHandler creates a new blacklist handler
func NewBlacklistHandler(blacklistService *services.BlacklistService) *BlacklistHandler {
	return &BlacklistHandler{blacklistService: blacklistService}
}

// AddToBlacklistRequest is the body of POST /blacklist
type AddToBlacklistRequest struct {
	Key    string `json:"key" binding:"required,max=128"`
	Reason string `json:"reason" binding:"max=255"`
}

// HandleList returns every blacklist entry
func (bh *BlacklistHandler) HandleList(c *gin.Context) {
	entries, err := bh.blacklistService.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to list blacklist")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// HandleAdd blacklists a key. An existing entry is returned unchanged.
func (bh *BlacklistHandler) HandleAdd(c *gin.Context) {
	var req AddToBlacklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	entry, created, err := bh.blacklistService.Add(c.Request.Context(), req.Key, req.Reason)
	if err != nil {
		respondError(c, err, "failed to blacklist key")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"entry":   entry,
		"created": created,
	})
}

// HandleRemove lifts the blacklist entry of a key
func (bh *BlacklistHandler) HandleRemove(c *gin.Context) {
	if err := bh.blacklistService.Remove(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err, "failed to remove blacklist entry")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Key removed from blacklist"})
}
