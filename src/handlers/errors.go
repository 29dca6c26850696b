package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/khabaroff/hwid-license-server/src/middleware"
	"github.com/khabaroff/hwid-license-server/src/services"
)

// retryAfterSeconds is sent with 503 responses for transient store failures
const retryAfterSeconds = "1"

// respondError maps a service error to a status code and JSON error body
func respondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
	case errors.Is(err, services.ErrBlacklistEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Key is not blacklisted"})
	case services.IsRetryable(err):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable, retry"})
	default:
		logger := logging.ComponentLogger("http", middleware.GetRequestID(c))
		logger.Error().Err(err).Str("route", c.FullPath()).Msg(action)
		c.JSON(http.StatusInternalServerError, gin.H{"error": action})
	}
}

// bindError answers a request whose body failed binding
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "invalid request body",
		"detail": err.Error(),
	})
}
