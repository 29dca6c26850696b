package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/hwid-license-server/src/services"
)

// ValidationHandler serves the public validation endpoint
type ValidationHandler struct {
	validationService *services.ValidationService
}

// NewValidationHandler creates a new validation handler
func NewValidationHandler(validationService *services.ValidationService) *ValidationHandler {
	return &ValidationHandler{validationService: validationService}
}

// ValidateKeyRequest is the body of POST /keys/validate. The client IP is
// always taken from the connection.
type ValidateKeyRequest struct {
	Key  string `json:"key" binding:"required,max=128"`
	HWID string `json:"hwid" binding:"required,max=512,fingerprint"`
}

// ValidateKeyResponse is returned for an accepted key
type ValidateKeyResponse struct {
	Valid       bool       `json:"valid"`
	Message     string     `json:"message"`
	CurrentUses int        `json:"current_uses"`
	MaxUses     *int       `json:"max_uses"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// HandleValidate checks a key for the calling device
func (vh *ValidationHandler) HandleValidate(c *gin.Context) {
	var req ValidateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	outcome, err := vh.validationService.Validate(c.Request.Context(), services.ValidationRequest{
		Key:  req.Key,
		HWID: req.HWID,
		IP:   c.ClientIP(),
	})
	if err != nil {
		respondError(c, err, "failed to validate key")
		return
	}

	switch outcome.Kind {
	case services.OutcomeAccepted:
		c.JSON(http.StatusOK, ValidateKeyResponse{
			Valid:       true,
			Message:     outcome.Message(),
			CurrentUses: outcome.Key.CurrentUses,
			MaxUses:     outcome.Key.MaxUses,
			ExpiresAt:   outcome.Key.ExpiresAt,
		})
	case services.OutcomeNotFound:
		c.JSON(http.StatusNotFound, gin.H{
			"valid": false,
			"error": outcome.Message(),
		})
	case services.OutcomeHWIDMismatch:
		c.JSON(http.StatusBadRequest, gin.H{
			"valid":        false,
			"error":        outcome.Message(),
			"attempt":      outcome.Attempt,
			"max_attempts": outcome.MaxAttempts,
		})
	default:
		// Blacklisted, Expired, UsageExceeded and AutoBlacklisted
		c.JSON(http.StatusForbidden, gin.H{
			"valid":   false,
			"error":   outcome.Message(),
			"outcome": outcome.Kind,
			"reason":  outcome.Reason,
		})
	}
}
