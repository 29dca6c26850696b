package services

import (
	"fmt"

	"github.com/khabaroff/hwid-license-server/src/models"
)

// OutcomeKind classifies the result of a validation
type OutcomeKind string

const (
	OutcomeAccepted        OutcomeKind = "accepted"
	OutcomeNotFound        OutcomeKind = "not_found"
	OutcomeBlacklisted     OutcomeKind = "blacklisted"
	OutcomeExpired         OutcomeKind = "expired"
	OutcomeUsageExceeded   OutcomeKind = "usage_exceeded"
	OutcomeHWIDMismatch    OutcomeKind = "hwid_mismatch"
	OutcomeAutoBlacklisted OutcomeKind = "auto_blacklisted"
)

// Outcome is the business result of a validation. Rejections are outcomes,
// not errors.
//
// Expired and UsageExceeded are part of the taxonomy, but the engine reports
// an expired or exhausted key as AutoBlacklisted because the key is
// blacklisted in the same transaction.
type Outcome struct {
	Kind OutcomeKind

	// Reason is the blacklist reason for Blacklisted and AutoBlacklisted
	Reason string

	// Attempt and MaxAttempts are set for HWIDMismatch
	Attempt     int
	MaxAttempts int

	// Key is the key state after an accepted validation
	Key *models.Key
}

// Accepted reports whether the key may be used
func (o Outcome) Accepted() bool {
	return o.Kind == OutcomeAccepted
}

// Message returns the human readable text for the outcome
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeAccepted:
		return "Key validated successfully"
	case OutcomeNotFound:
		return "Key not found"
	case OutcomeBlacklisted:
		return "Key is blacklisted"
	case OutcomeExpired:
		return "Key expired"
	case OutcomeUsageExceeded:
		return "Max uses exceeded"
	case OutcomeHWIDMismatch:
		return fmt.Sprintf("Invalid HWID (attempt %d/%d)", o.Attempt, o.MaxAttempts)
	case OutcomeAutoBlacklisted:
		return "Key auto-blacklisted: " + o.Reason
	}
	return string(o.Kind)
}
