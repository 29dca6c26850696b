package services

import (
	"errors"

	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrKeyNotFound indicates the requested key does not exist
	ErrKeyNotFound = repositories.ErrKeyNotFound

	// ErrBlacklistEntryNotFound indicates the key is not blacklisted
	ErrBlacklistEntryNotFound = repositories.ErrBlacklistEntryNotFound

	// ErrLockTimeout indicates the key was busy for longer than the lock timeout
	ErrLockTimeout = repositories.ErrLockTimeout

	// ErrConflict indicates the store kept aborting the transaction
	ErrConflict = repositories.ErrConflict

	// ErrUnavailable indicates the store could not be reached
	ErrUnavailable = repositories.ErrUnavailable

	// ErrInvalidInput indicates a request failed boundary validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials indicates authentication failed
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrKeyGeneration indicates no unique key identifier could be generated
	ErrKeyGeneration = errors.New("failed to generate unique key")
)

// IsRetryable reports whether err is a transient infrastructure failure.
// Callers should retry the whole operation; such errors never describe the key.
func IsRetryable(err error) bool {
	return repositories.IsRetryable(err)
}

// errorKind labels an infrastructure error for logs and metrics
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
