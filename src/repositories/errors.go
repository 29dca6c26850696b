package repositories

import "errors"

// Storage sentinel errors. Backends wrap driver errors into these so that
// services can tell business conditions from infrastructure failures with
// errors.Is.
var (
	// ErrKeyNotFound indicates the requested key does not exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey indicates a key with the same identifier already exists
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrBlacklistEntryNotFound indicates the key has no blacklist entry
	ErrBlacklistEntryNotFound = errors.New("blacklist entry not found")

	// ErrCapReached indicates a conditional increment found max_uses reached
	ErrCapReached = errors.New("max uses reached")

	// ErrAdminNotFound indicates the requested admin user does not exist
	ErrAdminNotFound = errors.New("admin user not found")

	// ErrDuplicateAdmin indicates the username is already taken
	ErrDuplicateAdmin = errors.New("admin user already exists")

	// ErrLockTimeout indicates the per-key lock could not be acquired in time
	ErrLockTimeout = errors.New("timed out waiting for key lock")

	// ErrConflict indicates a serialization failure; the whole transaction
	// must be retried
	ErrConflict = errors.New("transaction conflict")

	// ErrUnavailable indicates the store could not be reached
	ErrUnavailable = errors.New("store unavailable")
)

// IsRetryable reports whether err is a transient infrastructure failure that
// the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
