package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/khabaroff/hwid-license-server/src/repositories"
)

// PostgreSQL error codes the store cares about
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// mapError translates driver errors into the repository taxonomy.
// Errors that do not belong to a known class are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%w: %s", repositories.ErrLockTimeout, pgErr.Message)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", repositories.ErrConflict, pgErr.Message)
		case codeAdminShutdown, codeCannotConnectNow:
			return fmt.Errorf("%w: %s", repositories.ErrUnavailable, pgErr.Message)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", repositories.ErrUnavailable, err)
	}

	return err
}

// mapAcquireError maps a failure to obtain a pooled connection within the
// lock timeout
func mapAcquireError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no connection available", repositories.ErrLockTimeout)
	}
	return mapError(err)
}

// isUniqueViolation returns true for duplicate primary or unique key errors
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
