package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the services react to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
	CodeQueryCanceled        = "57014"
)

// ConstraintLivePair is the unique index that allows one live connection per pair.
const ConstraintLivePair = "uq_connections_live_pair"

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == CodeUniqueViolation
}

// IsForeignKeyViolation reports whether err references a missing row.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == CodeForeignKeyViolation
}

// IsLockTimeout reports whether the row lock could not be acquired in time.
func IsLockTimeout(err error) bool {
	return pgCode(err) == CodeLockNotAvailable
}

// IsRetryable reports whether the transaction failed for a transient reason:
// lock timeout, deadlock, serialization failure or statement cancellation.
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case CodeLockNotAvailable, CodeDeadlockDetected, CodeSerializationFailure, CodeQueryCanceled:
		return true
	}
	return false
}
