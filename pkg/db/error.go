package db

import (
	"context"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Low-cardinality reasons for failed writes.
const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonLockTimeout          = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonDeadlock             = "deadlock"
	ReasonUniqueViolation      = "unique_violation"
	ReasonConnection           = "connection"
	ReasonUnknown              = "unknown"
)

// ErrorReason classifies err for metrics and logs.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	case IsDuplicateKeyErr(err):
		return ReasonUniqueViolation
	case hasPGCode(err, "55P03"), hasMySQLCode(err, 1205):
		return ReasonLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case hasPGCode(err, "40P01"), hasMySQLCode(err, 1213):
		return ReasonDeadlock
	case isConnectionErr(err):
		return ReasonConnection
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether a failed write may succeed when replayed.
// Generation itself never retries; loaders use this to word their errors.
func IsRetryable(err error) bool {
	switch ErrorReason(err) {
	case ReasonLockTimeout, ReasonSerializationFailure, ReasonDeadlock, ReasonConnection:
		return true
	default:
		return false
	}
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") || hasMySQLCode(err, 1062) {
		return true
	}
	// SQLite drivers only expose the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func hasMySQLCode(err error, code uint16) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == code
	}
	return false
}

func isConnectionErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	return errors.Is(err, mysql.ErrInvalidConn)
}
