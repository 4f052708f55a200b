package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is provided, postgres errors must name that constraint;
// sqlite does not report index names, so any unique failure matches there.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if pkgerrors.SQLState(err) == sqlStateUniqueViolation {
		if constraintName == "" {
			return true
		}
		return pkgerrors.Constraint(err) == constraintName ||
			strings.Contains(err.Error(), constraintName)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	if !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsLockContention reports whether err means the transaction lost a race for
// a lock and can be retried as-is.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}

	switch pkgerrors.SQLState(err) {
	case sqlStateLockNotAvailable, sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
