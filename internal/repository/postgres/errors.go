package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE codes this package reacts to.
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

const (
	chatRoomsBusinessUserKey = "chat_rooms_business_user_key"
	chatRoomsBusinessFKey    = "chat_rooms_business_id_fkey"
)

// IsUniqueViolation reports whether err is a unique constraint violation on
// constraint, or on any constraint when constraint is empty.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, pqUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation on
// constraint, or on any constraint when constraint is empty.
func IsForeignKeyViolation(err error, constraint string) bool {
	return hasCode(err, pqForeignKeyViolation, constraint)
}

// isRetryable reports whether a transaction failed only because it lost a
// concurrency conflict and can be run again as is.
func isRetryable(err error) bool {
	return hasCode(err, pqSerializationFailure, "") || hasCode(err, pqDeadlockDetected, "")
}

func hasCode(err error, code, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
