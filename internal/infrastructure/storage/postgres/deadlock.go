package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// deadlockCode is PostgreSQL SQLSTATE 40P01 (deadlock_detected).
const deadlockCode = "40P01"

// IsDeadlock reports whether any error in err's wrap chain is a server
// error caused by a deadlock. Callers use it to decide whether a failed
// transaction is worth retrying; the factory itself never retries.
//
// The chain is walked iteratively, terminating on the first error without
// a cause. Each driver-level error is checked for SQLSTATE 40P01, with a
// message match as fallback for errors that lost their code on the way.
func IsDeadlock(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		pgErr, ok := err.(*pgconn.PgError)
		if !ok {
			continue
		}
		if pgErr.Code == deadlockCode {
			return true
		}
		if strings.Contains(strings.ToLower(pgErr.Message), "deadlock") {
			return true
		}
	}
	return false
}
