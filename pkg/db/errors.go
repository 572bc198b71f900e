package db

import "strings"

// IsUniqueViolation reports whether err is a Postgres unique violation,
// optionally scoped to one constraint. The payout engine uses it to treat a
// replayed settlement event as already recorded instead of rolling back.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}
