package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationErr reports whether err is a transaction serialization
// failure, meaning the transaction must be re-run from the start.
func IsSerializationErr(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// PostgreSQL (SQLSTATE 40001)
	if strings.Contains(msg, "could not serialize access") || strings.Contains(msg, "SQLSTATE 40001") {
		return true
	}

	// MySQL (error code 1213, surfaced on serializable conflicts)
	if strings.Contains(msg, "Error 1213") || strings.Contains(msg, "Deadlock found") {
		return true
	}

	// SQLite under concurrent writers
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "table is locked") {
		return true
	}

	return false
}

// IsRetryableTxErr reports whether the whole transaction should be re-run.
// Unique violations are retryable here because the sequence-allocation path
// treats a duplicate number as a lost race, not a hard failure.
func IsRetryableTxErr(err error) bool {
	return IsSerializationErr(err) || IsDuplicateKeyErr(err)
}
