package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"chatty/internal/app/identity"
)

// Postgres constraint names declared by the users migration.
const (
	loginConstraint    = "users_login_key"
	nicknameConstraint = "users_nickname_key"
)

// IsUniqueViolation checks if the error is a unique constraint violation
// (PostgreSQL code 23505 or SQLite SQLITE_CONSTRAINT_UNIQUE).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	return false
}

// uniqueConflict translates a unique violation on the users table into the identity error
// naming the offending column. It returns nil when err is not a unique violation.
func uniqueConflict(err error) error {
	if !IsUniqueViolation(err) {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case loginConstraint:
			return identity.ErrLoginTaken
		case nicknameConstraint:
			return identity.ErrNicknameTaken
		}
	}

	// SQLite reports the column as "UNIQUE constraint failed: users.<column>".
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.login"):
		return identity.ErrLoginTaken
	case strings.Contains(msg, "users.nickname"):
		return identity.ErrNicknameTaken
	}

	return identity.ErrNicknameTaken
}
