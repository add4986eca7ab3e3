package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced user or post does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentity is returned when a username or email is already taken.
	ErrDuplicateIdentity = errors.New("username or email already taken")

	// ErrSelfFollowNotAllowed is returned when a user tries to follow themselves.
	ErrSelfFollowNotAllowed = errors.New("cannot follow yourself")

	// ErrConstraintViolation covers integrity failures not classified above.
	ErrConstraintViolation = errors.New("constraint violation")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translate maps a storage error onto the store's error taxonomy. dup is the
// sentinel reported for unique-key collisions on the table being written.
func translate(op string, err error, dup error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, dup, err)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, ErrConstraintViolation, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// The driver checks back up gorm's TranslateError, which not every driver
// version implements.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
