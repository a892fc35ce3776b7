package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	CodeUniqueViolation    = "23505"
	CodeExclusionViolation = "23P01"
	CodeForeignKey         = "23503"
	CodeInvalidText        = "22P02"
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

func IsExclusionViolation(err error) bool {
	return hasCode(err, CodeExclusionViolation)
}

func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKey)
}

// IsInvalidText reports a value postgres could not parse into the column
// type, such as a malformed uuid.
func IsInvalidText(err error) bool {
	return hasCode(err, CodeInvalidText)
}

// ConstraintName returns the violated constraint, or "" for non-postgres errors.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
