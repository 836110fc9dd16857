package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// PostgreSQL SQLSTATE codes the repositories care about.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Translate maps driver errors onto the application taxonomy. A foreign key
// violation is reported as DependentsExist, which is what it means when a
// referenced row is being deleted. Use TranslateWrite for inserts and updates.
func Translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Wrap(apperr.CodeConflict, err, "%s conflicts with an existing record", what)
		case pgForeignKeyViolation:
			return apperr.Wrap(apperr.CodeDependentsExist, err, "%s is still referenced by other records", what)
		case pgCheckViolation:
			return apperr.Wrap(apperr.CodeValidationFailed, err, "%s violates a constraint", what)
		}
	}
	return err
}

// TranslateWrite is Translate for inserts and updates, where a foreign key
// violation means the referenced row does not exist.
func TranslateWrite(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return apperr.Wrap(apperr.CodeNotFound, err, "%s references a record that does not exist", what)
	}
	return Translate(err, what)
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// the named constraint. An empty name matches any unique constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsForeignKeyViolation reports whether err is a foreign key violation on
// the named constraint. An empty name matches any foreign key.
func IsForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgForeignKeyViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
