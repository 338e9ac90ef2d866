package database

import (
	"errors"
	"fmt"

	"github.com/BradenHooton/authcore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503", "23502", "23514": // foreign_key, not_null, check
			return models.ErrBadRequest
		}
		return err
	}

	return err
}

// StoreError marks an error as an infrastructure failure. Not-found and
// constraint sentinels pass through untouched.
func StoreError(op string, err error) error {
	mapped := MapPostgresError(err)
	switch {
	case mapped == nil:
		return nil
	case errors.Is(mapped, models.ErrNotFound),
		errors.Is(mapped, models.ErrConflict),
		errors.Is(mapped, models.ErrBadRequest):
		return mapped
	}
	return fmt.Errorf("%w: failed to %s: %v", models.ErrStoreUnavailable, op, err)
}
