package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into model sentinels.
// Timeouts and connection failures become models.ErrTransientStore.
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
			return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.ConstraintName)
		case "23502", "23514": // not_null_violation, check_violation
			return models.ErrBadRequest
		case "57014", "57P01", "53300": // query_canceled, admin_shutdown, too_many_connections
			return fmt.Errorf("%w: %s", models.ErrTransientStore, pgErr.Code)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if pgconn.Timeout(err) || errors.As(err, &connErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTransientStore, err)
	}

	return err
}
