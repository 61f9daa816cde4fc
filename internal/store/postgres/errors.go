package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/docsplain/internal/store"
)

// mapPostgresError maps PostgreSQL errors onto the store's PersistenceError taxonomy.
func mapPostgresError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if isConnectivityError(err) {
			return store.NewPersistenceError(op, store.KindConnectivity, err)
		}
		return store.NewPersistenceError(op, store.KindUnknown, err)
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "users_pkey", "users_email_key", "idx_users_email_lower":
			return store.NewPersistenceError(op, store.KindConstraint,
				fmt.Errorf("%w: %s", store.ErrUserAlreadyExists, pgErr.ConstraintName))
		}
		return store.NewPersistenceError(op, store.KindConstraint,
			fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err))

	case pgerrcode.ForeignKeyViolation, pgerrcode.NotNullViolation, pgerrcode.CheckViolation:
		return store.NewPersistenceError(op, store.KindConstraint,
			fmt.Errorf("constraint violation: %s: %w", pgErr.ConstraintName, err))

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.TooManyConnections:
		return store.NewPersistenceError(op, store.KindConnectivity, err)

	default:
		return store.NewPersistenceError(op, store.KindUnknown,
			fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
				pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err))
	}
}

// isConnectivityError reports errors raised before the server could answer.
func isConnectivityError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
