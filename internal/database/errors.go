package database

import (
	"context"
	"database/sql/driver"
	"net"

	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const DuplicateKeyErrorCode = "23505"

// WrapError translates a gorm or driver error into the error taxonomy.
// Errors that already belong to it pass through unchanged.
func WrapError(err error) error {
	var (
		pgErr   *pgconn.PgError
		connErr *pgconn.ConnectError
		netErr  net.Error
		known   *errors.Error
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, &known):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.NotFound.Wrap(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errors.Conflict.Explain("duplication of key").Wrap(err)
	case errors.As(err, &pgErr) && pgErr.Code == DuplicateKeyErrorCode:
		return errors.Conflict.Explain("duplication of key").Wrap(err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.As(err, &connErr),
		errors.As(err, &netErr):
		return errors.Unavailable.Wrap(err)
	}

	return errors.Wrap(err)
}
