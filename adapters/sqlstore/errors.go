package sqlstore

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ncruces/go-sqlite3"

	"github.com/codewandler/msgstore-go/core/msgstore"
)

// postgres error codes
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// classify maps driver errors onto the msgstore error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %w", msgstore.ErrConcurrentModification, err)
		}
		return err
	}

	var liteErr *sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.BUSY, sqlite3.LOCKED:
			return fmt.Errorf("%w: %w", msgstore.ErrConcurrentModification, err)
		case sqlite3.CANTOPEN, sqlite3.IOERR:
			return fmt.Errorf("%w: %w", msgstore.ErrBackendUnavailable, err)
		}
		return err
	}

	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", msgstore.ErrBackendUnavailable, err)
	}
	return err
}

// isUniqueViolation reports whether err is a unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE ||
			liteErr.ExtendedCode() == sqlite3.CONSTRAINT_PRIMARYKEY
	}
	return false
}
