package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/upb/yapi/repositories"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// isUniqueViolation reports whether err is a unique or primary key violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

// isUnavailable reports whether err means the database could not be reached
func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception, 57P: operator intervention
		return pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P")
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	return false
}

// classify tags driver errors with the storage sentinel they correspond to
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %w", repositories.ErrNotFound, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %w", repositories.ErrDuplicate, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %w", repositories.ErrUnavailable, err)
	default:
		return err
	}
}

// wrap annotates a failed operation and classifies the driver error
func wrap(action string, err error) error {
	return fmt.Errorf("failed to %s: %w", action, classify(err))
}

// notFound builds the error returned when a lookup matches no row
func notFound(kind string, key interface{}) error {
	return fmt.Errorf("%s not found: %v: %w", kind, key, repositories.ErrNotFound)
}
