package database

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/kbukum/flowkit/errors"
)

// FromDatabase maps a GORM or driver error onto flowkit's error classes.
// Busy or locked databases and dropped connections are retryable; constraint
// violations and statement errors are not.
func FromDatabase(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return errors.NotFound(resource, "")
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		return errors.New(errors.ErrCodeAlreadyExists, resource+" already exists").WithCause(err)
	}

	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return retryable(err)
		case sqlite3.ErrConstraint:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return errors.New(errors.ErrCodeAlreadyExists, resource+" already exists").WithCause(err)
			}
			return errors.Permanent(fmt.Sprintf("write %s", resource), err)
		}
		return errors.DatabaseError(err)
	}

	var netErr net.Error
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.As(err, &netErr) || lostConnection(err) {
		return retryable(err)
	}
	return errors.DatabaseError(err)
}

func retryable(err error) error {
	appErr := errors.DatabaseError(err)
	appErr.Retryable = true
	return appErr
}

// lostConnection catches drivers that report network failures as plain
// strings.
func lostConnection(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "database is closed", "too many connections"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
