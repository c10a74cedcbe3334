// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation engine and handlers to distinguish between different
// failure scenarios without inspecting driver-specific error values.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when the referenced cell, ledger or user does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCell is returned when a bulk insert collides with an
// existing (row, col) position.
var ErrDuplicateCell = errors.New("duplicate cell position")

// ErrAccountExists is returned when registering an account id or email
// that is already taken.
var ErrAccountExists = errors.New("account already exists")

// ErrNegativeBalance is returned when an increment would take a credit
// counter below zero.  The enclosing transaction must be aborted.
var ErrNegativeBalance = errors.New("balance would become negative")

// ErrConstraint is returned when a write is rejected by a CHECK
// constraint, e.g. a cell that would be held without an owner.
var ErrConstraint = errors.New("storage constraint violated")

// ErrConflict signals that a concurrent writer changed the rows this
// transaction depended on, or that the store aborted the transaction
// because of lock contention.  Re-running the operation is safe.
var ErrConflict = errors.New("conflicting concurrent write")

// MySQL server error numbers the repositories care about.
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlCheckViolated   = 3819
)

// Classify maps driver errors to the sentinel values above.  Errors that
// are not recognised are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case mysqlCheckViolated:
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		if se.ExtendedCode == sqlite3.ErrConstraintCheck {
			return fmt.Errorf("%w: %v", ErrConstraint, err)
		}
	}
	return err
}

// isDuplicate reports whether err is a unique-key violation in either
// supported engine.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
