package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/sqlitestore/internal/engine"
)

// Failure kinds. An *Error matches exactly one of these with errors.Is.
var (
	ErrOpenFailed    = errors.New("store: open failed")
	ErrCompileFailed = errors.New("store: compile failed")
	ErrBindFailed    = errors.New("store: bind failed")
	ErrStepFailed    = errors.New("store: step failed")
	ErrResetFailed   = errors.New("store: reset failed")
	ErrExecFailed    = errors.New("store: exec failed")
	ErrAttachFailed  = errors.New("store: attach failed")
	ErrDetachFailed  = errors.New("store: detach failed")
)

// State errors, returned without touching the engine.
var (
	// ErrClosed is returned by every operation on a closed connection.
	ErrClosed = errors.New("store: connection closed")

	// ErrFinalized is returned by operations on a finalized statement.
	ErrFinalized = errors.New("store: statement finalized")

	// ErrTransactionOpen is returned when a transaction is already open,
	// or when closing a connection from inside one.
	ErrTransactionOpen = errors.New("store: transaction already open")

	// ErrRolledBack is returned by Transaction when the body succeeded but a
	// statement inside it failed, forcing a rollback.
	ErrRolledBack = errors.New("store: transaction rolled back")

	// ErrBroken is returned after a COMMIT or ROLLBACK failed on the connection.
	ErrBroken = errors.New("store: connection broken by failed commit or rollback")

	// ErrNotRegistered is returned by Registry for unknown database keys.
	ErrNotRegistered = errors.New("store: database key not registered")
)

// Error describes a failure reported by the engine.
type Error struct {
	// Kind is the failure sentinel (ErrBindFailed, ErrStepFailed, ...).
	Kind error

	// Code is the engine's extended result code, or 0 when the failure did
	// not come from the engine itself.
	Code int

	// Message is the engine's message.
	Message string

	// SQL is the statement text involved, when there is one.
	SQL string

	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if e.SQL != "" {
		fmt.Fprintf(&b, " [sql: %s]", e.SQL)
	}
	return b.String()
}

// Unwrap exposes both the failure kind and the underlying error.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Primary returns the primary result code (the low byte of Code).
func (e *Error) Primary() int {
	return e.Code & 0xff
}

func newError(kind error, sql string, err error) *Error {
	e := &Error{Kind: kind, SQL: sql, Err: err, Message: err.Error()}

	var engErr *engine.Error
	if errors.As(err, &engErr) {
		e.Code = engErr.Code
		e.Message = engErr.Message
	}
	return e
}
