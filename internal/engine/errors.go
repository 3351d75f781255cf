package engine

import (
	"errors"
	"fmt"
)

// Primary result codes surfaced by the engine.
// Extended codes carry the primary code in their low byte.
const (
	CodeOK         = 0
	CodeError      = 1
	CodeBusy       = 5
	CodeReadOnly   = 8
	CodeCantOpen   = 14
	CodeConstraint = 19
	CodeMisuse     = 21
	CodeRange      = 25
)

var (
	// ErrClosed is returned by any call on a Handle or Cursor after Close/Finalize.
	ErrClosed = errors.New("engine: handle closed")

	// ErrEmptyStatement is returned by Prepare when the input holds no SQL
	// statement (only whitespace or comments).
	ErrEmptyStatement = errors.New("engine: empty statement")
)

// Error is a failure reported by the engine.
type Error struct {
	// Code is the extended result code.
	Code int

	// Message is the engine's description of the most recent failure.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sqlite: %s (%d)", e.Message, e.Code)
}

// Primary returns the primary result code (the low byte of Code).
func (e *Error) Primary() int {
	return e.Code & 0xff
}
