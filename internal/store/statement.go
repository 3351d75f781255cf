package store

import (
	"fmt"
	"strings"

	"github.com/nerrad567/sqlitestore/internal/engine"
)

// rollbackNotifier is told when a statement fails inside a transaction.
type rollbackNotifier interface {
	markForRollback()
}

// namePrefixes are tried, in order, for BindNamed keys given without one.
var namePrefixes = [...]string{":", "@", "$"}

// Stmt is a prepared statement owned by a single caller.
//
// Create it with Conn.Prepare and always release it with Finalize, or use
// Conn.WithStatement which does both. Column accessors read the row produced
// by the most recent successful Step.
//
// Closing the owning Conn finalizes every statement it prepared, so a Stmt
// outliving its connection reports ErrFinalized, not ErrClosed.
type Stmt struct {
	conn      *Conn
	cur       engine.Cursor
	sql       string
	remainder string

	// columns maps column name to ordinal. Built on the first row produced
	// and kept across Reset.
	columns map[string]int

	failed   bool
	notifier rollbackNotifier
}

// SQL returns the statement text as given to Prepare.
func (s *Stmt) SQL() string { return s.sql }

// Remainder returns the part of the SQL text after the first statement that
// was not compiled, with surrounding whitespace removed. It is empty for
// single-statement text.
func (s *Stmt) Remainder() string { return s.remainder }

// Failed reports whether a bind or step on this statement has ever failed.
func (s *Stmt) Failed() bool { return s.failed }

func (s *Stmt) check() error {
	if s.cur == nil {
		return ErrFinalized
	}
	return s.conn.check()
}

// fail records a bind or step failure and notifies the owning transaction.
func (s *Stmt) fail() {
	s.failed = true
	if s.notifier != nil {
		s.notifier.markForRollback()
	}
}

// Bind binds v to the 1-based parameter index.
func (s *Stmt) Bind(index int, v Value) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := bindValue(s.cur, index, v); err != nil {
		s.fail()
		return newError(ErrBindFailed, s.sql, err)
	}
	return nil
}

// BindNamed binds v to the named parameter. The name is matched exactly
// first; a name without a prefix is then tried as ":name", "@name" and
// "$name". An unknown name fails with ErrBindFailed.
func (s *Stmt) BindNamed(name string, v Value) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.Bind(s.paramIndex(name), v)
}

func (s *Stmt) paramIndex(name string) int {
	if i := s.cur.ParamIndex(name); i > 0 {
		return i
	}
	if name == "" || strings.ContainsAny(name[:1], ":@$?") {
		return 0
	}
	for _, prefix := range namePrefixes {
		if i := s.cur.ParamIndex(prefix + name); i > 0 {
			return i
		}
	}
	return 0
}

// BindParams binds a full parameter set. A nil set binds nothing.
func (s *Stmt) BindParams(p Params) error {
	if p == nil {
		return s.check()
	}
	return p.bindTo(s)
}

// ParamCount returns the number of parameters in the statement.
func (s *Stmt) ParamCount() int {
	if s.cur == nil {
		return 0
	}
	return s.cur.ParamCount()
}

// Step advances the statement. It returns true when a row is available and
// false when the statement has completed.
func (s *Stmt) Step() (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	row, err := s.cur.Step()
	if err != nil {
		s.fail()
		return false, newError(ErrStepFailed, s.sql, err)
	}
	if row && s.columns == nil {
		s.buildIndex()
	}
	return row, nil
}

// buildIndex maps column names to ordinals. A repeated name maps to its
// last occurrence.
func (s *Stmt) buildIndex() {
	n := s.cur.ColumnCount()
	s.columns = make(map[string]int, n)
	for i := 0; i < n; i++ {
		s.columns[s.cur.ColumnName(i)] = i
	}
}

// Reset rewinds the statement so it can be stepped again. Bindings are kept
// unless clearBindings is set. The column index is kept.
func (s *Stmt) Reset(clearBindings bool) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.cur.Reset(); err != nil {
		return newError(ErrResetFailed, s.sql, err)
	}
	if clearBindings {
		if err := s.cur.ClearBindings(); err != nil {
			return newError(ErrResetFailed, s.sql, err)
		}
	}
	return nil
}

// Finalize releases the statement. Calling it again is a no-op.
func (s *Stmt) Finalize() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.Finalize()
	s.cur = nil
	s.columns = nil
	s.conn.forget(s)
	if err != nil {
		return fmt.Errorf("finalizing statement: %w", err)
	}
	return nil
}

// FetchRow steps once and returns the row keyed by column name. It returns
// false when there are no more rows.
func (s *Stmt) FetchRow() (Row, bool, error) {
	row, err := s.Step()
	if err != nil || !row {
		return nil, false, err
	}

	r := make(Row, len(s.columns))
	for name, i := range s.columns {
		r[name] = readValue(s.cur, i)
	}
	return r, true, nil
}

// ColumnCount returns the number of result columns.
func (s *Stmt) ColumnCount() int {
	if s.cur == nil {
		return 0
	}
	return s.cur.ColumnCount()
}

// ColumnName returns the name of result column col.
func (s *Stmt) ColumnName(col int) string {
	if s.cur == nil {
		return ""
	}
	return s.cur.ColumnName(col)
}

// ColumnIndex returns the ordinal of the named result column. The index is
// available once the statement has produced a row.
func (s *Stmt) ColumnIndex(name string) (int, bool) {
	i, ok := s.columns[name]
	return i, ok
}

// Value returns column col of the current row.
func (s *Stmt) Value(col int) Value {
	if s.cur == nil {
		return Null()
	}
	return readValue(s.cur, col)
}

// ValueNamed returns the named column of the current row.
func (s *Stmt) ValueNamed(name string) (Value, bool) {
	i, ok := s.ColumnIndex(name)
	if !ok {
		return Null(), false
	}
	return s.Value(i), true
}

// present reports whether column col holds a non-NULL value.
func (s *Stmt) present(col int) bool {
	return s.cur != nil && s.cur.ColumnType(col) != engine.ColumnNull
}

// Int64 returns column col as an integer, converted by the engine.
// It reports false for NULL.
func (s *Stmt) Int64(col int) (int64, bool) {
	if !s.present(col) {
		return 0, false
	}
	return s.cur.ColumnInt64(col), true
}

// Float64 returns column col as a real, converted by the engine.
// It reports false for NULL.
func (s *Stmt) Float64(col int) (float64, bool) {
	if !s.present(col) {
		return 0, false
	}
	return s.cur.ColumnFloat64(col), true
}

// Bool returns column col as a boolean: true when its integer value is
// non-zero. It reports false for NULL.
func (s *Stmt) Bool(col int) (bool, bool) {
	if !s.present(col) {
		return false, false
	}
	return s.cur.ColumnInt64(col) != 0, true
}

// Text returns column col as text, converted by the engine.
// It reports false for NULL.
func (s *Stmt) Text(col int) (string, bool) {
	if !s.present(col) {
		return "", false
	}
	return s.cur.ColumnText(col), true
}

// Bytes returns a copy of column col as bytes. It reports false for NULL.
func (s *Stmt) Bytes(col int) ([]byte, bool) {
	if !s.present(col) {
		return nil, false
	}
	return s.cur.ColumnBlob(col), true
}
