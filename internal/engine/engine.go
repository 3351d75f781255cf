package engine

import "time"

// OpenFlags selects how a database file is opened.
type OpenFlags int

const (
	// OpenReadOnly opens the file read-only. Writes are rejected by the engine.
	OpenReadOnly OpenFlags = 1 << iota

	// OpenReadWrite opens the file for reading and writing.
	OpenReadWrite

	// OpenCreate creates the file when it does not exist. Only valid with OpenReadWrite.
	OpenCreate
)

// ColumnType is the storage class of a column value in the current row.
type ColumnType int

// Storage classes, numbered as the engine numbers them.
const (
	ColumnInteger ColumnType = 1
	ColumnFloat   ColumnType = 2
	ColumnText    ColumnType = 3
	ColumnBlob    ColumnType = 4
	ColumnNull    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "INTEGER"
	case ColumnFloat:
		return "REAL"
	case ColumnText:
		return "TEXT"
	case ColumnBlob:
		return "BLOB"
	case ColumnNull:
		return "NULL"
	default:
		return "UNKNOWN"
	}
}

// Engine opens database files.
type Engine interface {
	Open(path string, flags OpenFlags) (Handle, error)
}

// Handle is an open database connection.
type Handle interface {
	// Prepare compiles the first SQL statement in query. The uncompiled
	// remainder of query is returned alongside the cursor. If query holds no
	// statement, ErrEmptyStatement is returned together with the remainder.
	Prepare(query string) (Cursor, string, error)

	// LastInsertRowID returns the rowid of the most recent successful INSERT.
	LastInsertRowID() int64

	// Changes returns the number of rows modified by the most recent statement.
	Changes() int64

	// SetBusyTimeout sets how long the engine waits on a locked database.
	SetBusyTimeout(d time.Duration) error

	// Autocommit reports whether the handle is outside an explicit transaction.
	Autocommit() bool

	// Close releases the handle. Cursors not yet finalised are orphaned.
	Close() error
}

// Cursor is a compiled statement. Parameter indexes are 1-based and column
// indexes are 0-based, as in the engine.
type Cursor interface {
	ParamCount() int

	// ParamIndex returns the index of the named parameter, or 0 if the
	// statement has no parameter with exactly that name (prefix included).
	ParamIndex(name string) int

	BindNull(i int) error
	BindInt64(i int, v int64) error
	BindFloat64(i int, v float64) error
	BindText(i int, v string) error
	BindBlob(i int, v []byte) error
	ClearBindings() error

	// Step advances to the next row. It returns true when a row is available
	// and false when the statement has run to completion.
	Step() (bool, error)
	Reset() error

	ColumnCount() int
	ColumnName(i int) string
	ColumnType(i int) ColumnType
	ColumnInt64(i int) int64
	ColumnFloat64(i int) float64
	ColumnText(i int) string
	ColumnBlob(i int) []byte

	// Finalize releases the cursor. Calling it more than once is a no-op.
	Finalize() error
}
