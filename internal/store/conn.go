package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/sqlitestore/internal/engine"
)

// File system permissions for created databases.
const (
	// dirPermissions is the permission mode for a created database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for a created database file.
	filePermissions = 0600
)

// Logger defines the logging interface used by connections and the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config contains connection options.
type Config struct {
	// Path is the filesystem path to the database file.
	Path string

	// ReadOnly opens the file read-only. Writes fail inside the engine.
	ReadOnly bool

	// Create creates the file (and its directory) if it does not exist.
	// Ignored when ReadOnly is set.
	Create bool

	// BusyTimeout is how long to wait on a locked database. Zero fails
	// immediately with SQLITE_BUSY.
	BusyTimeout time.Duration

	// Engine opens the file. Defaults to engine.SQLite.
	Engine engine.Engine

	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger Logger
}

// Conn is an open database connection with explicit transaction tracking.
//
// Conn is not safe for concurrent use.
type Conn struct {
	h        engine.Handle
	path     string
	readOnly bool
	logger   Logger

	// stmts holds statements prepared on this connection and not yet
	// finalized; Close finalizes them.
	stmts map[*Stmt]struct{}

	txOpen         bool
	rollbackMarked bool
	broken         bool
	closed         bool
}

// Open opens the database file described by cfg.
//
// It performs the following setup:
//  1. Creates the parent directory when cfg.Create is set
//  2. Opens the file read-only or read-write
//  3. Applies the busy timeout
//  4. Restricts a newly created file to owner read/write (0600)
//
// Parameters:
//   - cfg: Connection options
//
// Returns:
//   - *Conn: Open connection
//   - error: ErrOpenFailed wrapping the engine failure
func Open(cfg Config) (*Conn, error) {
	eng := cfg.Engine
	if eng == nil {
		eng = engine.SQLite{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	flags := engine.OpenReadWrite
	create := false
	switch {
	case cfg.ReadOnly:
		flags = engine.OpenReadOnly
	case cfg.Create:
		flags |= engine.OpenCreate
		if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
			create = true
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, &Error{Kind: ErrOpenFailed, Message: err.Error(), Err: err}
		}
	}

	h, err := eng.Open(cfg.Path, flags)
	if err != nil {
		return nil, newError(ErrOpenFailed, "", err)
	}

	if cfg.BusyTimeout > 0 {
		if err := h.SetBusyTimeout(cfg.BusyTimeout); err != nil {
			h.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, newError(ErrOpenFailed, "", err)
		}
	}

	if create {
		// The engine creates the file lazily; a missing file is not an error here.
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: file may not exist until first write
	}

	return &Conn{
		h:        h,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
		logger:   logger,
		stmts:    make(map[*Stmt]struct{}),
	}, nil
}

// Path returns the filesystem path of the database file.
func (c *Conn) Path() string { return c.path }

// ReadOnly reports whether the connection was opened read-only.
func (c *Conn) ReadOnly() bool { return c.readOnly }

// InTransaction reports whether a Transaction body is running.
func (c *Conn) InTransaction() bool { return c.txOpen }

func (c *Conn) check() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.broken:
		return ErrBroken
	default:
		return nil
	}
}

// markForRollback forces the open transaction to roll back. Outside a
// transaction it does nothing.
func (c *Conn) markForRollback() {
	if c.txOpen {
		c.rollbackMarked = true
	}
}

func (c *Conn) forget(s *Stmt) {
	delete(c.stmts, s)
}

// Prepare compiles the first statement in query.
//
// Text after the first statement is not compiled; it is available from
// Stmt.Remainder and logged as a warning. A statement prepared while a
// transaction is open marks that transaction for rollback when it fails.
func (c *Conn) Prepare(query string) (*Stmt, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	cur, rest, err := c.h.Prepare(query)
	if err != nil {
		return nil, newError(ErrCompileFailed, query, err)
	}

	s := &Stmt{conn: c, cur: cur, sql: query, remainder: strings.TrimSpace(rest)}
	if s.remainder != "" {
		c.logger.Warn("statement text not compiled", "sql", query, "remainder", s.remainder)
	}
	if c.txOpen {
		s.notifier = c
	}
	c.stmts[s] = struct{}{}
	return s, nil
}

// WithStatement prepares query, calls fn with the statement and finalizes it.
func (c *Conn) WithStatement(query string, fn func(*Stmt) error) error {
	s, err := c.Prepare(query)
	if err != nil {
		return err
	}
	defer s.Finalize() //nolint:errcheck // Finalize does not fail after a successful Prepare
	return fn(s)
}

// Execute runs every statement in query, discarding any result rows.
//
// A failure marks the open transaction, if any, for rollback and returns
// ErrExecFailed carrying the engine code, message and query.
func (c *Conn) Execute(query string) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.exec(query); err != nil {
		c.markForRollback()
		return err
	}
	return nil
}

// exec runs a multi-statement script without touching the transaction bits.
func (c *Conn) exec(query string) error {
	rest := query
	for {
		cur, tail, err := c.h.Prepare(rest)
		if errors.Is(err, engine.ErrEmptyStatement) {
			return nil
		}
		if err != nil {
			return newError(ErrExecFailed, query, err)
		}

		err = drain(cur)
		cur.Finalize() //nolint:errcheck // Step error already captured
		if err != nil {
			return newError(ErrExecFailed, query, err)
		}

		if strings.TrimSpace(tail) == "" {
			return nil
		}
		rest = tail
	}
}

// drain steps cur until it completes.
func drain(cur engine.Cursor) error {
	for {
		row, err := cur.Step()
		if err != nil {
			return err
		}
		if !row {
			return nil
		}
	}
}

// Transaction runs body between BEGIN and COMMIT.
//
// The transaction is rolled back instead when body returns an error or when
// any statement prepared inside it failed, even if body ignored that failure.
// In the latter case ErrRolledBack is returned. Both transaction bits are
// cleared before Transaction returns. A failed COMMIT or ROLLBACK breaks the
// connection and is not retried.
//
// Parameters:
//   - body: Work to run inside the transaction
//
// Returns:
//   - error: body's error, ErrRolledBack, ErrTransactionOpen for nested
//     calls, or the COMMIT/ROLLBACK failure
func (c *Conn) Transaction(body func(*Conn) error) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.txOpen {
		return ErrTransactionOpen
	}

	if err := c.exec("BEGIN TRANSACTION"); err != nil {
		return err
	}
	c.txOpen = true

	defer func() {
		if p := recover(); p != nil {
			c.finish(false) //nolint:errcheck // Re-panicking; rollback failure is logged
			panic(p)
		}
	}()

	bodyErr := body(c)

	switch {
	case bodyErr != nil:
		if rbErr := c.finish(false); rbErr != nil {
			return errors.Join(bodyErr, rbErr)
		}
		return bodyErr
	case c.rollbackMarked:
		if rbErr := c.finish(false); rbErr != nil {
			return errors.Join(ErrRolledBack, rbErr)
		}
		return ErrRolledBack
	default:
		return c.finish(true)
	}
}

// finish ends the open transaction and clears both transaction bits.
func (c *Conn) finish(commit bool) error {
	defer func() {
		c.txOpen = false
		c.rollbackMarked = false
	}()

	// The engine may already have rolled back on its own (for example after
	// an ON CONFLICT ROLLBACK clause fired).
	if c.h.Autocommit() {
		c.logger.Warn("transaction already ended by the engine", "path", c.path)
		if commit {
			return ErrRolledBack
		}
		return nil
	}

	query := "ROLLBACK"
	if commit {
		query = "COMMIT"
	}
	if err := c.exec(query); err != nil {
		c.broken = true
		c.logger.Error("transaction end failed, connection broken", "path", c.path, "op", query, "error", err)
		return err
	}

	if !commit {
		c.logger.Debug("transaction rolled back", "path", c.path)
	}
	return nil
}

// AttachSchema attaches the database file at path under alias. It does
// nothing when alias is already attached.
func (c *Conn) AttachSchema(path, alias string) error {
	if err := c.check(); err != nil {
		return err
	}

	attached, err := c.schemaAttached(alias)
	if err != nil {
		return newError(ErrAttachFailed, "", err)
	}
	if attached {
		return nil
	}

	query := "ATTACH DATABASE ? AS " + quoteIdent(alias)
	if err := c.runInternal(query, Text(path)); err != nil {
		return newError(ErrAttachFailed, query, err)
	}
	return nil
}

// DetachSchema detaches the schema attached under alias.
func (c *Conn) DetachSchema(alias string) error {
	if err := c.check(); err != nil {
		return err
	}

	query := "DETACH DATABASE " + quoteIdent(alias)
	if err := c.runInternal(query); err != nil {
		return newError(ErrDetachFailed, query, err)
	}
	return nil
}

// schemaAttached reports whether pragma_database_list lists alias. Schema
// names are case-insensitive.
func (c *Conn) schemaAttached(alias string) (bool, error) {
	cur, _, err := c.h.Prepare("SELECT 1 FROM pragma_database_list WHERE name = ? COLLATE NOCASE")
	if err != nil {
		return false, err
	}
	defer cur.Finalize() //nolint:errcheck // Read-only query

	if err := cur.BindText(1, alias); err != nil {
		return false, err
	}
	return cur.Step()
}

// runInternal runs a single statement with args without touching the
// transaction bits.
func (c *Conn) runInternal(query string, args ...Value) error {
	cur, _, err := c.h.Prepare(query)
	if err != nil {
		return err
	}
	defer cur.Finalize() //nolint:errcheck // Step error takes precedence

	for i, v := range args {
		if err := bindValue(cur, i+1, v); err != nil {
			return err
		}
	}
	return drain(cur)
}

// quoteIdent quotes s as an SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// LastInsertRowID returns the rowid of the most recent successful INSERT.
func (c *Conn) LastInsertRowID() (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.h.LastInsertRowID(), nil
}

// Changes returns the number of rows changed by the most recent statement.
func (c *Conn) Changes() (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.h.Changes(), nil
}

// Close finalizes any statements still open on the connection and releases
// it. Closing twice is a no-op. Close fails with ErrTransactionOpen when
// called from inside a Transaction body, leaving the connection open.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	if c.txOpen {
		return ErrTransactionOpen
	}

	for s := range c.stmts {
		s.Finalize() //nolint:errcheck // Releasing on close
	}

	c.closed = true
	if err := c.h.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.path, err)
	}
	return nil
}
