// Package store provides connection-scoped access to SQLite databases.
//
// It sits on top of the engine package and gives application code typed,
// handle-free access to the database:
//
//   - Value, a closed set of SQL values used for binding and row extraction
//   - Stmt, a prepared statement with positional and named binding
//   - Conn, a connection that tracks an explicit transaction and rolls it
//     back when any statement inside it fails
//   - Registry, a mutex-guarded map of logical database keys to files
//
// # Transactions
//
// Statements prepared while a transaction is open report their bind and
// step failures back to the connection. The enclosing Transaction call then
// issues ROLLBACK even if the body swallowed the error:
//
//	err := conn.Transaction(func(c *store.Conn) error {
//	    _ = c.Run("INSERT INTO t VALUES (?)", store.Positional{1})
//	    _ = c.Run("INSERT INTO missing VALUES (1)", nil) // fails, marks rollback
//	    return nil
//	})
//	// errors.Is(err, store.ErrRolledBack) == true
//
// A failed COMMIT or ROLLBACK leaves the connection broken; every later
// call except Close returns ErrBroken.
//
// # Errors
//
// Engine failures are returned as *Error, which matches one of the
// ErrOpenFailed ... ErrDetachFailed sentinels with errors.Is and exposes the
// engine's result code, message and the SQL text involved.
//
// # Thread Safety
//
// Conn and Stmt are single-owner and perform no locking. Registry is safe
// for concurrent use, but the connections it hands out are not.
package store
