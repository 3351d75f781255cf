// Package engine is the boundary between sqlitestore and the embedded SQL engine.
//
// It exposes the engine's handle-based protocol (database handle, compiled
// statement cursor, step/column access) through three small interfaces so
// that higher layers never touch raw pointers:
//
//   - Engine opens a database file and returns a Handle
//   - Handle compiles SQL into a Cursor and reports connection-level state
//   - Cursor binds parameters, steps through results and reads columns
//
// # Implementation
//
// SQLite is the production Engine. It drives the transpiled C library from
// modernc.org/sqlite/lib directly, so no cgo toolchain is required. Text and
// blob parameters are copied into engine-owned memory that lives until the
// slot is rebound, the bindings are cleared or the cursor is finalised.
//
// # Errors
//
// Every failure reported by the engine is an *Error carrying the extended
// result code and the engine's message:
//
//	var engErr *engine.Error
//	if errors.As(err, &engErr) && engErr.Primary() == engine.CodeReadOnly {
//	    // write attempted on a read-only handle
//	}
//
// # Thread Safety
//
// A Handle and its Cursors are single-owner. Callers must not use them from
// more than one goroutine at a time.
package engine
