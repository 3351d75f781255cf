package store

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/sqlitestore/internal/engine"
)

// recordingEngine wraps the real engine and records every handle call.
type recordingEngine struct {
	calls    int
	prepared []string
}

func (e *recordingEngine) Open(path string, flags engine.OpenFlags) (engine.Handle, error) {
	e.calls++
	h, err := engine.SQLite{}.Open(path, flags)
	if err != nil {
		return nil, err
	}
	return &recordingHandle{Handle: h, e: e}, nil
}

// count returns how many recorded statements contain substr.
func (e *recordingEngine) count(substr string) int {
	n := 0
	for _, q := range e.prepared {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

type recordingHandle struct {
	engine.Handle
	e *recordingEngine
}

func (h *recordingHandle) Prepare(query string) (engine.Cursor, string, error) {
	h.e.calls++
	h.e.prepared = append(h.e.prepared, query)
	return h.Handle.Prepare(query)
}

func (h *recordingHandle) LastInsertRowID() int64 {
	h.e.calls++
	return h.Handle.LastInsertRowID()
}

func (h *recordingHandle) Changes() int64 {
	h.e.calls++
	return h.Handle.Changes()
}

func (h *recordingHandle) SetBusyTimeout(d time.Duration) error {
	h.e.calls++
	return h.Handle.SetBusyTimeout(d)
}

func (h *recordingHandle) Autocommit() bool {
	h.e.calls++
	return h.Handle.Autocommit()
}

func (h *recordingHandle) Close() error {
	h.e.calls++
	return h.Handle.Close()
}

// openTestConn opens a new database in a temp directory.
func openTestConn(t *testing.T) *Conn {
	t.Helper()
	return openTestConnWith(t, nil)
}

// openTestConnWith opens a new database through eng (nil for the default).
func openTestConnWith(t *testing.T, eng engine.Engine) *Conn {
	t.Helper()
	c, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Create: true,
		Engine: eng,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// mustExecute runs query and fails the test on error.
func mustExecute(t *testing.T, c *Conn, query string) {
	t.Helper()
	if err := c.Execute(query); err != nil {
		t.Fatalf("Execute(%q) error = %v", query, err)
	}
}

// countRows returns SELECT COUNT(*) FROM table.
func countRows(t *testing.T, c *Conn, table string) int64 {
	t.Helper()
	n, ok := Scalar[int64](c, "SELECT COUNT(*) FROM "+table, nil)
	if !ok {
		t.Fatalf("counting rows in %s failed", table)
	}
	return n
}
