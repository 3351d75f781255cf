//go:build cgo_sqlite

package engine

// These tests read files written through the pure Go engine back with the
// CGO driver (mattn/go-sqlite3) to check on-disk compatibility.
// Run with: CGO_ENABLED=1 go test -tags cgo_sqlite -run Compat ./internal/engine

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // CGO driver
)

func TestCompat_CGOReadsEngineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compat.db")

	h, err := SQLite{}.Open(path, OpenReadWrite|OpenCreate)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	mustExec(t, h, "CREATE TABLE t (i INTEGER, r REAL, s TEXT, b BLOB)")
	mustExec(t, h, "PRAGMA user_version = 7")

	ins, _, err := h.Prepare("INSERT INTO t VALUES (?, ?, ?, ?)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	ins.BindInt64(1, 9007199254740993)
	ins.BindFloat64(2, 0.125)
	ins.BindText(3, "ünïcode")
	ins.BindBlob(4, []byte{0xde, 0xad, 0xbe, 0xef})
	if _, err := ins.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	ins.Finalize()
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open CGO database: %v", err)
	}
	defer db.Close()

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("CGO user_version query failed: %v", err)
	}
	if version != 7 {
		t.Errorf("user_version = %d, want 7", version)
	}

	var (
		i int64
		r float64
		s string
		b []byte
	)
	if err := db.QueryRow("SELECT i, r, s, b FROM t").Scan(&i, &r, &s, &b); err != nil {
		t.Fatalf("CGO query failed: %v", err)
	}
	if i != 9007199254740993 {
		t.Errorf("i = %d, want 9007199254740993", i)
	}
	if r != 0.125 {
		t.Errorf("r = %v, want 0.125", r)
	}
	if s != "ünïcode" {
		t.Errorf("s = %q, want %q", s, "ünïcode")
	}
	if !bytes.Equal(b, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("b = %x, want deadbeef", b)
	}
}

func TestCompat_EngineReadsCGOFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cgo.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open CGO database: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE t (s TEXT); INSERT INTO t VALUES ('from cgo')"); err != nil {
		t.Fatalf("CGO exec failed: %v", err)
	}
	db.Close()

	h, err := SQLite{}.Open(path, OpenReadOnly)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	c, _, err := h.Prepare("SELECT s FROM t")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer c.Finalize()

	if row, err := c.Step(); err != nil || !row {
		t.Fatalf("Step() = %v, %v; want true, nil", row, err)
	}
	if got := c.ColumnText(0); got != "from cgo" {
		t.Errorf("ColumnText(0) = %q, want %q", got, "from cgo")
	}
}
