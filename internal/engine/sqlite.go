package engine

import (
	"fmt"
	"time"
	"unsafe"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	sqlite3 "modernc.org/sqlite/lib"
)

const ptrSize = unsafe.Sizeof(uintptr(0))

// SQLite is the production Engine backed by modernc.org/sqlite/lib.
type SQLite struct{}

// Open opens the database file at path.
//
// The handle runs with extended result codes enabled. A failed open releases
// everything it allocated before returning.
//
// Parameters:
//   - path: Filesystem path of the database file
//   - flags: OpenReadOnly, or OpenReadWrite optionally combined with OpenCreate
//
// Returns:
//   - Handle: Open connection
//   - error: *Error from the engine, or an allocation failure
func (SQLite) Open(path string, flags OpenFlags) (Handle, error) {
	var oflags int32 = sqlite3.SQLITE_OPEN_FULLMUTEX
	switch {
	case flags&OpenReadOnly != 0:
		oflags |= sqlite3.SQLITE_OPEN_READONLY
	default:
		oflags |= sqlite3.SQLITE_OPEN_READWRITE
		if flags&OpenCreate != 0 {
			oflags |= sqlite3.SQLITE_OPEN_CREATE
		}
	}

	h := &handle{tls: libc.NewTLS()}
	db, err := h.openV2(path, oflags)
	if err != nil {
		h.tls.Close()
		return nil, err
	}
	h.db = db

	if rc := sqlite3.Xsqlite3_extended_result_codes(h.tls, h.db, 1); rc != sqlite3.SQLITE_OK {
		err := h.errorf(rc)
		h.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return h, nil
}

type handle struct {
	db  uintptr // *sqlite3.Xsqlite3
	tls *libc.TLS
}

func (h *handle) openV2(name string, flags int32) (uintptr, error) {
	p, err := h.malloc(int(ptrSize))
	if err != nil {
		return 0, err
	}
	defer h.free(p)

	s, err := libc.CString(name)
	if err != nil {
		return 0, err
	}
	defer h.free(s)

	rc := sqlite3.Xsqlite3_open_v2(h.tls, s, p, flags, 0)
	db := *(*uintptr)(unsafe.Pointer(p))
	if rc != sqlite3.SQLITE_OK {
		// The engine usually hands back a handle even on failure; it carries
		// the message and must still be closed.
		e := &Error{Code: int(rc), Message: libc.GoString(sqlite3.Xsqlite3_errstr(h.tls, rc))}
		if db != 0 {
			e.Message = libc.GoString(sqlite3.Xsqlite3_errmsg(h.tls, db))
			sqlite3.Xsqlite3_close_v2(h.tls, db)
		}
		return 0, e
	}

	return db, nil
}

func (h *handle) malloc(n int) (uintptr, error) {
	if p := libc.Xmalloc(h.tls, types.Size_t(n)); p != 0 || n == 0 {
		return p, nil
	}

	return 0, fmt.Errorf("engine: cannot allocate %d bytes of memory", n)
}

func (h *handle) free(p uintptr) {
	if p != 0 {
		libc.Xfree(h.tls, p)
	}
}

// errorf builds an *Error for rc using the handle's current message.
func (h *handle) errorf(rc int32) error {
	msg := libc.GoString(sqlite3.Xsqlite3_errstr(h.tls, rc))
	if h.db != 0 {
		if m := libc.GoString(sqlite3.Xsqlite3_errmsg(h.tls, h.db)); m != "" {
			msg = m
		}
	}
	return &Error{Code: int(rc), Message: msg}
}

func (h *handle) Prepare(query string) (Cursor, string, error) {
	if h.db == 0 {
		return nil, "", ErrClosed
	}

	cquery, err := libc.CString(query)
	if err != nil {
		return nil, "", err
	}
	defer h.free(cquery)

	ppstmt, err := h.malloc(int(ptrSize))
	if err != nil {
		return nil, "", err
	}
	defer h.free(ppstmt)

	pptail, err := h.malloc(int(ptrSize))
	if err != nil {
		return nil, "", err
	}
	defer h.free(pptail)

	if rc := sqlite3.Xsqlite3_prepare_v2(h.tls, h.db, cquery, -1, ppstmt, pptail); rc != sqlite3.SQLITE_OK {
		return nil, "", h.errorf(rc)
	}

	var remainder string
	if tail := *(*uintptr)(unsafe.Pointer(pptail)); tail != 0 {
		if off := int(tail - cquery); off >= 0 && off < len(query) {
			remainder = query[off:]
		}
	}

	pstmt := *(*uintptr)(unsafe.Pointer(ppstmt))
	if pstmt == 0 {
		return nil, remainder, ErrEmptyStatement
	}

	return &cursor{h: h, pstmt: pstmt, allocs: make(map[int]uintptr)}, remainder, nil
}

func (h *handle) LastInsertRowID() int64 {
	if h.db == 0 {
		return 0
	}
	return sqlite3.Xsqlite3_last_insert_rowid(h.tls, h.db)
}

func (h *handle) Changes() int64 {
	if h.db == 0 {
		return 0
	}
	return int64(sqlite3.Xsqlite3_changes(h.tls, h.db))
}

func (h *handle) SetBusyTimeout(d time.Duration) error {
	if h.db == 0 {
		return ErrClosed
	}
	if rc := sqlite3.Xsqlite3_busy_timeout(h.tls, h.db, int32(d.Milliseconds())); rc != sqlite3.SQLITE_OK {
		return h.errorf(rc)
	}
	return nil
}

func (h *handle) Autocommit() bool {
	if h.db == 0 {
		return true
	}
	return sqlite3.Xsqlite3_get_autocommit(h.tls, h.db) != 0
}

func (h *handle) Close() error {
	if h.db != 0 {
		if rc := sqlite3.Xsqlite3_close_v2(h.tls, h.db); rc != sqlite3.SQLITE_OK {
			return h.errorf(rc)
		}
		h.db = 0
	}

	if h.tls != nil {
		h.tls.Close()
		h.tls = nil
	}
	return nil
}

type cursor struct {
	h     *handle
	pstmt uintptr // *sqlite3.Xsqlite3_stmt

	// allocs holds the engine memory backing text and blob parameters, by index.
	allocs map[int]uintptr
}

func (c *cursor) live() bool {
	return c.pstmt != 0 && c.h.db != 0
}

// release frees the memory bound at index i, if any.
func (c *cursor) release(i int) {
	if p, ok := c.allocs[i]; ok {
		c.h.free(p)
		delete(c.allocs, i)
	}
}

func (c *cursor) releaseAll() {
	for i, p := range c.allocs {
		c.h.free(p)
		delete(c.allocs, i)
	}
}

func (c *cursor) ParamCount() int {
	if !c.live() {
		return 0
	}
	return int(sqlite3.Xsqlite3_bind_parameter_count(c.h.tls, c.pstmt))
}

func (c *cursor) ParamIndex(name string) int {
	if !c.live() {
		return 0
	}
	cname, err := libc.CString(name)
	if err != nil {
		return 0
	}
	defer c.h.free(cname)
	return int(sqlite3.Xsqlite3_bind_parameter_index(c.h.tls, c.pstmt, cname))
}

func (c *cursor) bindResult(rc int32) error {
	if rc != sqlite3.SQLITE_OK {
		return c.h.errorf(rc)
	}
	return nil
}

func (c *cursor) BindNull(i int) error {
	if !c.live() {
		return ErrClosed
	}
	if err := c.bindResult(sqlite3.Xsqlite3_bind_null(c.h.tls, c.pstmt, int32(i))); err != nil {
		return err
	}
	c.release(i)
	return nil
}

func (c *cursor) BindInt64(i int, v int64) error {
	if !c.live() {
		return ErrClosed
	}
	if err := c.bindResult(sqlite3.Xsqlite3_bind_int64(c.h.tls, c.pstmt, int32(i), v)); err != nil {
		return err
	}
	c.release(i)
	return nil
}

func (c *cursor) BindFloat64(i int, v float64) error {
	if !c.live() {
		return ErrClosed
	}
	if err := c.bindResult(sqlite3.Xsqlite3_bind_double(c.h.tls, c.pstmt, int32(i), v)); err != nil {
		return err
	}
	c.release(i)
	return nil
}

func (c *cursor) BindText(i int, v string) error {
	if !c.live() {
		return ErrClosed
	}
	p, err := libc.CString(v)
	if err != nil {
		return err
	}
	if err := c.bindResult(sqlite3.Xsqlite3_bind_text(c.h.tls, c.pstmt, int32(i), p, int32(len(v)), 0)); err != nil {
		c.h.free(p)
		return err
	}
	c.release(i)
	c.allocs[i] = p
	return nil
}

// BindBlob binds v as a blob. A nil slice binds NULL; an empty non-nil slice
// binds a zero-length blob.
func (c *cursor) BindBlob(i int, v []byte) error {
	if !c.live() {
		return ErrClosed
	}
	if v == nil {
		return c.BindNull(i)
	}
	if len(v) == 0 {
		if err := c.bindResult(sqlite3.Xsqlite3_bind_zeroblob(c.h.tls, c.pstmt, int32(i), 0)); err != nil {
			return err
		}
		c.release(i)
		return nil
	}

	p, err := c.h.malloc(len(v))
	if err != nil {
		return err
	}
	copy((*libc.RawMem)(unsafe.Pointer(p))[:len(v):len(v)], v)
	if err := c.bindResult(sqlite3.Xsqlite3_bind_blob(c.h.tls, c.pstmt, int32(i), p, int32(len(v)), 0)); err != nil {
		c.h.free(p)
		return err
	}
	c.release(i)
	c.allocs[i] = p
	return nil
}

func (c *cursor) ClearBindings() error {
	if !c.live() {
		return ErrClosed
	}
	if err := c.bindResult(sqlite3.Xsqlite3_clear_bindings(c.h.tls, c.pstmt)); err != nil {
		return err
	}
	c.releaseAll()
	return nil
}

func (c *cursor) Step() (bool, error) {
	if !c.live() {
		return false, ErrClosed
	}
	switch rc := sqlite3.Xsqlite3_step(c.h.tls, c.pstmt); rc {
	case sqlite3.SQLITE_ROW:
		return true, nil
	case sqlite3.SQLITE_DONE:
		return false, nil
	default:
		return false, c.h.errorf(rc)
	}
}

func (c *cursor) Reset() error {
	if !c.live() {
		return ErrClosed
	}
	if rc := sqlite3.Xsqlite3_reset(c.h.tls, c.pstmt); rc != sqlite3.SQLITE_OK {
		return c.h.errorf(rc)
	}
	return nil
}

func (c *cursor) ColumnCount() int {
	if !c.live() {
		return 0
	}
	return int(sqlite3.Xsqlite3_column_count(c.h.tls, c.pstmt))
}

func (c *cursor) ColumnName(i int) string {
	if !c.live() {
		return ""
	}
	return libc.GoString(sqlite3.Xsqlite3_column_name(c.h.tls, c.pstmt, int32(i)))
}

func (c *cursor) ColumnType(i int) ColumnType {
	if !c.live() {
		return ColumnNull
	}
	return ColumnType(sqlite3.Xsqlite3_column_type(c.h.tls, c.pstmt, int32(i)))
}

func (c *cursor) ColumnInt64(i int) int64 {
	if !c.live() {
		return 0
	}
	return sqlite3.Xsqlite3_column_int64(c.h.tls, c.pstmt, int32(i))
}

func (c *cursor) ColumnFloat64(i int) float64 {
	if !c.live() {
		return 0
	}
	return sqlite3.Xsqlite3_column_double(c.h.tls, c.pstmt, int32(i))
}

func (c *cursor) ColumnText(i int) string {
	if !c.live() {
		return ""
	}
	p := sqlite3.Xsqlite3_column_text(c.h.tls, c.pstmt, int32(i))
	n := int(sqlite3.Xsqlite3_column_bytes(c.h.tls, c.pstmt, int32(i)))
	if p == 0 || n == 0 {
		return ""
	}

	b := make([]byte, n)
	copy(b, (*libc.RawMem)(unsafe.Pointer(p))[:n:n])
	return string(b)
}

// ColumnBlob copies the column's bytes. A zero-length blob yields an empty,
// non-nil slice.
func (c *cursor) ColumnBlob(i int) []byte {
	if !c.live() {
		return nil
	}
	p := sqlite3.Xsqlite3_column_blob(c.h.tls, c.pstmt, int32(i))
	n := int(sqlite3.Xsqlite3_column_bytes(c.h.tls, c.pstmt, int32(i)))
	if p == 0 || n == 0 {
		return []byte{}
	}

	b := make([]byte, n)
	copy(b, (*libc.RawMem)(unsafe.Pointer(p))[:n:n])
	return b
}

// Finalize releases the statement and its parameter memory. The engine
// repeats the last step failure from finalize; that code is not reported
// again here.
func (c *cursor) Finalize() error {
	if c.pstmt == 0 {
		return nil
	}
	if c.h.db != 0 {
		sqlite3.Xsqlite3_finalize(c.h.tls, c.pstmt)
		c.releaseAll()
	}
	c.pstmt = 0
	return nil
}
