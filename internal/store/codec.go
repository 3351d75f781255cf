package store

import "github.com/nerrad567/sqlitestore/internal/engine"

// bindValue writes v into parameter slot i of c.
func bindValue(c engine.Cursor, i int, v Value) error {
	switch v.kind {
	case KindText:
		return c.BindText(i, v.s)
	case KindInteger, KindBoolean:
		return c.BindInt64(i, v.i)
	case KindReal:
		return c.BindFloat64(i, v.f)
	case KindBlob:
		return c.BindBlob(i, v.b)
	default:
		return c.BindNull(i)
	}
}

// readValue reads column col of the current row of c.
func readValue(c engine.Cursor, col int) Value {
	switch c.ColumnType(col) {
	case engine.ColumnInteger:
		return Integer(c.ColumnInt64(col))
	case engine.ColumnFloat:
		return Real(c.ColumnFloat64(col))
	case engine.ColumnText:
		return Text(c.ColumnText(col))
	case engine.ColumnBlob:
		return Value{kind: KindBlob, b: c.ColumnBlob(col)}
	default:
		return Null()
	}
}
