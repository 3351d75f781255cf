package store

import (
	"fmt"
)

// Run prepares query, binds params and steps it to completion.
func (c *Conn) Run(query string, params Params) error {
	return c.WithStatement(query, func(s *Stmt) error {
		if err := s.BindParams(params); err != nil {
			return err
		}
		for {
			row, err := s.Step()
			if err != nil || !row {
				return err
			}
		}
	})
}

// RunBatch prepares query once and runs it for each parameter set, resetting
// and clearing bindings between sets. It stops at the first failure.
func (c *Conn) RunBatch(query string, sets []Params) error {
	return c.WithStatement(query, func(s *Stmt) error {
		for i, params := range sets {
			if err := s.BindParams(params); err != nil {
				return fmt.Errorf("parameter set %d: %w", i, err)
			}
			for {
				row, err := s.Step()
				if err != nil {
					return fmt.Errorf("parameter set %d: %w", i, err)
				}
				if !row {
					break
				}
			}
			if err := s.Reset(true); err != nil {
				return fmt.Errorf("parameter set %d: %w", i, err)
			}
		}
		return nil
	})
}

// Select runs query with params and returns every result row.
func (c *Conn) Select(query string, params Params) ([]Row, error) {
	var rows []Row
	err := c.WithStatement(query, func(s *Stmt) error {
		if err := s.BindParams(params); err != nil {
			return err
		}
		for {
			row, ok, err := s.FetchRow()
			if err != nil || !ok {
				return err
			}
			rows = append(rows, row)
		}
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectFirst returns the first row produced by query. Errors are logged at
// debug level and reported as no row.
func (c *Conn) SelectFirst(query string, params Params) (Row, bool) {
	var (
		first Row
		found bool
	)
	err := c.WithStatement(query, func(s *Stmt) error {
		if err := s.BindParams(params); err != nil {
			return err
		}
		var err error
		first, found, err = s.FetchRow()
		return err
	})
	if err != nil {
		c.logger.Debug("select first failed", "sql", query, "error", err)
		return nil, false
	}
	return first, found
}

// ScalarType is the set of types Scalar can extract.
type ScalarType interface {
	int64 | float64 | bool | string | []byte
}

// Scalar returns the first column of the first row produced by query.
//
// It reports false when there is no row, the value is NULL, or anything
// failed. Errors are logged at debug level and not returned; a failing
// statement inside a transaction still marks it for rollback.
func Scalar[T ScalarType](c *Conn, query string, params Params) (T, bool) {
	var (
		out T
		ok  bool
	)
	err := c.WithStatement(query, func(s *Stmt) error {
		if err := s.BindParams(params); err != nil {
			return err
		}
		row, err := s.Step()
		if err != nil || !row {
			return err
		}
		switch p := any(&out).(type) {
		case *int64:
			*p, ok = s.Int64(0)
		case *float64:
			*p, ok = s.Float64(0)
		case *bool:
			*p, ok = s.Bool(0)
		case *string:
			*p, ok = s.Text(0)
		case *[]byte:
			*p, ok = s.Bytes(0)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("scalar select failed", "sql", query, "error", err)
		var zero T
		return zero, false
	}
	return out, ok
}

// UserVersion reads PRAGMA user_version.
func (c *Conn) UserVersion() (int64, error) {
	var version int64
	err := c.WithStatement("PRAGMA user_version", func(s *Stmt) error {
		row, err := s.Step()
		if err != nil || !row {
			return err
		}
		version, _ = s.Int64(0)
		return nil
	})
	return version, err
}

// SetUserVersion writes PRAGMA user_version.
func (c *Conn) SetUserVersion(version int64) error {
	return c.Execute(fmt.Sprintf("PRAGMA user_version = %d", version))
}

// Vacuum rebuilds the main database file. It fails inside a transaction.
func (c *Conn) Vacuum() error {
	return c.Execute("VACUUM")
}
