package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/sqlitestore/internal/store"
)

// QueryCmd runs one statement and prints its rows.
type QueryCmd struct {
	DB    string   `name:"db" short:"d" help:"Database key (defaults to the default database)"`
	Write bool     `help:"Open the database read-write"`
	SQL   string   `arg:"" help:"SQL statement"`
	Args  []string `arg:"" optional:"" help:"Positional parameters: integers, reals and null are converted, anything else is text"`
}

func (c *QueryCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()

	key, err := a.databaseKey(c.DB)
	if err != nil {
		return err
	}

	return a.registry.With(key, !c.Write, func(conn *store.Conn) error {
		rows, err := conn.Select(c.SQL, parseArgs(c.Args))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(a.out)
		for _, row := range rows {
			if err := enc.Encode(rowObject(row)); err != nil {
				return fmt.Errorf("encoding row: %w", err)
			}
		}
		return nil
	})
}

// ExecCmd runs statements that produce no rows.
type ExecCmd struct {
	DB          string `name:"db" short:"d" help:"Database key (defaults to the default database)"`
	Transaction bool   `name:"tx" help:"Run all statements in one transaction"`
	SQL         string `arg:"" help:"One or more SQL statements separated by semicolons"`
}

func (c *ExecCmd) Run(g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()

	key, err := a.databaseKey(c.DB)
	if err != nil {
		return err
	}

	return a.registry.With(key, false, func(conn *store.Conn) error {
		var err error
		if c.Transaction {
			err = conn.Transaction(func(tx *store.Conn) error {
				return tx.Execute(c.SQL)
			})
		} else {
			err = conn.Execute(c.SQL)
		}
		if err != nil {
			return err
		}

		changes, err := conn.Changes()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "ok: %d row(s) changed\n", changes)
		return nil
	})
}

// parseArgs converts command-line parameters to values.
func parseArgs(args []string) store.Positional {
	if len(args) == 0 {
		return nil
	}
	out := make(store.Positional, len(args))
	for i, arg := range args {
		out[i] = parseArg(arg)
	}
	return out
}

func parseArg(arg string) any {
	if strings.EqualFold(arg, "null") {
		return nil
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f
	}
	return arg
}

// rowObject converts a row to plain values for JSON. Blobs encode as base64.
func rowObject(row store.Row) map[string]any {
	obj := make(map[string]any, len(row))
	for name, v := range row {
		obj[name] = v.Any()
	}
	return obj
}
