// Command sqlitestore manages the SQLite databases described by its
// configuration file: it applies the migration manifest, runs ad-hoc
// queries and statements, and reports migration results to MQTT and
// InfluxDB when they are enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nerrad567/sqlitestore/internal/infrastructure/config"
	"github.com/nerrad567/sqlitestore/internal/infrastructure/logging"
	"github.com/nerrad567/sqlitestore/internal/store"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// errNoDatabase is returned when a command needs a database and none is
// configured or named.
var errNoDatabase = errors.New("no database configured")

// Globals are flags shared by every command.
type Globals struct {
	Config string `name:"config" short:"c" help:"Path to the YAML configuration file" type:"path" env:"SQLITESTORE_CONFIG"`

	out io.Writer `kong:"-"`
}

// CLI defines the command-line interface.
var CLI struct {
	Globals

	Migrate MigrateCmd `cmd:"" help:"Apply the migration manifest to the configured databases"`
	Query   QueryCmd   `cmd:"" help:"Run a query and print the rows as JSON lines"`
	Exec    ExecCmd    `cmd:"" help:"Run SQL statements without results"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func main() {
	// Cancel on Ctrl+C or SIGTERM; the migration runner stops between steps.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and runs the selected command, separated from main for
// testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for command output
//   - stderr: Destination for usage and parse errors
//
// Returns:
//   - error: nil on success, or error describing the failure
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cli := CLI
	cli.Globals.out = stdout

	parser, err := kong.New(&cli,
		kong.Name("sqlitestore"),
		kong.Description("SQLite access layer and schema migration tool"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&cli.Globals),
	)
	if err != nil {
		return fmt.Errorf("building command line: %w", err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		var parseErr *kong.ParseError
		if errors.As(err, &parseErr) && parseErr.Context != nil {
			parseErr.Context.PrintUsage(true) //nolint:errcheck // Usage is best effort
		}
		return err
	}
	return kctx.Run()
}

// app holds what every database command needs.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *store.Registry
	out      io.Writer
}

// setup loads the configuration, builds the logger and registers every
// configured database.
//
// Databases marked create are created (with their directory) when their
// file does not exist yet, so the runner finds them.
func setup(g *Globals) (*app, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", g.Config, "databases", len(cfg.Databases))

	registry := store.NewRegistry(
		store.WithBusyTimeout(cfg.GetBusyTimeout()),
		store.WithLogger(log),
	)

	for _, key := range cfg.DatabaseKeys() {
		db := cfg.Databases[key]
		if db.Create {
			if err := ensureDatabase(db.Path, cfg); err != nil {
				return nil, fmt.Errorf("creating database %s: %w", key, err)
			}
		}
		if err := registry.Register(store.Registration{
			Key:         key,
			Path:        db.Path,
			Attachments: db.Attachments,
			Default:     db.Default,
		}); err != nil {
			return nil, err
		}
	}

	out := g.out
	if out == nil {
		out = os.Stdout
	}

	return &app{cfg: cfg, log: log, registry: registry, out: out}, nil
}

// ensureDatabase creates an empty database file at path unless one exists.
// Writing user_version back forces the engine to write the file header.
func ensureDatabase(path string, cfg *config.Config) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	conn, err := store.Open(store.Config{
		Path:        path,
		Create:      true,
		BusyTimeout: cfg.GetBusyTimeout(),
	})
	if err != nil {
		return err
	}

	v, err := conn.UserVersion()
	if err == nil {
		err = conn.SetUserVersion(v)
	}
	return errors.Join(err, conn.Close())
}

// databaseKey returns key, or the registry default when key is empty.
func (a *app) databaseKey(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	if def, ok := a.registry.Default(); ok {
		return def, nil
	}
	return "", errNoDatabase
}

func (a *app) close() {
	if err := a.registry.CloseAll(); err != nil {
		a.log.Warn("closing databases failed", "error", err)
	}
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	out := g.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "sqlitestore %s (commit %s, built %s)\n", version, commit, date)
	return nil
}
