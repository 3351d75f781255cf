// Package logging provides structured logging for sqlitestore.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the store, the migration runner
// and the command line tool.
//
// # Features
//
//   - JSON output by default (machine-parsable)
//   - Text output for interactive use
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stderr, stdout, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	registry := store.NewRegistry(store.WithLogger(logger.With("component", "store")))
//
// # Security
//
// Never log secrets or tokens. Statement text is logged at warn level when
// a compile leaves text behind, so avoid inlining credentials in SQL.
package logging
