package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/nerrad567/sqlitestore/internal/engine"
	"github.com/nerrad567/sqlitestore/internal/store"
)

// reasonCancelled is the reason recorded for steps a cancelled context kept
// from running.
const reasonCancelled = "cancelled"

// Resolver maps logical database keys to files.
// store.Registry implements it.
type Resolver interface {
	// Path returns the database file for key.
	Path(key string) (string, bool)

	// Attachments returns alias → key for the schemas attached whenever
	// key is opened.
	Attachments(key string) map[string]string
}

// Logger defines the logging interface used by the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StepHook is called with every step result as soon as it is known.
type StepHook func(StepResult)

// Runner applies manifests to the databases named by a Resolver.
//
// A Runner holds no state between runs and may be reused. Runs against the
// same files must not overlap.
type Runner struct {
	resolver    Resolver
	engine      engine.Engine
	busyTimeout time.Duration
	logger      Logger
	hooks       []StepHook
}

// Option configures a Runner.
type Option func(*Runner)

// WithEngine sets the engine used to open databases.
func WithEngine(e engine.Engine) Option {
	return func(r *Runner) { r.engine = e }
}

// WithBusyTimeout sets the busy timeout of the connections the runner opens.
func WithBusyTimeout(d time.Duration) Option {
	return func(r *Runner) { r.busyTimeout = d }
}

// WithLogger sets the logger for step outcomes and manifest diagnostics.
func WithLogger(l Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithStepHook adds a hook called with every step result.
func WithStepHook(h StepHook) Option {
	return func(r *Runner) { r.hooks = append(r.hooks, h) }
}

// NewRunner creates a runner resolving keys through resolver.
func NewRunner(resolver Resolver, opts ...Option) *Runner {
	r := &Runner{
		resolver: resolver,
		engine:   engine.SQLite{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply parses a manifest from src and applies it.
// An undecodable manifest yields a report with one diagnostic and no keys.
func (r *Runner) Apply(ctx context.Context, src io.Reader, format Format) *Report {
	plan, err := Parse(src, format)
	if err != nil {
		return r.failedParse(err)
	}
	return r.ApplyPlan(ctx, plan)
}

// ApplyFile parses the manifest at path, choosing the format from its
// extension, and applies it.
func (r *Runner) ApplyFile(ctx context.Context, path string) *Report {
	plan, err := ParseFile(path)
	if err != nil {
		return r.failedParse(err)
	}
	return r.ApplyPlan(ctx, plan)
}

func (r *Runner) failedParse(err error) *Report {
	r.logger.Error("manifest unreadable, nothing applied", "error", err)
	report := newReport(time.Now())
	report.Diagnostics = []Diagnostic{{Message: err.Error()}}
	report.FinishedAt = time.Now()
	return report
}

// ApplyPlan applies every key of plan in plan order.
//
// It never fails: every outcome, including keys whose file is missing and
// steps that were never attempted, is recorded in the returned Report.
// Cancelling ctx stops the run between steps.
func (r *Runner) ApplyPlan(ctx context.Context, plan *Plan) *Report {
	report := newReport(time.Now())
	report.Diagnostics = append(report.Diagnostics, plan.Diagnostics...)
	for _, d := range plan.Diagnostics {
		r.logger.Warn("manifest entry ignored", "diagnostic", d.String())
	}

	for _, kp := range plan.Keys {
		report.Keys = append(report.Keys, r.applyKey(ctx, kp))
	}

	report.FinishedAt = time.Now()
	r.logger.Info("migrations finished",
		"run_id", report.RunID,
		"applied", report.Applied(),
		"failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report
}

func (r *Runner) applyKey(ctx context.Context, kp KeyPlan) KeyResult {
	res := KeyResult{Key: kp.Key, Status: KeyCompleted}

	if ctx.Err() != nil {
		return r.abandon(res, kp.Steps, KeyCancelled, reasonCancelled)
	}

	path, ok := r.resolver.Path(kp.Key)
	if !ok {
		return r.abandon(res, kp.Steps, KeyMissing, ErrUnknownKey.Error())
	}
	res.Path = path

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Info("database file missing, key skipped", "key", kp.Key, "path", path)
			return r.abandon(res, kp.Steps, KeyMissing, "database file does not exist")
		}
		return r.abandon(res, kp.Steps, KeyOpenFailed, err.Error())
	}

	conn, err := r.open(kp.Key, path)
	if err != nil {
		r.logger.Error("opening database failed", "key", kp.Key, "path", path, "error", err)
		return r.abandon(res, kp.Steps, KeyOpenFailed, err.Error())
	}
	defer func() {
		if err := conn.Close(); err != nil {
			r.logger.Warn("closing database failed", "key", kp.Key, "error", err)
		}
	}()

	current, err := conn.UserVersion()
	if err != nil {
		return r.abandon(res, kp.Steps, KeyOpenFailed, fmt.Sprintf("reading user_version: %v", err))
	}
	res.VersionBefore = current
	res.VersionAfter = current

	for i, step := range kp.Steps {
		if ctx.Err() != nil {
			res.Status = KeyCancelled
			res.Reason = reasonCancelled
			for _, rest := range kp.Steps[i:] {
				r.record(&res, notAttempted(rest, reasonCancelled))
			}
			break
		}

		if step.Version <= current {
			r.record(&res, StepResult{
				Key:      step.Key,
				Version:  step.Version,
				Status:   StepAlreadyApplied,
				Commands: len(step.Commands),
			})
			continue
		}

		sr := r.applyStep(conn, step)
		r.record(&res, sr)

		if sr.Status == StepFailed {
			res.Status = KeyAborted
			res.Reason = fmt.Sprintf("version %d failed", step.Version)
			for _, rest := range kp.Steps[i+1:] {
				r.record(&res, notAttempted(rest, res.Reason))
			}
			break
		}

		current = step.Version
		res.VersionAfter = current
	}

	return res
}

// applyStep runs one pending step on conn.
func (r *Runner) applyStep(conn *store.Conn, step Step) StepResult {
	start := time.Now()
	sr := StepResult{Key: step.Key, Version: step.Version, Commands: len(step.Commands)}

	// ATTACH is not allowed inside a transaction.
	for _, key := range step.Attachments {
		if err := r.attach(conn, key, key); err != nil {
			sr.Status = StepFailed
			sr.Reason = fmt.Sprintf("attaching %s: %v", key, err)
			sr.Duration = time.Since(start)
			return sr
		}
	}

	err := conn.Transaction(func(tx *store.Conn) error {
		for i, command := range step.Commands {
			if err := tx.Execute(command); err != nil {
				return fmt.Errorf("command %d: %w", i+1, err)
			}
			sr.Executed++
		}
		return nil
	})

	switch {
	case err == nil:
		sr.Status = StepApplied
	case step.SkipOnError:
		sr.Status = StepSkippedOnError
		sr.Reason = err.Error()
	default:
		sr.Status = StepFailed
		sr.Reason = err.Error()
		sr.Duration = time.Since(start)
		return sr
	}

	if err := conn.SetUserVersion(step.Version); err != nil {
		sr.Status = StepFailed
		sr.Reason = joinReason(sr.Reason, fmt.Sprintf("setting user_version: %v", err))
		sr.Duration = time.Since(start)
		return sr
	}
	// SQLite keeps only the low 32 bits; a mismatch would re-run the step forever.
	if got, err := conn.UserVersion(); err != nil || got != step.Version {
		sr.Status = StepFailed
		if err == nil {
			err = fmt.Errorf("%w: wrote %d, read back %d", ErrVersionMismatch, step.Version, got)
		}
		sr.Reason = joinReason(sr.Reason, fmt.Sprintf("verifying user_version: %v", err))
		sr.Duration = time.Since(start)
		return sr
	}

	if step.Vacuum {
		if err := conn.Vacuum(); err != nil {
			r.logger.Warn("vacuum failed", "key", step.Key, "version", step.Version, "error", err)
			sr.Reason = joinReason(sr.Reason, fmt.Sprintf("vacuum: %v", err))
		} else {
			sr.Vacuumed = true
		}
	}

	sr.Duration = time.Since(start)
	return sr
}

// open opens key read-write without creating it and attaches the key's
// registered schemas.
func (r *Runner) open(key, path string) (*store.Conn, error) {
	conn, err := store.Open(store.Config{
		Path:        path,
		BusyTimeout: r.busyTimeout,
		Engine:      r.engine,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, err
	}

	attachments := r.resolver.Attachments(key)
	aliases := make([]string, 0, len(attachments))
	for alias := range attachments {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		if err := r.attach(conn, alias, attachments[alias]); err != nil {
			conn.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("attaching %s: %w", alias, err)
		}
	}
	return conn, nil
}

// attach attaches the file of key under alias. A missing file is an error
// rather than letting the engine fail later on the first query against it.
func (r *Runner) attach(conn *store.Conn, alias, key string) error {
	path, ok := r.resolver.Path(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrAttachmentMissing, path)
		}
		return err
	}
	return conn.AttachSchema(path, alias)
}

// abandon records every step of a key that could not be processed.
func (r *Runner) abandon(res KeyResult, steps []Step, status KeyStatus, reason string) KeyResult {
	res.Status = status
	res.Reason = reason
	for _, step := range steps {
		r.record(&res, notAttempted(step, reason))
	}
	return res
}

// record appends sr to res, logs it and passes it to the hooks.
func (r *Runner) record(res *KeyResult, sr StepResult) {
	res.Steps = append(res.Steps, sr)

	switch sr.Status {
	case StepApplied:
		r.logger.Info("migration applied", "key", sr.Key, "version", sr.Version, "duration", sr.Duration)
	case StepSkippedOnError:
		r.logger.Warn("migration failed but skipped", "key", sr.Key, "version", sr.Version, "reason", sr.Reason)
	case StepFailed:
		r.logger.Error("migration failed", "key", sr.Key, "version", sr.Version, "reason", sr.Reason)
	default:
		r.logger.Debug("migration step", "key", sr.Key, "version", sr.Version, "status", sr.Status)
	}

	for _, h := range r.hooks {
		h(sr)
	}
}

func notAttempted(step Step, reason string) StepResult {
	return StepResult{
		Key:      step.Key,
		Version:  step.Version,
		Status:   StepNotAttempted,
		Reason:   reason,
		Commands: len(step.Commands),
	}
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
