package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/sqlitestore/internal/infrastructure/influxdb"
	"github.com/nerrad567/sqlitestore/internal/infrastructure/logging"
	"github.com/nerrad567/sqlitestore/internal/infrastructure/mqtt"
	"github.com/nerrad567/sqlitestore/internal/migration"
	"github.com/nerrad567/sqlitestore/migrations"
)

// errMigrationsIncomplete is returned in strict mode when a run was not clean.
var errMigrationsIncomplete = errors.New("migrations incomplete")

// MigrateCmd applies a manifest to every configured database.
type MigrateCmd struct {
	Manifest string `help:"Manifest file (JSON, or YAML by extension). Defaults to migrations.manifest, then the built-in manifest." type:"path"`
	Strict   bool   `help:"Fail unless every step applied cleanly and the manifest had no diagnostics"`
	DryRun   bool   `name:"dry-run" help:"Print the parsed plan as JSON without applying it"`
	JSON     bool   `name:"json" help:"Print the full report as JSON instead of a summary"`
}

func (c *MigrateCmd) Run(ctx context.Context, g *Globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()

	path := c.manifestPath(a)

	if c.DryRun {
		plan, err := c.parse(path)
		if err != nil {
			return err
		}
		return writeJSON(a.out, plan)
	}

	sinks := connectSinks(ctx, a)
	defer sinks.close()

	runner := migration.NewRunner(a.registry,
		migration.WithBusyTimeout(a.cfg.GetBusyTimeout()),
		migration.WithLogger(a.log),
		migration.WithStepHook(func(sr migration.StepResult) {
			if !c.JSON {
				fmt.Fprintf(a.out, "%s v%d: %s%s\n", sr.Key, sr.Version, sr.Status, reasonSuffix(sr.Reason))
			}
		}),
	)

	var report *migration.Report
	if path != "" {
		a.log.Info("applying migrations", "manifest", path)
		report = runner.ApplyFile(ctx, path)
	} else {
		a.log.Info("applying migrations", "manifest", "built-in "+migrations.ManifestName)
		report = runner.Apply(ctx, bytes.NewReader(migrations.Manifest), migration.FormatJSON)
	}

	sinks.publish(report)

	if c.JSON {
		if err := writeJSON(a.out, report); err != nil {
			return err
		}
	} else {
		printReport(a.out, report)
	}

	if (c.Strict || a.cfg.Migrations.Strict) && (!report.Clean() || len(report.Diagnostics) > 0) {
		return fmt.Errorf("%w: %s", errMigrationsIncomplete, report.Summary())
	}
	return nil
}

// manifestPath returns the manifest named by the flag or the configuration,
// or "" for the built-in manifest.
func (c *MigrateCmd) manifestPath(a *app) string {
	if c.Manifest != "" {
		return c.Manifest
	}
	return a.cfg.Migrations.Manifest
}

func (c *MigrateCmd) parse(path string) (*migration.Plan, error) {
	if path == "" {
		return migration.Parse(bytes.NewReader(migrations.Manifest), migration.FormatJSON)
	}
	return migration.ParseFile(path)
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return " (" + reason + ")"
}

// printReport writes one line per key, the manifest diagnostics and the
// summary.
func printReport(w io.Writer, report *migration.Report) {
	for _, k := range report.Keys {
		fmt.Fprintf(w, "%s: %s, version %d -> %d%s\n", k.Key, k.Status, k.VersionBefore, k.VersionAfter, reasonSuffix(k.Reason))
	}
	for _, d := range report.Diagnostics {
		fmt.Fprintf(w, "manifest: %s\n", d)
	}
	fmt.Fprintln(w, report.Summary())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

// sinks forwards migration results to MQTT and InfluxDB. Either client may
// be nil when disabled or unreachable; reporting never fails the run.
type sinks struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	log    *logging.Logger
}

// healthChecker is the part of a sink client checked before a run.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// healthy reports whether client passed its health check. An unhealthy client
// is closed and logged; the caller drops it.
func healthy(ctx context.Context, log *logging.Logger, name string, client healthChecker) bool {
	if err := client.HealthCheck(ctx); err != nil {
		log.Warn(name+" unhealthy, sink dropped", "error", err)
		client.Close() //nolint:errcheck // Close always returns nil
		return false
	}
	return true
}

func connectSinks(ctx context.Context, a *app) *sinks {
	s := &sinks{log: a.log}

	if a.cfg.MQTT.Enabled {
		client, err := mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			a.log.Warn("MQTT unavailable, report will not be published", "error", err)
		} else if healthy(ctx, a.log, "MQTT", client) {
			client.SetLogger(a.log)
			s.mqtt = client
		}
	}

	if a.cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(a.cfg.InfluxDB)
		if err != nil {
			a.log.Warn("InfluxDB unavailable, metrics will not be written", "error", err)
		} else if healthy(ctx, a.log, "InfluxDB", client) {
			client.SetOnError(func(err error) {
				a.log.Warn("InfluxDB write failed", "error", err)
			})
			s.influx = client
		}
	}

	return s
}

// publish sends the report: the whole report and each key result as
// retained MQTT messages, and one point per step plus a run summary to
// InfluxDB.
func (s *sinks) publish(report *migration.Report) {
	if s.mqtt != nil {
		topics := s.mqtt.Topics()
		if err := s.mqtt.PublishJSON(topics.MigrationReport(), report); err != nil {
			s.log.Warn("publishing migration report failed", "error", err)
		}
		for _, k := range report.Keys {
			if err := s.mqtt.PublishJSON(topics.MigrationKey(k.Key), k); err != nil {
				s.log.Warn("publishing migration result failed", "key", k.Key, "error", err)
			}
		}
	}

	if s.influx != nil {
		for _, sr := range report.Steps() {
			s.influx.WriteMigrationStep(stepMetric(report, sr))
		}
		s.influx.WriteMigrationRun(runMetric(report))
		s.influx.Flush()
	}
}

func (s *sinks) close() {
	if s.mqtt != nil {
		s.mqtt.Close() //nolint:errcheck // Close always returns nil
	}
	if s.influx != nil {
		s.influx.Close() //nolint:errcheck // Close always returns nil
	}
}

func stepMetric(report *migration.Report, sr migration.StepResult) influxdb.StepMetric {
	return influxdb.StepMetric{
		RunID:    report.RunID,
		Key:      sr.Key,
		Version:  sr.Version,
		Status:   string(sr.Status),
		Executed: sr.Executed,
		Commands: sr.Commands,
		Vacuumed: sr.Vacuumed,
		Duration: sr.Duration,
		At:       report.FinishedAt,
	}
}

func runMetric(report *migration.Report) influxdb.RunMetric {
	m := influxdb.RunMetric{
		RunID:       report.RunID,
		Keys:        len(report.Keys),
		Diagnostics: len(report.Diagnostics),
		Clean:       report.Clean(),
		Duration:    report.FinishedAt.Sub(report.StartedAt),
		At:          report.FinishedAt,
	}
	for _, sr := range report.Steps() {
		switch sr.Status {
		case migration.StepApplied:
			m.Applied++
		case migration.StepAlreadyApplied:
			m.AlreadyApplied++
		case migration.StepSkippedOnError:
			m.Skipped++
		case migration.StepFailed:
			m.Failed++
		case migration.StepNotAttempted:
			m.NotAttempted++
		}
	}
	return m
}
