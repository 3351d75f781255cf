package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementStep = "migration_step"
	measurementRun  = "migration_run"
)

// StepMetric describes one migration step outcome.
type StepMetric struct {
	RunID    string
	Key      string
	Version  int64
	Status   string
	Executed int
	Commands int
	Vacuumed bool
	Duration time.Duration
	At       time.Time
}

// RunMetric summarises one migration run.
type RunMetric struct {
	RunID          string
	Keys           int
	Applied        int
	AlreadyApplied int
	Skipped        int
	Failed         int
	NotAttempted   int
	Diagnostics    int
	Clean          bool
	Duration       time.Duration
	At             time.Time
}

// stepPoint builds the point for m. Key and status are tags; the version is
// a field so each version does not become its own series.
func stepPoint(m StepMetric) *write.Point {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		measurementStep,
		map[string]string{
			"key":    m.Key,
			"status": m.Status,
		},
		map[string]interface{}{
			"run_id":      m.RunID,
			"version":     m.Version,
			"executed":    m.Executed,
			"commands":    m.Commands,
			"vacuumed":    m.Vacuumed,
			"duration_ms": float64(m.Duration) / float64(time.Millisecond),
		},
		at,
	)
}

func runPoint(m RunMetric) *write.Point {
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	clean := "false"
	if m.Clean {
		clean = "true"
	}
	return write.NewPoint(
		measurementRun,
		map[string]string{
			"clean": clean,
		},
		map[string]interface{}{
			"run_id":          m.RunID,
			"keys":            m.Keys,
			"applied":         m.Applied,
			"already_applied": m.AlreadyApplied,
			"skipped":         m.Skipped,
			"failed":          m.Failed,
			"not_attempted":   m.NotAttempted,
			"diagnostics":     m.Diagnostics,
			"duration_ms":     float64(m.Duration) / float64(time.Millisecond),
		},
		at,
	)
}

// WriteMigrationStep records one step outcome.
//
// The write is non-blocking; data is batched and sent asynchronously.
// It does nothing when the client is not connected.
//
// Example:
//
//	client.WriteMigrationStep(influxdb.StepMetric{
//	    Key: "main", Version: 3, Status: "applied", Executed: 2, Commands: 2,
//	})
func (c *Client) WriteMigrationStep(m StepMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stepPoint(m))
}

// WriteMigrationRun records the summary of a finished run.
func (c *Client) WriteMigrationRun(m RunMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(runPoint(m))
}
