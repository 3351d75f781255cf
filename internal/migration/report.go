package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StepStatus is the outcome of one step.
type StepStatus string

// Step outcomes.
const (
	// StepApplied means every command succeeded and user_version advanced.
	StepApplied StepStatus = "applied"

	// StepAlreadyApplied means user_version was already at or past the step.
	StepAlreadyApplied StepStatus = "already-applied"

	// StepSkippedOnError means a command failed, the transaction rolled back
	// and user_version advanced anyway because of skipOnError.
	StepSkippedOnError StepStatus = "skipped-on-error"

	// StepFailed means a command failed and the key was abandoned.
	StepFailed StepStatus = "failed"

	// StepNotAttempted means an earlier failure, a missing file or
	// cancellation kept the step from running.
	StepNotAttempted StepStatus = "not-attempted"
)

// KeyStatus is the outcome of one logical database.
type KeyStatus string

// Key outcomes.
const (
	KeyCompleted  KeyStatus = "completed"
	KeyAborted    KeyStatus = "aborted"
	KeyMissing    KeyStatus = "key-missing"
	KeyOpenFailed KeyStatus = "open-failed"
	KeyCancelled  KeyStatus = "cancelled"
)

// StepResult records what happened to one step.
type StepResult struct {
	Key     string     `json:"key"`
	Version int64      `json:"version"`
	Status  StepStatus `json:"status"`

	// Reason explains a non-applied status.
	Reason string `json:"reason,omitempty"`

	// Executed is the number of commands that succeeded. They were rolled
	// back unless the step is applied.
	Executed int `json:"executed"`

	// Commands is the number of commands in the step.
	Commands int `json:"commands"`

	// Vacuumed reports whether VACUUM ran after the step.
	Vacuumed bool `json:"vacuumed,omitempty"`

	Duration time.Duration `json:"duration"`
}

// KeyResult records what happened to one logical database.
type KeyResult struct {
	Key    string    `json:"key"`
	Path   string    `json:"path,omitempty"`
	Status KeyStatus `json:"status"`
	Reason string    `json:"reason,omitempty"`

	// VersionBefore and VersionAfter are user_version around the run.
	VersionBefore int64 `json:"versionBefore"`
	VersionAfter  int64 `json:"versionAfter"`

	Steps []StepResult `json:"steps"`
}

// Report is the complete outcome of one runner invocation.
type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Keys        []KeyResult  `json:"keys"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

func newReport(now time.Time) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
}

// Steps returns every step result in run order.
func (r *Report) Steps() []StepResult {
	var out []StepResult
	for _, k := range r.Keys {
		out = append(out, k.Steps...)
	}
	return out
}

func (r *Report) count(statuses ...StepStatus) int {
	n := 0
	for _, k := range r.Keys {
		for _, s := range k.Steps {
			for _, want := range statuses {
				if s.Status == want {
					n++
				}
			}
		}
	}
	return n
}

// Applied returns the number of steps applied in this run.
func (r *Report) Applied() int {
	return r.count(StepApplied)
}

// Failed returns the number of steps that failed, including those skipped
// on error.
func (r *Report) Failed() int {
	return r.count(StepFailed, StepSkippedOnError)
}

// Clean reports whether every step that was due ran successfully and every
// key with a file could be opened.
func (r *Report) Clean() bool {
	if r.Failed() > 0 {
		return false
	}
	for _, k := range r.Keys {
		if k.Status == KeyOpenFailed || k.Status == KeyCancelled {
			return false
		}
	}
	return true
}

// Key returns the result for key.
func (r *Report) Key(key string) (KeyResult, bool) {
	for _, k := range r.Keys {
		if k.Key == key {
			return k, true
		}
	}
	return KeyResult{}, false
}

// Summary returns a one-line description of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d key(s): %d applied, %d already applied, %d skipped on error, %d failed, %d not attempted",
		len(r.Keys),
		r.count(StepApplied),
		r.count(StepAlreadyApplied),
		r.count(StepSkippedOnError),
		r.count(StepFailed),
		r.count(StepNotAttempted),
	)
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(&b, "; %d manifest diagnostic(s)", len(r.Diagnostics))
	}
	return b.String()
}
