package migration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/sqlitestore/internal/store"
)

// testEnv is a registry of databases in a temp directory.
type testEnv struct {
	t   *testing.T
	dir string
	reg *store.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := store.NewRegistry()
	t.Cleanup(func() { reg.CloseAll() })
	return &testEnv{t: t, dir: t.TempDir(), reg: reg}
}

// add registers key. When create is set the file is created empty.
func (e *testEnv) add(key string, create bool) string {
	e.t.Helper()
	path := filepath.Join(e.dir, key+".db")
	if err := e.reg.Register(store.Registration{Key: key, Path: path}); err != nil {
		e.t.Fatalf("Register() error = %v", err)
	}
	if create {
		c, err := store.Open(store.Config{Path: path, Create: true})
		if err != nil {
			e.t.Fatalf("Open() error = %v", err)
		}
		if err := c.Execute("PRAGMA user_version = 0"); err != nil {
			e.t.Fatalf("Execute() error = %v", err)
		}
		c.Close()
	}
	return path
}

func (e *testEnv) apply(manifest string, opts ...Option) *Report {
	e.t.Helper()
	return NewRunner(e.reg, opts...).Apply(context.Background(), strings.NewReader(manifest), FormatJSON)
}

// conn opens key for inspection.
func (e *testEnv) conn(key string) *store.Conn {
	e.t.Helper()
	c, err := e.reg.Open(key, true)
	if err != nil {
		e.t.Fatalf("Open(%s) error = %v", key, err)
	}
	e.t.Cleanup(func() { c.Close() })
	return c
}

func (e *testEnv) userVersion(key string) int64 {
	e.t.Helper()
	v, err := e.conn(key).UserVersion()
	if err != nil {
		e.t.Fatalf("UserVersion() error = %v", err)
	}
	return v
}

func (e *testEnv) tableExists(key, table string) bool {
	e.t.Helper()
	_, ok := store.Scalar[int64](e.conn(key), "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", store.Positional{table})
	return ok
}

func stepStatuses(t *testing.T, r *Report, key string) []StepStatus {
	t.Helper()
	kr, ok := r.Key(key)
	if !ok {
		t.Fatalf("report has no key %q", key)
	}
	out := make([]StepStatus, len(kr.Steps))
	for i, s := range kr.Steps {
		out[i] = s.Status
	}
	return out
}

func equalStatuses(a, b []StepStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const basicManifest = `{"main": {"versions": {"1": {"commands": ["CREATE TABLE t (x INTEGER)"]}}}}`

func TestApply_FreshDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	report := env.apply(basicManifest)

	if got := stepStatuses(t, report, "main"); !equalStatuses(got, []StepStatus{StepApplied}) {
		t.Fatalf("statuses = %v, want [applied]", got)
	}
	if v := env.userVersion("main"); v != 1 {
		t.Errorf("user_version = %d, want 1", v)
	}
	if !env.tableExists("main", "t") {
		t.Error("table t not created")
	}

	kr, _ := report.Key("main")
	if kr.Status != KeyCompleted || kr.VersionBefore != 0 || kr.VersionAfter != 1 {
		t.Errorf("key result = %+v", kr)
	}
	if report.RunID == "" || report.FinishedAt.Before(report.StartedAt) {
		t.Errorf("report metadata = %q %v %v", report.RunID, report.StartedAt, report.FinishedAt)
	}
	if !report.Clean() || report.Applied() != 1 {
		t.Errorf("Clean() = %v, Applied() = %d", report.Clean(), report.Applied())
	}
}

func TestApply_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)
	manifest := `{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t (x INTEGER)"]},
		"2": {"commands": ["INSERT INTO t VALUES (1)"]}
	}}}`

	env.apply(manifest)
	second := env.apply(manifest)

	if got := stepStatuses(t, second, "main"); !equalStatuses(got, []StepStatus{StepAlreadyApplied, StepAlreadyApplied}) {
		t.Errorf("second run statuses = %v, want all already-applied", got)
	}
	if second.Applied() != 0 {
		t.Errorf("second run Applied() = %d, want 0", second.Applied())
	}
	if v := env.userVersion("main"); v != 2 {
		t.Errorf("user_version = %d, want 2", v)
	}
	if n, _ := store.Scalar[int64](env.conn("main"), "SELECT COUNT(*) FROM t", nil); n != 1 {
		t.Errorf("rows = %d, want 1 (version 2 ran once)", n)
	}
}

func TestApply_FailureStopsKey(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)
	manifest := `{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t (x INTEGER)"]},
		"2": {"commands": ["INSERT INTO t VALUES (1)", "INSERT INTO missing VALUES (1)"]},
		"3": {"commands": ["INSERT INTO t VALUES (3)"]}
	}}}`

	report := env.apply(manifest)

	want := []StepStatus{StepApplied, StepFailed, StepNotAttempted}
	if got := stepStatuses(t, report, "main"); !equalStatuses(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if v := env.userVersion("main"); v != 1 {
		t.Errorf("user_version = %d, want 1", v)
	}
	if n, _ := store.Scalar[int64](env.conn("main"), "SELECT COUNT(*) FROM t", nil); n != 0 {
		t.Errorf("rows = %d, want 0 (version 2 rolled back)", n)
	}

	kr, _ := report.Key("main")
	if kr.Status != KeyAborted {
		t.Errorf("key status = %s, want %s", kr.Status, KeyAborted)
	}
	failed := kr.Steps[1]
	if failed.Executed != 1 || failed.Commands != 2 || !strings.Contains(failed.Reason, "command 2") {
		t.Errorf("failed step = %+v", failed)
	}
	if report.Failed() != 1 || report.Clean() {
		t.Errorf("Failed() = %d, Clean() = %v", report.Failed(), report.Clean())
	}

	// A rerun retries version 2.
	rerun := env.apply(manifest)
	want = []StepStatus{StepAlreadyApplied, StepFailed, StepNotAttempted}
	if got := stepStatuses(t, rerun, "main"); !equalStatuses(got, want) {
		t.Errorf("rerun statuses = %v, want %v", got, want)
	}
}

func TestApply_SkipOnError(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)
	manifest := `{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t (x INTEGER)"]},
		"2": {"commands": ["INSERT INTO t VALUES (1)", "INSERT INTO missing VALUES (1)"], "skipOnError": true},
		"3": {"commands": ["INSERT INTO t VALUES (3)"]}
	}}}`

	report := env.apply(manifest)

	want := []StepStatus{StepApplied, StepSkippedOnError, StepApplied}
	if got := stepStatuses(t, report, "main"); !equalStatuses(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if v := env.userVersion("main"); v != 3 {
		t.Errorf("user_version = %d, want 3", v)
	}
	if n, _ := store.Scalar[int64](env.conn("main"), "SELECT COUNT(*) FROM t", nil); n != 1 {
		t.Errorf("rows = %d, want 1 (only version 3's insert)", n)
	}
	if report.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", report.Failed())
	}

	rerun := env.apply(manifest)
	want = []StepStatus{StepAlreadyApplied, StepAlreadyApplied, StepAlreadyApplied}
	if got := stepStatuses(t, rerun, "main"); !equalStatuses(got, want) {
		t.Errorf("rerun statuses = %v, want %v", got, want)
	}
}

func TestApply_MissingKeys(t *testing.T) {
	env := newTestEnv(t)
	path := env.add("absent", false)
	env.add("main", true)
	manifest := `{
		"absent":     {"versions": {"1": {"commands": ["CREATE TABLE t (x)"]}}},
		"unknown":    {"versions": {"1": {"commands": ["CREATE TABLE t (x)"]}}},
		"main":       {"versions": {"1": {"commands": ["CREATE TABLE t (x)"]}}}
	}`

	report := env.apply(manifest)

	for _, key := range []string{"absent", "unknown"} {
		kr, ok := report.Key(key)
		if !ok || kr.Status != KeyMissing {
			t.Errorf("%s result = %+v, want key-missing", key, kr)
		}
		if got := stepStatuses(t, report, key); !equalStatuses(got, []StepStatus{StepNotAttempted}) {
			t.Errorf("%s statuses = %v, want [not-attempted]", key, got)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("missing database file was created: %v", err)
	}
	if got := stepStatuses(t, report, "main"); !equalStatuses(got, []StepStatus{StepApplied}) {
		t.Errorf("main statuses = %v, want [applied]", got)
	}
	if report.Failed() != 0 || !report.Clean() {
		t.Errorf("Failed() = %d, Clean() = %v; missing keys are not failures", report.Failed(), report.Clean())
	}
}

func TestApply_FailureInOneKeyContinuesOthers(t *testing.T) {
	env := newTestEnv(t)
	env.add("a", true)
	env.add("b", true)
	manifest := `{
		"a": {"order": 1, "versions": {"1": {"commands": ["BROKEN SQL"]}}},
		"b": {"order": 2, "versions": {"1": {"commands": ["CREATE TABLE t (x)"]}}}
	}`

	report := env.apply(manifest)

	if report.Keys[0].Key != "a" || report.Keys[1].Key != "b" {
		t.Fatalf("key order = %s, %s; want a, b", report.Keys[0].Key, report.Keys[1].Key)
	}
	if report.Keys[0].Status != KeyAborted || report.Keys[1].Status != KeyCompleted {
		t.Errorf("key statuses = %s, %s", report.Keys[0].Status, report.Keys[1].Status)
	}
	if v := env.userVersion("b"); v != 1 {
		t.Errorf("b user_version = %d, want 1", v)
	}
}

func TestApply_StepAttachments(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)
	env.add("ref", true)
	env.add("gone", false)

	c, err := env.reg.Open("ref", false)
	if err != nil {
		t.Fatalf("Open(ref) error = %v", err)
	}
	if err := c.Execute("CREATE TABLE seed (v INTEGER); INSERT INTO seed VALUES (7)"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	c.Close()

	manifest := `{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t AS SELECT v FROM ref.seed"], "attachments": ["ref"]},
		"2": {"commands": ["SELECT 1"], "attachments": ["gone"], "skipOnError": true},
		"3": {"commands": ["SELECT 1"]}
	}}}`

	report := env.apply(manifest)

	want := []StepStatus{StepApplied, StepFailed, StepNotAttempted}
	if got := stepStatuses(t, report, "main"); !equalStatuses(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if v, _ := store.Scalar[int64](env.conn("main"), "SELECT v FROM t", nil); v != 7 {
		t.Errorf("copied value = %d, want 7", v)
	}
	kr, _ := report.Key("main")
	if !strings.Contains(kr.Steps[1].Reason, ErrAttachmentMissing.Error()) {
		t.Errorf("reason = %q, want attachment missing", kr.Steps[1].Reason)
	}
	if v := env.userVersion("main"); v != 1 {
		t.Errorf("user_version = %d, want 1", v)
	}
}

func TestApply_RegisteredAttachments(t *testing.T) {
	env := newTestEnv(t)
	env.add("ref", true)
	mainPath := filepath.Join(env.dir, "main.db")
	err := env.reg.Register(store.Registration{Key: "main", Path: mainPath, Attachments: map[string]string{"lookup": "ref"}})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	c, err := store.Open(store.Config{Path: mainPath, Create: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	c.Execute("PRAGMA user_version = 0")
	c.Close()

	report := env.apply(`{"main": {"versions": {"1": {"commands": ["CREATE TABLE lookup.codes (c TEXT)"]}}}}`)

	if got := stepStatuses(t, report, "main"); !equalStatuses(got, []StepStatus{StepApplied}) {
		t.Fatalf("statuses = %v, want [applied]", got)
	}
	if !env.tableExists("ref", "codes") {
		t.Error("table not created in attached database")
	}
}

func TestApply_Vacuum(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	report := env.apply(`{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t (x)"], "vacuum": true}
	}}}`)

	kr, _ := report.Key("main")
	if len(kr.Steps) != 1 || !kr.Steps[0].Vacuumed {
		t.Errorf("step = %+v, want vacuumed", kr.Steps)
	}
}

func TestApply_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewRunner(env.reg).Apply(ctx, strings.NewReader(basicManifest), FormatJSON)

	kr, _ := report.Key("main")
	if kr.Status != KeyCancelled {
		t.Errorf("key status = %s, want cancelled", kr.Status)
	}
	if len(kr.Steps) != 1 || kr.Steps[0].Status != StepNotAttempted || kr.Steps[0].Reason != "cancelled" {
		t.Errorf("steps = %+v, want one not-attempted (cancelled)", kr.Steps)
	}
	if v := env.userVersion("main"); v != 0 {
		t.Errorf("user_version = %d, want 0", v)
	}
}

func TestApply_CancelledBetweenSteps(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook := func(sr StepResult) {
		if sr.Version == 1 {
			cancel()
		}
	}

	report := NewRunner(env.reg, WithStepHook(hook)).Apply(ctx, strings.NewReader(`{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t (x)"]},
		"2": {"commands": ["INSERT INTO t VALUES (1)"]}
	}}}`), FormatJSON)

	want := []StepStatus{StepApplied, StepNotAttempted}
	if got := stepStatuses(t, report, "main"); !equalStatuses(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if v := env.userVersion("main"); v != 1 {
		t.Errorf("user_version = %d, want 1", v)
	}
}

func TestApply_InvalidManifest(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	report := env.apply(`{"main": `)

	if len(report.Keys) != 0 {
		t.Errorf("Keys = %+v, want none", report.Keys)
	}
	if len(report.Diagnostics) != 1 || !strings.Contains(report.Diagnostics[0].Message, ErrInvalidManifest.Error()) {
		t.Errorf("Diagnostics = %v, want one invalid manifest entry", report.Diagnostics)
	}
}

func TestApply_DiagnosticsCarried(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	report := env.apply(`{"main": {"versions": {
		"1": {"commands": ["CREATE TABLE t (x)"]},
		"2": {},
		"3": {"commands": ["CREATE TABLE u (x)"]}
	}}}`)

	if got := stepStatuses(t, report, "main"); !equalStatuses(got, []StepStatus{StepApplied}) {
		t.Errorf("statuses = %v, want [applied]", got)
	}
	if len(report.Diagnostics) == 0 {
		t.Error("Diagnostics empty, want the dropped version 2")
	}
	if env.tableExists("main", "u") {
		t.Error("version 3 applied after a malformed version 2")
	}
}

func TestApplyFile_YAML(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	path := filepath.Join(env.dir, "manifest.yaml")
	manifest := "main:\n  versions:\n    1:\n      commands:\n        - CREATE TABLE t (x)\n"
	if err := os.WriteFile(path, []byte(manifest), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	report := NewRunner(env.reg).ApplyFile(context.Background(), path)
	if report.Applied() != 1 {
		t.Errorf("Applied() = %d, want 1 (%s)", report.Applied(), report.Summary())
	}

	missing := NewRunner(env.reg).ApplyFile(context.Background(), filepath.Join(env.dir, "nope.json"))
	if len(missing.Diagnostics) != 1 || len(missing.Keys) != 0 {
		t.Errorf("missing manifest report = %+v", missing)
	}
}

func TestApply_HooksSeeEveryStep(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)

	var seen []StepResult
	env.apply(`{
		"main":    {"versions": {"1": {"commands": ["CREATE TABLE t (x)"]}, "2": {"commands": ["BAD"]}, "3": {"commands": []}}},
		"unknown": {"versions": {"1": {"commands": []}}}
	}`, WithStepHook(func(sr StepResult) { seen = append(seen, sr) }))

	if len(seen) != 4 {
		t.Fatalf("hook saw %d results, want 4: %+v", len(seen), seen)
	}
}

func TestReport_Summary(t *testing.T) {
	r := &Report{Keys: []KeyResult{{
		Key: "main",
		Steps: []StepResult{
			{Status: StepApplied},
			{Status: StepSkippedOnError},
			{Status: StepFailed},
			{Status: StepNotAttempted},
		},
	}}, Diagnostics: []Diagnostic{{Message: "x"}}}

	want := "1 key(s): 1 applied, 0 already applied, 1 skipped on error, 1 failed, 1 not attempted; 1 manifest diagnostic(s)"
	if got := r.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
	if r.Failed() != 2 {
		t.Errorf("Failed() = %d, want 2", r.Failed())
	}
	if len(r.Steps()) != 4 {
		t.Errorf("len(Steps()) = %d, want 4", len(r.Steps()))
	}
}

func TestRunner_OpenFailureReported(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "notadb.db")
	if err := os.WriteFile(path, []byte("this is not a database file, just text padding it out"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := env.reg.Register(store.Registration{Key: "main", Path: path}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	report := env.apply(basicManifest)

	kr, _ := report.Key("main")
	if kr.Status != KeyOpenFailed {
		t.Errorf("key status = %s, want open-failed", kr.Status)
	}
	if report.Clean() {
		t.Error("Clean() = true with an unopenable database")
	}
}

func TestApplyStep_VersionReadBackMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.add("main", true)
	conn := env.conn("main")

	step := Step{Key: "main", Version: 1<<32 + 1, Commands: []string{"CREATE TABLE t (x)"}}
	sr := NewRunner(env.reg).applyStep(conn, step)

	if sr.Status != StepFailed {
		t.Fatalf("status = %s, want failed", sr.Status)
	}
	if !strings.Contains(sr.Reason, ErrVersionMismatch.Error()) {
		t.Errorf("reason = %q, want version mismatch", sr.Reason)
	}
}
