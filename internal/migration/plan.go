package migration

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Step is one version of one logical database.
type Step struct {
	// Key is the logical database the step belongs to.
	Key string `json:"key"`

	// Version is the user_version the database reaches once the step is done.
	Version int64 `json:"version"`

	// Commands run in order inside one transaction.
	Commands []string `json:"commands"`

	// Attachments are keys of other databases attached before the commands
	// run, each under its own key as the schema alias.
	Attachments []string `json:"attachments,omitempty"`

	// Vacuum runs VACUUM after user_version has been advanced.
	Vacuum bool `json:"vacuum,omitempty"`

	// SkipOnError advances user_version even when a command fails.
	SkipOnError bool `json:"skipOnError,omitempty"`
}

// KeyPlan is the ordered step list of one logical database.
type KeyPlan struct {
	Key   string `json:"key"`
	Order int64  `json:"order"`
	Steps []Step `json:"steps"`
}

// Plan is a validated manifest: keys in run order, each with its steps in
// ascending version order, plus everything dropped while parsing.
type Plan struct {
	Keys        []KeyPlan    `json:"keys"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Diagnostic records a manifest entry that was dropped or defaulted.
type Diagnostic struct {
	Key     string `json:"key,omitempty"`
	Version string `json:"version,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	switch {
	case d.Key == "":
		return d.Message
	case d.Version == "":
		return d.Key + ": " + d.Message
	default:
		return d.Key + " v" + d.Version + ": " + d.Message
	}
}

// StepCount returns the number of steps across all keys.
func (p *Plan) StepCount() int {
	n := 0
	for _, k := range p.Keys {
		n += len(k.Steps)
	}
	return n
}

// Parse decodes a manifest and validates it into a Plan.
//
// Only an undecodable document is an error (ErrInvalidManifest). Malformed
// entries inside a well-formed document are dropped and recorded in
// Plan.Diagnostics.
func Parse(r io.Reader, format Format) (*Plan, error) {
	doc, err := decode(r, format)
	if err != nil {
		return nil, err
	}
	return buildPlan(doc), nil
}

// ParseFile reads the manifest at path, choosing the format from its
// extension.
func ParseFile(path string) (*Plan, error) {
	f, err := os.Open(path) //nolint:gosec // Manifest path comes from trusted config or CLI
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	return Parse(f, FormatForPath(path))
}

func buildPlan(doc map[string]any) *Plan {
	p := &Plan{}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if kp, ok := p.buildKey(key, doc[key]); ok {
			p.Keys = append(p.Keys, kp)
		}
	}

	sort.SliceStable(p.Keys, func(i, j int) bool {
		if p.Keys[i].Order != p.Keys[j].Order {
			return p.Keys[i].Order < p.Keys[j].Order
		}
		return p.Keys[i].Key < p.Keys[j].Key
	})
	return p
}

func (p *Plan) diag(key, version, format string, args ...any) {
	p.Diagnostics = append(p.Diagnostics, Diagnostic{
		Key:     key,
		Version: version,
		Message: fmt.Sprintf(format, args...),
	})
}

// candidate is a version entry whose id parsed as a positive integer.
type candidate struct {
	id      string
	version int64
	raw     any
}

func (p *Plan) buildKey(key string, raw any) (KeyPlan, bool) {
	entry, ok := raw.(map[string]any)
	if !ok {
		p.diag(key, "", "entry is not an object, key ignored")
		return KeyPlan{}, false
	}

	kp := KeyPlan{Key: key}
	if v, present := entry["order"]; present {
		if n, ok := asInt(v); ok {
			kp.Order = n
		} else {
			p.diag(key, "", "order is not an integer, using 0")
		}
	}

	versions, ok := entry["versions"].(map[string]any)
	if !ok {
		p.diag(key, "", "versions missing or not an object, key ignored")
		return KeyPlan{}, false
	}

	cands := make([]candidate, 0, len(versions))
	for id, v := range versions {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil || n <= 0 {
			p.diag(key, id, "version id is not a positive integer, dropped")
			continue
		}
		if n > math.MaxInt32 {
			p.diag(key, id, "version id exceeds the 32-bit user_version range, dropped")
			continue
		}
		cands = append(cands, candidate{id: id, version: n, raw: v})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].version != cands[j].version {
			return cands[i].version < cands[j].version
		}
		// Canonical spelling ("1" before "01") wins a duplicate.
		if len(cands[i].id) != len(cands[j].id) {
			return len(cands[i].id) < len(cands[j].id)
		}
		return cands[i].id < cands[j].id
	})

	seen := make(map[int64]string, len(cands))
	for i, c := range cands {
		if prev, dup := seen[c.version]; dup {
			p.diag(key, c.id, "duplicates version %q, dropped", prev)
			continue
		}

		step, ok := p.buildStep(key, c)
		if !ok {
			if rest := len(cands) - i - 1; rest > 0 {
				p.diag(key, c.id, "%d later version(s) not loaded", rest)
			}
			break
		}
		seen[c.version] = c.id
		kp.Steps = append(kp.Steps, step)
	}

	return kp, true
}

func (p *Plan) buildStep(key string, c candidate) (Step, bool) {
	fields, ok := c.raw.(map[string]any)
	if !ok {
		p.diag(key, c.id, "version entry is not an object")
		return Step{}, false
	}

	commands, ok := asStrings(fields["commands"])
	if !ok {
		p.diag(key, c.id, "commands missing or not a list of strings")
		return Step{}, false
	}

	step := Step{Key: key, Version: c.version, Commands: commands}

	if v, present := fields["attachments"]; present {
		if attachments, ok := asStrings(v); ok {
			step.Attachments = attachments
		} else {
			p.diag(key, c.id, "attachments is not a list of strings, ignored")
		}
	}
	if v, present := fields["vacuum"]; present {
		if b, ok := asBool(v); ok {
			step.Vacuum = b
		} else {
			p.diag(key, c.id, "vacuum is not a boolean, using false")
		}
	}
	if v, present := fields["skipOnError"]; present {
		if b, ok := asBool(v); ok {
			step.SkipOnError = b
		} else {
			p.diag(key, c.id, "skipOnError is not a boolean, using false")
		}
	}

	return step, true
}
