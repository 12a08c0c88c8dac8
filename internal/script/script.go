// Package script runs YAML-described batches of mirror edits.
//
// A script is a list of steps applied in order to a session's mirror:
//
//	steps:
//	  - replace:
//	      contains: {url: wikipedia.org}
//	      field: title
//	      old: Wikipedia
//	      new: Wikikipedia
//	  - update:
//	      where: {guid: bkmedium0001}
//	      set: {title: "Read later"}
//	  - move:
//	      contains: {url: github.com}
//	      to: toolbar_____
//
// Applying a script only edits the mirror; committing is up to the caller.
package script

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/queryir"
	"github.com/roach88/foxmirror/internal/session"
)

// Step kinds.
const (
	KindUpdate  = "update"
	KindReplace = "replace"
	KindMove    = "move"
)

// Script is a parsed edit script.
type Script struct {
	// Description is free text shown in logs.
	Description string `yaml:"description,omitempty"`

	// Steps run in order. Exactly one field of each step is set.
	Steps []Step `yaml:"steps"`
}

// Step is one edit. Exactly one of Update, Replace or Move is set.
type Step struct {
	Update  *UpdateStep  `yaml:"update,omitempty"`
	Replace *ReplaceStep `yaml:"replace,omitempty"`
	Move    *MoveStep    `yaml:"move,omitempty"`
}

// Filter selects mirror rows. Where fields must be equal (null matches
// NULL); Contains fields must contain the substring, ignoring case.
// An empty filter matches every row.
type Filter struct {
	Where    map[string]any    `yaml:"where,omitempty"`
	Contains map[string]string `yaml:"contains,omitempty"`
}

// UpdateStep assigns literal values.
type UpdateStep struct {
	Filter `yaml:",inline"`
	Set    map[string]any `yaml:"set"`
}

// ReplaceStep substitutes text inside one field.
type ReplaceStep struct {
	Filter `yaml:",inline"`
	Field  string `yaml:"field"`
	Old    string `yaml:"old"`
	New    string `yaml:"new"`
}

// MoveStep re-parents matching nodes under a folder guid.
type MoveStep struct {
	Filter `yaml:",inline"`
	To     string `yaml:"to"`
}

// StepResult reports what one step did.
type StepResult struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Rows  int64  `json:"rows"`
}

// Load reads and parses a script file.
// Unknown fields are rejected so typos fail loudly.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// Parse parses a script from YAML bytes.
func Parse(data []byte) (*Script, error) {
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &s, nil
}

// Validate checks the shape of every step. Field names are checked later,
// against the mirror, when the step runs.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

// Kind returns the step's kind.
func (st Step) Kind() string {
	switch {
	case st.Update != nil:
		return KindUpdate
	case st.Replace != nil:
		return KindReplace
	case st.Move != nil:
		return KindMove
	default:
		return ""
	}
}

func (st Step) validate() error {
	set := 0
	for _, ok := range []bool{st.Update != nil, st.Replace != nil, st.Move != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of update, replace or move is required")
	}

	switch {
	case st.Update != nil:
		if len(st.Update.Set) == 0 {
			return fmt.Errorf("update: set is required")
		}
	case st.Replace != nil:
		if st.Replace.Field == "" {
			return fmt.Errorf("replace: field is required")
		}
		if st.Replace.Old == "" {
			return fmt.Errorf("replace: old is required")
		}
	case st.Move != nil:
		if st.Move.To == "" {
			return fmt.Errorf("move: to is required")
		}
	}
	return nil
}

// Predicate converts the filter to a query predicate.
func (f Filter) Predicate() (queryir.Predicate, error) {
	where := make(map[string]ir.Value, len(f.Where))
	for field, raw := range f.Where {
		v, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("where.%s: %w", field, err)
		}
		where[field] = v
	}

	fields := make([]string, 0, len(f.Contains))
	for field := range f.Contains {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	contains := make([]queryir.Predicate, 0, len(fields))
	for _, field := range fields {
		contains = append(contains, queryir.Contains{Field: field, Substring: f.Contains[field]})
	}

	return queryir.Conjoin(append([]queryir.Predicate{queryir.Where(where)}, contains...)...), nil
}

// Query converts an update step to a mirror update.
func (u UpdateStep) Query() (queryir.Update, error) {
	filter, err := u.Predicate()
	if err != nil {
		return queryir.Update{}, err
	}

	fields := make([]string, 0, len(u.Set))
	for field := range u.Set {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	assignments := make([]queryir.Assignment, 0, len(fields))
	for _, field := range fields {
		v, err := ir.FromAny(u.Set[field])
		if err != nil {
			return queryir.Update{}, fmt.Errorf("set.%s: %w", field, err)
		}
		assignments = append(assignments, queryir.Set{Field: field, Value: v})
	}
	return queryir.Update{Filter: filter, Assignments: assignments}, nil
}

// Query converts a replace step to a mirror update.
func (r ReplaceStep) Query() (queryir.Update, error) {
	filter, err := r.Predicate()
	if err != nil {
		return queryir.Update{}, err
	}
	return queryir.Update{
		Filter:      filter,
		Assignments: []queryir.Assignment{queryir.Replace{Field: r.Field, Old: r.Old, New: r.New}},
	}, nil
}

// Apply runs every step against the session's mirror, stopping at the first
// failure. Results for the steps that ran are returned either way.
func (s *Script) Apply(ctx context.Context, sess *session.Session) ([]StepResult, error) {
	results := make([]StepResult, 0, len(s.Steps))
	for i, step := range s.Steps {
		n, err := runStep(ctx, sess, step)
		if err != nil {
			return results, fmt.Errorf("steps[%d] (%s): %w", i, step.Kind(), err)
		}
		results = append(results, StepResult{Index: i, Kind: step.Kind(), Rows: n})
	}
	return results, nil
}

func runStep(ctx context.Context, sess *session.Session, step Step) (int64, error) {
	switch {
	case step.Update != nil:
		q, err := step.Update.Query()
		if err != nil {
			return 0, err
		}
		return sess.Update(ctx, q)
	case step.Replace != nil:
		q, err := step.Replace.Query()
		if err != nil {
			return 0, err
		}
		return sess.Update(ctx, q)
	case step.Move != nil:
		filter, err := step.Move.Predicate()
		if err != nil {
			return 0, err
		}
		return sess.Move(ctx, filter, step.Move.To)
	default:
		return 0, fmt.Errorf("empty step")
	}
}
