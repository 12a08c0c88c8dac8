package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/foxmirror/internal/script"
)

// Fixture names.
const (
	FixtureStandard = "standard"
	FixtureEmpty    = "empty"
)

// Scenario defines a conformance test scenario.
// A scenario edits the mirror of a known Places fixture and asserts on the
// resulting trace and on the origin database afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixture selects the starting database: "standard" (default) or "empty".
	Fixture string `yaml:"fixture,omitempty"`

	// Options configure the session.
	Options Options `yaml:"options,omitempty"`

	// Setup holds SQL statements run against the origin before connecting.
	// They adjust the fixture (extra rows, triggers that make a commit fail).
	Setup []string `yaml:"setup,omitempty"`

	// Steps are script steps applied to the mirror in order.
	Steps []script.Step `yaml:"steps,omitempty"`

	// Commit writes the mirror back after the steps.
	Commit bool `yaml:"commit,omitempty"`

	// Restore, when set, restores the snapshot at this index last.
	Restore *int `yaml:"restore,omitempty"`

	// ExpectError is the error code the run must stop with, if any.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Options mirror the session options a scenario may set.
type Options struct {
	BatchSize     int  `yaml:"batch_size,omitempty"`
	WriteFrecency bool `yaml:"write_frecency,omitempty"`
	ReadOnly      bool `yaml:"read_only,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an event appears with matching details
	// - "trace_order": Check events appear in order
	// - "trace_count": Check an event appears exactly N times
	// - "final_state": Query an origin table and verify expected values
	Type string `yaml:"type"`

	// Action is the event type (used by trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected event details (used by trace_contains).
	// Subset match - only specified fields are validated.
	Args map[string]any `yaml:"args,omitempty"`

	// Table is the origin table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected event order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Fixture == "" {
		scenario.Fixture = FixtureStandard
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Fixture {
	case FixtureStandard, FixtureEmpty:
	default:
		return fmt.Errorf("unknown fixture %q (want %s or %s)", s.Fixture, FixtureStandard, FixtureEmpty)
	}

	if s.Options.BatchSize < 0 {
		return fmt.Errorf("options.batch_size must be non-negative")
	}

	for i, stmt := range s.Setup {
		if stmt == "" {
			return fmt.Errorf("setup[%d]: statement is empty", i)
		}
	}

	if len(s.Steps) > 0 {
		sc := script.Script{Steps: s.Steps}
		if err := sc.Validate(); err != nil {
			return err
		}
	}

	if s.Restore != nil && *s.Restore < 0 {
		return fmt.Errorf("restore index must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
