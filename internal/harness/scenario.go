package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orgadmin/internal/fixture"
)

// Scenario defines a scripted run against a fresh store.
// Fixtures seed the data, the flow invokes distribution and admin actions,
// and assertions check the trace and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixture is inline seed data.
	Fixture *fixture.Fixture `yaml:"fixture,omitempty"`

	// FixtureFile is a fixture file, relative to the scenario file when
	// loaded with LoadScenarioWithBasePath. Exclusive with Fixture.
	FixtureFile string `yaml:"fixture_file,omitempty"`

	// Clock is the fake clock's start time.
	Clock time.Time `yaml:"clock"`

	// Proposer is the paying organization. Default: points.DefaultProposer.
	Proposer string `yaml:"proposer,omitempty"`

	// RunID is the prefix of generated run IDs. Default: "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// AcademicYear is the year admin.refresh extends positions into.
	AcademicYear int `yaml:"academic_year,omitempty"`

	// Flow lists the steps to invoke, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, row_count.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep invokes one action and optionally validates its completion.
type FlowStep struct {
	// Invoke is the action name (e.g., "points.distribute", "admin.demote").
	Invoke string `yaml:"invoke"`

	// Args contains the action arguments.
	Args map[string]any `yaml:"args"`

	// Expect specifies the expected completion. If nil, the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected outcome ("Success", "AlreadyDistributed", ...).
	Case string `yaml:"case"`

	// Result is a subset match on the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an action appears in the trace with args
	// - "trace_order": actions appear in order
	// - "trace_count": an action appears exactly N times
	// - "final_state": exactly one row matches and has the expected values
	// - "row_count": exactly N rows match
	Type string `yaml:"type"`

	// Action is the action name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected action arguments (trace_contains).
	// Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Entity is the model queried (final_state, row_count).
	Entity string `yaml:"entity,omitempty"`

	// Where filters rows with lookup keys such as "person.name" or
	// "yqpoint__lte" (final_state, row_count).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect maps lookup keys to expected values (final_state).
	// Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count, row_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the fixture file relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.FixtureFile != "" && !filepath.IsAbs(scenario.FixtureFile) && basePath != "" {
		scenario.FixtureFile = filepath.Join(basePath, scenario.FixtureFile)
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

	if s.Clock.IsZero() {
		return fmt.Errorf("clock is required")
	}

	if s.Fixture != nil && s.FixtureFile != "" {
		return fmt.Errorf("fixture and fixture_file are mutually exclusive")
	}
	if s.Fixture != nil {
		if err := s.Fixture.Validate(); err != nil {
			return fmt.Errorf("fixture: %w", err)
		}
	}
	if s.FixtureFile != "" {
		if _, err := os.Stat(s.FixtureFile); os.IsNotExist(err) {
			return fmt.Errorf("fixture file not found: %s", s.FixtureFile)
		}
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if !knownAction(step.Invoke) {
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Invoke)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
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
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
