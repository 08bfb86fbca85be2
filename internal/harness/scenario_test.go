package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inlineFixture = `
fixture:
  org_types:
    - id: 1
      name: club
  organizations:
    - name: 元培学院
      username: yuanpei
      type: 1
      points: 100
  people:
    - name: Alice
      username: alice
  positions: []
`

// writeScenario writes content to a scenario file in a temp dir.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
clock: 2024-09-02T08:00:00Z
proposer: 元培学院
run_id: run
`+inlineFixture+`
flow:
  - invoke: admin.set_identity
    args:
      where: {name: Alice}
      identity: 1
  - invoke: points.distribute
    args: {type: 1}
    expect:
      case: NoActiveDistribution
assertions:
  - type: trace_contains
    action: admin.set_identity
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC), scenario.Clock)
	assert.Equal(t, "元培学院", scenario.Proposer)
	assert.Equal(t, "run", scenario.RunID)
	require.NotNil(t, scenario.Fixture)
	assert.Len(t, scenario.Fixture.People, 1)

	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, "admin.set_identity", scenario.Flow[0].Invoke)
	assert.Equal(t, map[string]any{"name": "Alice"}, scenario.Flow[0].Args["where"])
	assert.Equal(t, 1, scenario.Flow[0].Args["identity"])
	require.NotNil(t, scenario.Flow[1].Expect)
	assert.Equal(t, OutcomeNoActiveDistribution, scenario.Flow[1].Expect.Case)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing clock",
			content: `
name: n
description: d
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "clock is required",
		},
		{
			name: "missing flow",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "flow list is required",
		},
		{
			name: "missing assertions",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "missing invoke",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{args: {type: 1}}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "flow[0]: invoke is required",
		},
		{
			name: "unknown action",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: admin.fire_everyone}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: `flow[0]: unknown action "admin.fire_everyone"`,
		},
		{
			name: "expect without case",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick, expect: {result: {runs: []}}}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "flow[0].expect: case is required",
		},
		{
			name: "fixture and fixture file",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
fixture_file: campus.yaml
` + inlineFixture + `
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "missing fixture file",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
fixture_file: /nonexistent/campus.yaml
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "fixture file not found",
		},
		{
			name: "invalid inline fixture",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
fixture:
  people:
    - username: nameless
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "fixture:",
		},
		{
			name: "negative trace count",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: -1}]
`,
			wantErr: "count must be non-negative for trace_count",
		},
		{
			name: "final state without entity",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: final_state, expect: {yqpoint: 1}}]
`,
			wantErr: "entity is required for final_state",
		},
		{
			name: "final state without expect",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: final_state, entity: NaturalPerson}]
`,
			wantErr: "expect is required for final_state",
		},
		{
			name: "row count without entity",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: row_count, count: 1}]
`,
			wantErr: "entity is required for row_count",
		},
		{
			name: "trace order without actions",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_order}]
`,
			wantErr: "actions list is required for trace_order",
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: eventually}]
`,
			wantErr: `unknown assertion type "eventually"`,
		},
		{
			name: "unknown field",
			content: `
name: n
description: d
clock: 2024-09-02T08:00:00Z
specs: [cart.cue]
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`,
			wantErr: "failed to parse YAML",
		},
		{
			name:    "malformed yaml",
			content: "name: [unclosed",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_TraceCountZeroAllowed(t *testing.T) {
	path := writeScenario(t, `
name: n
description: d
clock: 2024-09-02T08:00:00Z
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: points.distribute, count: 0}]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 0, scenario.Assertions[0].Count)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	scenario, err := LoadScenarioWithBasePath("testdata/scenarios/weekly_distribution.yaml", "testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "fixtures", "campus.yaml"), scenario.FixtureFile)
}

func TestLoadScenarioWithBasePath_AbsoluteFixturePath(t *testing.T) {
	abs, err := filepath.Abs("testdata/fixtures/campus.yaml")
	require.NoError(t, err)

	path := writeScenario(t, `
name: n
description: d
clock: 2024-09-02T08:00:00Z
fixture_file: `+abs+`
flow: [{invoke: scheduler.tick}]
assertions: [{type: trace_count, action: scheduler.tick, count: 1}]
`)

	scenario, err := LoadScenarioWithBasePath(path, "/somewhere/else")
	require.NoError(t, err)
	assert.Equal(t, abs, scenario.FixtureFile)
}

func TestLoadScenario_RelativeFixtureWithoutBasePath(t *testing.T) {
	// Without a base path the fixture file resolves against the working
	// directory, where campus.yaml does not exist.
	_, err := LoadScenario("testdata/scenarios/weekly_distribution.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture file not found")
}

func TestActions_Sorted(t *testing.T) {
	names := Actions()
	assert.Contains(t, names, ActionDistribute)
	assert.Contains(t, names, "admin.demote")
	assert.IsIncreasing(t, names)
	for _, name := range names {
		assert.True(t, knownAction(name), name)
	}
	assert.False(t, knownAction("Cart.addItem"))
}
