package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orgadmin/internal/fixture"
	"github.com/roach88/orgadmin/internal/ir"
)

var campusClock = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

func loadCampus(t *testing.T) *fixture.Fixture {
	t.Helper()
	f, err := fixture.Load("testdata/fixtures/campus.yaml")
	require.NoError(t, err)
	return f
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"weekly_distribution", "manager_reshuffle"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenarioWithBasePath("testdata/scenarios/"+name+".yaml", "testdata/scenarios")
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_TraceShape(t *testing.T) {
	scenario := &Scenario{
		Name:        "trace_shape",
		Description: "One distribution",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow: []FlowStep{
			{Invoke: ActionDistribute, Args: map[string]any{"type": 1}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Action: ActionDistribute},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, EventInvocation, result.Trace[0].Type)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, EventCompletion, result.Trace[1].Type)
	assert.Equal(t, OutcomeSuccess, result.Trace[1].Outcome)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
	assert.Equal(t, ir.IRString("test-run-1"), result.Trace[1].Result["run_id"])
	assert.Equal(t, ir.IRString("2024-09-02T08:00:00Z"), result.Trace[1].Result["run_at"])

	require.Len(t, result.Ledger, 2)
	for _, entry := range result.Ledger {
		assert.Equal(t, ir.IRInt(1), entry["proposer_id"])
	}
}

func TestRun_ToMemberAndRefresh(t *testing.T) {
	scenario := &Scenario{
		Name:         "member_refresh",
		Description:  "Managers step down, then every position carries into the next year",
		Fixture:      loadCampus(t),
		Clock:        campusClock,
		AcademicYear: 2025,
		Flow: []FlowStep{
			{
				Invoke: "admin.to_member",
				Args:   map[string]any{"where": map[string]any{"person.name": "Alice"}},
				Expect: &ExpectClause{Case: OutcomeSuccess, Result: map[string]any{"rows": 1}},
			},
			{
				Invoke: "admin.refresh",
				Args:   map[string]any{"where": map[string]any{"year": 2024}},
				Expect: &ExpectClause{Case: OutcomeSuccess, Result: map[string]any{"selected": 2, "rows": 2}},
			},
			{
				Invoke: "admin.refresh",
				Args:   map[string]any{"where": map[string]any{"year": 2024}},
				Expect: &ExpectClause{Case: OutcomeSuccess, Result: map[string]any{"rows": 0}},
			},
		},
		Assertions: []Assertion{
			{
				Type:   AssertFinalState,
				Entity: "Position",
				Where:  map[string]any{"person.name": "Alice", "year": 2025},
				Expect: map[string]any{"pos": 0, "is_admin": false},
			},
			{Type: AssertRowCount, Entity: "Position", Where: map[string]any{"year": 2025}, Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_outcome",
		Description: "First run is not a duplicate",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow: []FlowStep{
			{
				Invoke: ActionDistribute,
				Args:   map[string]any{"type": 1},
				Expect: &ExpectClause{Case: OutcomeAlreadyDistributed},
			},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: ActionDistribute, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected case AlreadyDistributed, got Success")
}

func TestRun_ResultMismatchFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "result_mismatch",
		Description: "Wrong total",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow: []FlowStep{
			{
				Invoke: ActionDistribute,
				Args:   map[string]any{"type": 1},
				Expect: &ExpectClause{Case: OutcomeSuccess, Result: map[string]any{"total": 16}},
			},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: ActionDistribute, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected result")
}

func TestRun_InsufficientBalance(t *testing.T) {
	f := loadCampus(t)
	f.Organizations[0].Points = 14

	scenario := &Scenario{
		Name:        "insufficient_balance",
		Description: "Proposer cannot cover the run",
		Fixture:     f,
		Clock:       campusClock,
		Flow: []FlowStep{
			{
				Invoke: ActionDistribute,
				Args:   map[string]any{"type": 1},
				Expect: &ExpectClause{Case: OutcomeInsufficientBalance},
			},
		},
		Assertions: []Assertion{
			{
				Type:   AssertFinalState,
				Entity: "NaturalPerson",
				Where:  map[string]any{"name": "Alice"},
				Expect: map[string]any{"yqpoint": 10},
			},
			{Type: AssertRowCount, Entity: "TransferRecord", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Ledger)
	assert.Contains(t, string(result.Trace[1].Result["error"].(ir.IRString)), "insufficient balance")
}

func TestRun_NoActiveDistribution(t *testing.T) {
	scenario := &Scenario{
		Name:        "no_active",
		Description: "Nothing biweekly is configured",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow: []FlowStep{
			{
				Invoke: ActionDistribute,
				Args:   map[string]any{"type": 2},
				Expect: &ExpectClause{Case: OutcomeNoActiveDistribution},
			},
			{
				Invoke: ActionRegister,
				Args:   map[string]any{"type": 2},
				Expect: &ExpectClause{Case: OutcomeNoActiveDistribution},
			},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: ActionRegister, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ScheduledDistribution(t *testing.T) {
	scenario := &Scenario{
		Name:        "scheduled",
		Description: "Weekly job fires once per week",
		Fixture:     loadCampus(t),
		Clock:       campusClock.Add(-time.Hour),
		RunID:       "sched",
		Flow: []FlowStep{
			{
				Invoke: ActionRegister,
				Args:   map[string]any{"type": 1},
				Expect: &ExpectClause{Case: OutcomeSuccess, Result: map[string]any{"next": "2024-09-02T08:00:00Z"}},
			},
			{Invoke: ActionTick},
			{Invoke: ActionAdvance, Args: map[string]any{"by": "1h"}},
			{Invoke: ActionTick},
			{Invoke: ActionTick},
			{Invoke: ActionAdvance, Args: map[string]any{"by": "168h"}},
			{Invoke: ActionTick},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: ActionTick, Count: 4},
			{Type: AssertRowCount, Entity: "TransferRecord", Count: 4},
			{
				Type:   AssertFinalState,
				Entity: "Organization",
				Where:  map[string]any{"oname": "元培学院"},
				Expect: map[string]any{"yqpoint": 970},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	runs := func(seq int) ir.IRArray {
		return result.Trace[seq].Result["runs"].(ir.IRArray)
	}
	assert.Empty(t, runs(3))
	require.Len(t, runs(7), 1)
	assert.Equal(t, ir.IRString("sched-1"), runs(7)[0].(ir.IRObject)["run_id"])
	assert.Empty(t, runs(9))
	require.Len(t, runs(13), 1)
	assert.Equal(t, ir.IRString("2024-09-09T08:00:00Z"), runs(13)[0].(ir.IRObject)["run_at"])
}

func TestRun_ClockCannotMoveBackwards(t *testing.T) {
	scenario := &Scenario{
		Name:        "clock_backwards",
		Description: "Negative advance is an error",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow: []FlowStep{
			{
				Invoke: ActionAdvance,
				Args:   map[string]any{"by": "-1h"},
				Expect: &ExpectClause{Case: OutcomeError},
			},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: ActionAdvance, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_FailingStateAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing_state",
		Description: "Alice was not paid twice",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow: []FlowStep{
			{Invoke: ActionDistribute, Args: map[string]any{"type": 1}},
		},
		Assertions: []Assertion{
			{
				Type:   AssertFinalState,
				Entity: "NaturalPerson",
				Where:  map[string]any{"name": "Alice"},
				Expect: map[string]any{"yqpoint": 20},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `"yqpoint" = 15`)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenarioWithBasePath("testdata/scenarios/weekly_distribution.yaml", "testdata/scenarios")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := (&Snapshot{ScenarioName: scenario.Name, Trace: first.Trace, Ledger: first.Ledger}).MarshalCanonical()
	require.NoError(t, err)
	b, err := (&Snapshot{ScenarioName: scenario.Name, Trace: second.Trace, Ledger: second.Ledger}).MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scenario := &Scenario{
		Name:        "cancelled",
		Description: "Cancelled before seeding",
		Fixture:     loadCampus(t),
		Clock:       campusClock,
		Flow:        []FlowStep{{Invoke: ActionTick}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Action: ActionTick, Count: 1}},
	}

	_, err := RunContext(ctx, scenario)
	assert.Error(t, err)
}

func TestConvertArgsToIRObject(t *testing.T) {
	obj, err := convertArgsToIRObject(map[string]any{
		"type":  1,
		"where": map[string]any{"name": "Alice", "activated": true},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), obj["type"])
	assert.Equal(t, ir.IRObject{"name": ir.IRString("Alice"), "activated": ir.IRBool(true)}, obj["where"])

	empty, err := convertArgsToIRObject(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = convertArgsToIRObject(map[string]any{"ratio": 0.5})
	assert.Error(t, err)

	_, err = convertArgsToIRObject(map[string]any{"missing": nil})
	assert.ErrorContains(t, err, "null values are forbidden")
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResult_AddTrace(t *testing.T) {
	result := NewResult()
	result.AddInvocationTrace(ActionTick, ir.IRObject{}, 1)
	result.AddCompletionTrace(ActionTick, OutcomeSuccess, ir.IRObject{"runs": ir.IRArray{}}, 2)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Type: EventInvocation, Action: ActionTick, Args: ir.IRObject{}, Seq: 1}, result.Trace[0])
	assert.Equal(t, OutcomeSuccess, result.Trace[1].Outcome)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
}
