package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/orgadmin/internal/ir"
)

// Snapshot captures the trace and final ledger of a scenario execution.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Ledger       []ir.IRObject
}

// MarshalCanonical encodes the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.IRObject{
			"type": ir.IRString(event.Type),
			"seq":  ir.IRInt(event.Seq),
		}
		if event.Action != "" {
			obj["action"] = ir.IRString(event.Action)
		}
		if len(event.Args) > 0 {
			obj["args"] = event.Args
		}
		if event.Outcome != "" {
			obj["outcome"] = ir.IRString(event.Outcome)
		}
		if len(event.Result) > 0 {
			obj["result"] = event.Result
		}
		trace[i] = obj
	}

	ledger := make(ir.IRArray, len(s.Ledger))
	for i, t := range s.Ledger {
		ledger[i] = t
	}

	return ir.MarshalCanonical(ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
		"ledger":        ledger,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if scenario execution fails; a snapshot mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Ledger:       result.Ledger,
	}
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
