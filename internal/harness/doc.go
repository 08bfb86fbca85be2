// Package harness runs scripted scenarios against a fresh organization
// store.
//
// A scenario seeds a fixture, invokes distribution, scheduler and admin
// actions in order, and checks the resulting trace and rows.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: weekly_distribution
//	description: "What this scenario validates"
//	clock: 2024-09-02T08:00:00Z
//	fixture_file: ../fixtures/campus.yaml
//	flow:
//	  - invoke: points.distribute
//	    args: { type: 1 }
//	    expect:
//	      case: Success
//	      result: { total: 15 }
//	  - invoke: admin.demote
//	    args:
//	      where: { person.name: Bob }
//	assertions:
//	  - type: trace_count
//	    action: points.distribute
//	    count: 1
//	  - type: final_state
//	    entity: NaturalPerson
//	    where: { person_id.username: alice }
//	    expect: { yqpoint: 15 }
//
// Where and expect keys are lookup chains: dotted field names that follow
// relations from the entity, with an optional operator suffix such as
// "yqpoint__lte". See package lookup.
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: exactly one row matches and holds the expected values
//   - row_count: exactly N distinct rows match
//
// # Deterministic Testing
//
// Each scenario runs in its own in-memory SQLite database with a fake clock
// starting at the scenario's clock and run IDs drawn from a fixed sequence.
// Transfer IDs and filter fingerprints are content hashes, so traces and
// ledgers are identical across runs and can be compared with golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenarioWithBasePath(path, filepath.Dir(path))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        fmt.Println(msg)
//	    }
//	}
//
// In tests, RunWithGolden also compares the trace and ledger against
// testdata/golden/{name}.golden.
package harness
