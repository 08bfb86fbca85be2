package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/orgadmin/internal/admin"
	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/fixture"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/points"
	"github.com/roach88/orgadmin/internal/store"
	"github.com/roach88/orgadmin/internal/testutil"
)

// Harness executes scenario steps against one store.
// It runs with a fake clock and fixed run IDs.
type Harness struct {
	store       *store.Store
	clock       *testutil.FakeClock
	distributor *points.Distributor
	scheduler   *points.Scheduler
	admin       *admin.Admin
	logger      *slog.Logger
	seq         int64
}

// Run executes a scenario with the built-in models.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Apply the fixture
//  3. Execute flow steps with expect validation
//  4. Evaluate assertions and collect the ledger
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	st, err := store.Open(":memory:", reg)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seed(ctx, st, scenario); err != nil {
		return nil, fmt.Errorf("failed to apply fixture: %w", err)
	}

	h := newHarness(st, scenario)

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if result.Ledger, err = ledger(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) *Harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewFakeClock(scenario.Clock)
	runIDs := testutil.NewFixedRunIDs(scenario.RunID)
	distributor := points.NewDistributor(st, scenario.Proposer,
		points.WithRunIDs(runIDs),
		points.WithLogger(logger),
	)
	return &Harness{
		store:       st,
		clock:       clock,
		distributor: distributor,
		scheduler:   points.NewScheduler(distributor, clock, logger),
		admin:       admin.New(st, logger, admin.WithAcademicYear(scenario.AcademicYear)),
		logger:      logger,
	}
}

func seed(ctx context.Context, st *store.Store, scenario *Scenario) error {
	f := scenario.Fixture
	if scenario.FixtureFile != "" {
		var err error
		if f, err = fixture.Load(scenario.FixtureFile); err != nil {
			return err
		}
	}
	if f == nil {
		return nil
	}
	_, err := f.Apply(ctx, st)
	return err
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step:
//  1. Records the invocation with its arguments
//  2. Runs the action against the store
//  3. Records the completion with its outcome and result
//  4. Compares outcome and result with the expect clause
//
// A step error is not a harness error: it becomes the completion's outcome.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		args, err := convertArgsToIRObject(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: failed to convert args: %w", i, err)
		}
		result.AddInvocationTrace(step.Invoke, args, h.next())

		compResult, stepErr := h.invoke(ctx, step.Invoke, step.Args)
		outcome := outcomeOf(stepErr)
		if stepErr != nil {
			compResult = ir.IRObject{"error": ir.IRString(stepErr.Error())}
		}
		result.AddCompletionTrace(step.Invoke, outcome, compResult, h.next())

		expectedCase := OutcomeSuccess
		if step.Expect != nil {
			expectedCase = step.Expect.Case
		}
		if outcome != expectedCase {
			msg := fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Invoke, expectedCase, outcome)
			if stepErr != nil {
				msg += ": " + stepErr.Error()
			}
			result.AddError(msg)
		} else if step.Expect != nil && step.Expect.Result != nil {
			expected, err := convertArgsToIRObject(step.Expect.Result)
			if err != nil {
				return fmt.Errorf("flow step %d: failed to convert expected result: %w", i, err)
			}
			if !matchArgs(compResult, expected) {
				result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Invoke, expected, compResult))
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"outcome", outcome,
		)
	}

	return nil
}

// next returns the next trace sequence number.
func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// convertArgsToIRObject converts YAML-parsed arguments to an ir.IRObject.
// Nulls and floats are rejected.
func convertArgsToIRObject(args map[string]any) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}

	result := make(ir.IRObject, len(args))
	for key, val := range args {
		if val == nil {
			return nil, fmt.Errorf("field %q: null values are forbidden", key)
		}
		irVal, err := ir.ValueOf(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}
