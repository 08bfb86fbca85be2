package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/orgadmin/internal/admin"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/points"
	"github.com/roach88/orgadmin/internal/store"
)

// Step actions.
const (
	ActionDistribute = "points.distribute"
	ActionRegister   = "scheduler.register"
	ActionTick       = "scheduler.tick"
	ActionAdvance    = "clock.advance"
	ActionManagers   = "admin.managers"
)

// Outcomes of failed steps.
const (
	OutcomeAlreadyDistributed    = "AlreadyDistributed"
	OutcomeInsufficientBalance   = "InsufficientBalance"
	OutcomeNoActiveDistribution  = "NoActiveDistribution"
	OutcomeAmbiguousDistribution = "AmbiguousDistribution"
	OutcomeInvalidDistribution   = "InvalidDistribution"
	OutcomeError                 = "Error"
)

// outcomeOf maps a step error to its outcome case.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, points.ErrAlreadyDistributed):
		return OutcomeAlreadyDistributed
	case errors.Is(err, points.ErrInsufficientBalance):
		return OutcomeInsufficientBalance
	case errors.Is(err, points.ErrNoActiveDistribution):
		return OutcomeNoActiveDistribution
	case errors.Is(err, points.ErrAmbiguousDistribution):
		return OutcomeAmbiguousDistribution
	case errors.Is(err, points.ErrInvalidDistribution):
		return OutcomeInvalidDistribution
	default:
		return OutcomeError
	}
}

// action runs one flow step and returns its completion result.
type action func(h *Harness, ctx context.Context, args map[string]any) (ir.IRObject, error)

var actions = map[string]action{
	ActionDistribute: (*Harness).distribute,
	ActionRegister:   (*Harness).register,
	ActionTick:       (*Harness).tick,
	ActionAdvance:    (*Harness).advance,
	ActionManagers:   (*Harness).managers,
}

// adminPrefix namespaces the bulk admin actions in flow steps.
const adminPrefix = "admin."

// knownAction reports whether a flow step can invoke name.
func knownAction(name string) bool {
	if _, ok := actions[name]; ok {
		return true
	}
	_, ok := bulkAction(name)
	return ok
}

func bulkAction(name string) (admin.Action, bool) {
	short, ok := strings.CutPrefix(name, adminPrefix)
	if !ok {
		return admin.Action{}, false
	}
	return admin.LookupAction(short)
}

// Actions lists every invocable action name, sorted.
func Actions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	for _, name := range admin.ActionNames() {
		names = append(names, adminPrefix+name)
	}
	sort.Strings(names)
	return names
}

func (h *Harness) invoke(ctx context.Context, name string, args map[string]any) (ir.IRObject, error) {
	if fn, ok := actions[name]; ok {
		return fn(h, ctx, args)
	}
	if act, ok := bulkAction(name); ok {
		return h.bulk(ctx, act, args)
	}
	return nil, fmt.Errorf("unknown action %q", name)
}

// distribute runs the single active distribution of a type.
// Args: type (int), at (RFC 3339, default: clock now).
func (h *Harness) distribute(ctx context.Context, args map[string]any) (ir.IRObject, error) {
	typ, err := intArg("type", args["type"])
	if err != nil {
		return nil, err
	}
	at := h.clock.Now()
	if raw, ok := args["at"]; ok {
		if at, err = timeArg("at", raw); err != nil {
			return nil, err
		}
	}

	dist, err := points.Active(ctx, h.store, typ)
	if err != nil {
		return nil, err
	}

	res, err := h.distributor.Run(ctx, dist, at)
	if err != nil {
		return nil, err
	}
	return runResult(res), nil
}

// register schedules the active distribution of a type. Args: type (int).
func (h *Harness) register(ctx context.Context, args map[string]any) (ir.IRObject, error) {
	typ, err := intArg("type", args["type"])
	if err != nil {
		return nil, err
	}
	job, err := h.scheduler.Register(ctx, h.store, typ)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"job":  ir.IRString(job.ID),
		"next": ir.IRString(job.Next.UTC().Format(time.RFC3339)),
	}, nil
}

// tick runs every scheduled job that is due.
func (h *Harness) tick(ctx context.Context, _ map[string]any) (ir.IRObject, error) {
	results, err := h.scheduler.Tick(ctx)
	if err != nil {
		return nil, err
	}
	runs := make(ir.IRArray, len(results))
	for i, res := range results {
		runs[i] = runResult(res)
	}
	return ir.IRObject{"runs": runs}, nil
}

// advance moves the fake clock forward. Args: by (duration, e.g. "168h").
func (h *Harness) advance(_ context.Context, args map[string]any) (ir.IRObject, error) {
	raw, ok := args["by"].(string)
	if !ok {
		return nil, fmt.Errorf("by: expected a duration string, got %T", args["by"])
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("by: %w", err)
	}
	if d < 0 {
		return nil, fmt.Errorf("by: clock cannot move backwards")
	}
	h.clock.Advance(d)
	return ir.IRObject{"now": ir.IRString(h.clock.Now().UTC().Format(time.RFC3339))}, nil
}

// managers lists an organization's managers. Args: org (name).
func (h *Harness) managers(ctx context.Context, args map[string]any) (ir.IRObject, error) {
	name, ok := args["org"].(string)
	if !ok {
		return nil, fmt.Errorf("org: expected an organization name, got %T", args["org"])
	}
	org, err := h.store.OrganizationByName(ctx, name)
	if err != nil {
		return nil, err
	}
	groups, err := h.admin.Managers(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	out := make(ir.IRArray, len(groups))
	for i, g := range groups {
		names := make(ir.IRArray, len(g.Names))
		for j, n := range g.Names {
			names[j] = ir.IRString(n)
		}
		out[i] = ir.IRObject{"pos": ir.IRInt(g.Pos), "names": names}
	}
	return ir.IRObject{"groups": out}, nil
}

// bulk runs an admin action on the rows the where argument selects.
// Args: where (lookup map), plus the action's value argument.
func (h *Harness) bulk(ctx context.Context, act admin.Action, args map[string]any) (ir.IRObject, error) {
	var where map[string]any
	if raw, ok := args["where"]; ok {
		if where, ok = raw.(map[string]any); !ok {
			return nil, fmt.Errorf("where: expected a map, got %T", raw)
		}
	}
	var value any
	if act.Value != "" {
		value = args[act.Value]
	}

	res, err := h.admin.Bulk(ctx, act, where, value)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"filter":   ir.IRString(res.Filter),
		"selected": ir.IRInt(res.Selected),
		"rows":     ir.IRInt(res.Rows),
	}, nil
}

func runResult(res points.Result) ir.IRObject {
	return ir.IRObject{
		"run_id":          ir.IRString(res.RunID),
		"distribution_id": ir.IRInt(res.DistributionID),
		"run_at":          ir.IRString(res.RunAt.UTC().Format(time.RFC3339)),
		"persons":         ir.IRInt(res.Persons),
		"organizations":   ir.IRInt(res.Organizations),
		"total":           ir.IRInt(res.Total),
	}
}

// ledger returns the transfer records, ordered by id.
func ledger(ctx context.Context, s *store.Store) ([]ir.IRObject, error) {
	transfers, err := s.Transfers(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(transfers, func(i, j int) bool { return transfers[i].ID < transfers[j].ID })

	out := make([]ir.IRObject, len(transfers))
	for i, t := range transfers {
		out[i] = ir.IRObject{
			"id":             ir.IRString(t.ID),
			"proposer_id":    ir.IRInt(t.ProposerID),
			"recipient_id":   ir.IRInt(t.RecipientID),
			"recipient_kind": ir.IRString(t.RecipientKind),
			"amount":         ir.IRInt(t.Amount),
			"start_time":     ir.IRString(t.StartTime),
			"message":        ir.IRString(t.Message),
		}
	}
	return out, nil
}

func intArg(name string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s: expected an integer, got %T", name, v)
	}
}

func timeArg(name string, v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", name, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("%s: expected an RFC 3339 time, got %T", name, v)
	}
}
