package admin

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/lookup"
	"github.com/roach88/orgadmin/internal/queryir"
)

// Action is a bulk action that can be selected by name.
type Action struct {
	Name string
	// Entity is the model whose rows the action takes.
	Entity string
	// Value names the action's required argument. Empty if it takes none.
	Value string
	run   func(a *Admin, ctx context.Context, sel selection, value any) (int64, error)
}

// BulkResult describes one bulk run.
type BulkResult struct {
	// Filter is the fingerprint of the selection.
	Filter   string
	Selected int
	Rows     int64
}

var bulkActions = map[string]Action{
	"set_identity": {Entity: catalog.NaturalPerson, Value: "identity", run: func(a *Admin, ctx context.Context, sel selection, v any) (int64, error) {
		n, err := intValue("identity", v)
		if err != nil {
			return 0, err
		}
		return a.setIdentity(ctx, sel, n)
	}},
	"set_graduation": {Entity: catalog.NaturalPerson, Value: "status", run: func(a *Admin, ctx context.Context, sel selection, v any) (int64, error) {
		n, err := intValue("status", v)
		if err != nil {
			return 0, err
		}
		return a.setGraduation(ctx, sel, n)
	}},
	"set_activated": {Entity: catalog.Organization, Value: "activated", run: func(a *Admin, ctx context.Context, sel selection, v any) (int64, error) {
		b, err := boolValue("activated", v)
		if err != nil {
			return 0, err
		}
		return a.assign(ctx, catalog.Organization, sel, "activated", b)
	}},
	"set_admin": {Entity: catalog.Position, Value: "is_admin", run: func(a *Admin, ctx context.Context, sel selection, v any) (int64, error) {
		b, err := boolValue("is_admin", v)
		if err != nil {
			return 0, err
		}
		return a.assign(ctx, catalog.Position, sel, "is_admin", b)
	}},
	"demote":               {Entity: catalog.Position, run: (*Admin).demote},
	"promote":              {Entity: catalog.Position, run: (*Admin).promote},
	"to_manager":           {Entity: catalog.Position, run: (*Admin).bulkToManager},
	"to_member":            {Entity: catalog.Position, run: (*Admin).bulkToMember},
	"refresh":              {Entity: catalog.Position, run: (*Admin).bulkRefresh},
	"subscribe_all":        {Entity: catalog.NaturalPerson, run: (*Admin).subscribeAll},
	"unsubscribe_all":      {Entity: catalog.NaturalPerson, run: (*Admin).unsubscribeAll},
	"subscribe_everyone":   {Entity: catalog.Organization, run: (*Admin).subscribeEveryone},
	"unsubscribe_everyone": {Entity: catalog.Organization, run: (*Admin).unsubscribeEveryone},
}

func init() {
	for name, act := range bulkActions {
		act.Name = name
		bulkActions[name] = act
	}
}

// LookupAction returns the bulk action called name.
func LookupAction(name string) (Action, bool) {
	act, ok := bulkActions[name]
	return act, ok
}

// ActionNames lists the bulk actions, sorted.
func ActionNames() []string {
	names := make([]string, 0, len(bulkActions))
	for name := range bulkActions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bulk selects the rows of act's entity matching where, a lookup map such
// as {"person.name": "Bob"}, and runs act on them. An empty where selects
// every row. A where matching no row changes nothing.
func (a *Admin) Bulk(ctx context.Context, act Action, where map[string]any, value any) (BulkResult, error) {
	if act.run == nil {
		return BulkResult{}, fmt.Errorf("unknown action %q", act.Name)
	}
	if act.Value != "" && value == nil {
		return BulkResult{}, fmt.Errorf("%w: %s is required", ErrInvalidValue, act.Value)
	}

	reg := a.store.Registry()
	filter, err := lookup.Where(reg, act.Entity, where)
	if err != nil {
		return BulkResult{}, err
	}
	key, err := lookup.Fingerprint(act.Entity, where)
	if err != nil {
		return BulkResult{}, err
	}
	ids, err := a.store.IDs(ctx, act.Entity, filter)
	if err != nil {
		return BulkResult{}, err
	}

	if filter == nil {
		filter = queryir.And{} // every row
	}
	n, err := act.run(a, ctx, selection{ids: ids, filter: filter}, value)
	if err != nil {
		return BulkResult{}, err
	}
	return BulkResult{Filter: key, Selected: len(ids), Rows: n}, nil
}

func (a *Admin) demote(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.shiftRank(ctx, sel, 1)
}

func (a *Admin) promote(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.shiftRank(ctx, sel, -1)
}

func (a *Admin) bulkToManager(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.toManager(ctx, sel)
}

func (a *Admin) bulkToMember(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.toMember(ctx, sel)
}

func (a *Admin) bulkRefresh(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.refresh(ctx, sel)
}

func (a *Admin) subscribeAll(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.SubscribeAll(ctx, sel.ids)
}

func (a *Admin) unsubscribeAll(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.UnsubscribeAll(ctx, sel.ids)
}

func (a *Admin) subscribeEveryone(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.SubscribeEveryone(ctx, sel.ids)
}

func (a *Admin) unsubscribeEveryone(ctx context.Context, sel selection, _ any) (int64, error) {
	return a.UnsubscribeEveryone(ctx, sel.ids)
}

func intValue(name string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s: expected an integer, got %T", ErrInvalidValue, name, v)
	}
}

func boolValue(name string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s: expected a boolean, got %T", ErrInvalidValue, name, v)
	}
	return b, nil
}
