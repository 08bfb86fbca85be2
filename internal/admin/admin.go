// Package admin implements the bulk actions of the administration site.
//
// Every action takes the ids of the selected rows, runs in one
// transaction and returns the number of rows it changed. Filters and
// assignments are built from field references, not spelled as paths.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/queryir"
	"github.com/roach88/orgadmin/internal/store"
)

// ErrInvalidValue indicates an action value outside its allowed set.
var ErrInvalidValue = errors.New("invalid value")

// Identity of a natural person.
const (
	Student = 0
	Teacher = 1
)

// Graduation status of a natural person.
const (
	Undergraduated = 0
	Graduated      = 1
)

// OfficialOrgType is the organization type that cannot be unsubscribed.
const OfficialOrgType = 0

// InService is the status of a current position.
const InService = 0

// MemberTitle names every rank past the end of an organization type's
// job names.
const MemberTitle = "成员"

// Admin runs bulk actions against a store.
type Admin struct {
	store        *store.Store
	logger       *slog.Logger
	academicYear int
}

// Option configures an Admin.
type Option func(*Admin)

// WithAcademicYear sets the year Refresh extends positions into.
func WithAcademicYear(year int) Option {
	return func(a *Admin) {
		a.academicYear = year
	}
}

// New creates an Admin. A nil logger uses slog.Default().
func New(s *store.Store, logger *slog.Logger, opts ...Option) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Admin{store: s, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetIdentity marks the selected people as students or teachers.
func (a *Admin) SetIdentity(ctx context.Context, personIDs []int64, identity int) (int64, error) {
	return a.setIdentity(ctx, byIDs(personIDs), identity)
}

// SetGraduation marks the selected people as graduated or not.
func (a *Admin) SetGraduation(ctx context.Context, personIDs []int64, status int) (int64, error) {
	return a.setGraduation(ctx, byIDs(personIDs), status)
}

// SetActivated activates or disables the selected organizations.
func (a *Admin) SetActivated(ctx context.Context, orgIDs []int64, activated bool) (int64, error) {
	return a.assign(ctx, catalog.Organization, byIDs(orgIDs), "activated", activated)
}

// SetAdmin grants or revokes management rights on the selected positions.
func (a *Admin) SetAdmin(ctx context.Context, positionIDs []int64, isAdmin bool) (int64, error) {
	return a.assign(ctx, catalog.Position, byIDs(positionIDs), "is_admin", isAdmin)
}

// Demote moves the selected positions one rank down. Rank 0 is the top.
func (a *Admin) Demote(ctx context.Context, positionIDs []int64) (int64, error) {
	return a.shiftRank(ctx, byIDs(positionIDs), 1)
}

// Promote moves the selected positions one rank up, stopping at rank 0.
func (a *Admin) Promote(ctx context.Context, positionIDs []int64) (int64, error) {
	return a.shiftRank(ctx, byIDs(positionIDs), -1)
}

// ToManager puts the selected positions at rank 0 with management rights.
func (a *Admin) ToManager(ctx context.Context, positionIDs []int64) (int64, error) {
	return a.toManager(ctx, byIDs(positionIDs))
}

// ToMember puts the selected positions at the first rank past their
// organization type's job names and revokes management rights.
func (a *Admin) ToMember(ctx context.Context, positionIDs []int64) (int64, error) {
	return a.toMember(ctx, byIDs(positionIDs))
}

// Refresh copies the selected positions into the academic year. A
// position already in that year, or whose person already holds a
// position in the same organization that year, is skipped. It returns
// the number of positions created.
func (a *Admin) Refresh(ctx context.Context, positionIDs []int64) (int64, error) {
	return a.refresh(ctx, byIDs(positionIDs))
}

// SubscribeAll clears the unsubscribe lists of the selected people.
func (a *Admin) SubscribeAll(ctx context.Context, personIDs []int64) (int64, error) {
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range personIDs {
			if err := tx.ClearUnsubscribed(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	return a.done("subscribe_all", int64(len(personIDs)), err)
}

// UnsubscribeAll unsubscribes the selected people from every organization
// that is not of the official type.
func (a *Admin) UnsubscribeAll(ctx context.Context, personIDs []int64) (int64, error) {
	if len(personIDs) == 0 {
		return a.done("unsubscribe_all", 0, nil)
	}
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		org, err := tx.Registry().Entity(catalog.Organization)
		if err != nil {
			return err
		}
		official, err := fieldref.EqualsValue(OfficialOrgType, org.MustRef("otype_id"))
		if err != nil {
			return err
		}
		orgIDs, err := tx.IDs(ctx, org.Name, queryir.Not{Predicate: official})
		if err != nil {
			return err
		}
		for _, id := range personIDs {
			if err := tx.SetUnsubscribed(ctx, id, orgIDs); err != nil {
				return err
			}
		}
		return nil
	})
	return a.done("unsubscribe_all", int64(len(personIDs)), err)
}

// SubscribeEveryone resubscribes every person to the selected organizations.
func (a *Admin) SubscribeEveryone(ctx context.Context, orgIDs []int64) (int64, error) {
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range orgIDs {
			if err := tx.ClearUnsubscribers(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	return a.done("subscribe_everyone", int64(len(orgIDs)), err)
}

// UnsubscribeEveryone unsubscribes every person from the selected
// organizations.
func (a *Admin) UnsubscribeEveryone(ctx context.Context, orgIDs []int64) (int64, error) {
	if len(orgIDs) == 0 {
		return a.done("unsubscribe_everyone", 0, nil)
	}
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		personIDs, err := tx.IDs(ctx, catalog.NaturalPerson, nil)
		if err != nil {
			return err
		}
		for _, id := range orgIDs {
			if err := tx.SetUnsubscribers(ctx, id, personIDs); err != nil {
				return err
			}
		}
		return nil
	})
	return a.done("unsubscribe_everyone", int64(len(orgIDs)), err)
}

// ManagerGroup lists the managers holding one rank.
type ManagerGroup struct {
	Pos   int
	Title string
	Names []string
}

// Managers lists the people with management rights on current positions
// of an organization, grouped by rank, top rank first.
func (a *Admin) Managers(ctx context.Context, orgID int64) ([]ManagerGroup, error) {
	reg := a.store.Registry()
	e, err := reg.Entity(catalog.Position)
	if err != nil {
		return nil, err
	}

	var preds []queryir.Predicate
	for _, cond := range []struct {
		attr  string
		value any
	}{
		{"org_id", orgID},
		{"is_admin", true},
		{"status", InService},
	} {
		p, err := fieldref.EqualsValue(cond.value, e.MustRef(cond.attr))
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	name, err := pathOf(reg, catalog.Position, "person", "name")
	if err != nil {
		return nil, err
	}
	otype, err := pathOf(reg, catalog.Position, "org", "otype")
	if err != nil {
		return nil, err
	}
	rows, err := a.store.Select(ctx, queryir.Select{
		From:   e.Name,
		Filter: queryir.AllOf(preds...),
		Fields: []string{"pos", name, otype},
	})
	if err != nil {
		return nil, fmt.Errorf("managers of organization %d: %w", orgID, err)
	}
	if len(rows) == 0 {
		return []ManagerGroup{}, nil
	}
	titles, err := typeTitles(ctx, a.store)
	if err != nil {
		return nil, err
	}
	jobs := titles[rows[0].Int(otype)]

	byPos := make(map[int][]string)
	for _, row := range rows {
		pos := int(row.Int("pos"))
		byPos[pos] = append(byPos[pos], row.Text(name))
	}
	groups := make([]ManagerGroup, 0, len(byPos))
	for pos, names := range byPos {
		groups = append(groups, ManagerGroup{Pos: pos, Title: PositionTitle(jobs, pos), Names: names})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Pos < groups[j].Pos })
	return groups, nil
}

// PositionTitle names rank pos given its organization type's job names.
func PositionTitle(jobs []string, pos int) string {
	if pos >= 0 && pos < len(jobs) {
		return jobs[pos]
	}
	return MemberTitle
}

// NameRanks sets PositionNameColumn on position rows. Each row must
// carry the org and pos columns of PositionListDisplay.
func (a *Admin) NameRanks(ctx context.Context, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	reg := a.store.Registry()
	otype, err := pathOf(reg, catalog.Organization, "otype")
	if err != nil {
		return err
	}
	org, err := pathOf(reg, catalog.Position, "org")
	if err != nil {
		return err
	}
	orgs, err := a.store.Select(ctx, queryir.Select{From: catalog.Organization, Fields: []string{model.PrimaryKey, otype}})
	if err != nil {
		return err
	}
	typeOf := make(map[int64]int64, len(orgs))
	for _, o := range orgs {
		typeOf[o.Int(model.PrimaryKey)] = o.Int(otype)
	}
	titles, err := typeTitles(ctx, a.store)
	if err != nil {
		return err
	}
	for _, row := range rows {
		row[PositionNameColumn] = PositionTitle(titles[typeOf[row.Int(org)]], int(row.Int("pos")))
	}
	return nil
}

func (a *Admin) setIdentity(ctx context.Context, sel selection, identity int) (int64, error) {
	if identity != Student && identity != Teacher {
		return 0, fmt.Errorf("%w: unknown identity %d", ErrInvalidValue, identity)
	}
	return a.assign(ctx, catalog.NaturalPerson, sel, "identity", identity)
}

func (a *Admin) setGraduation(ctx context.Context, sel selection, status int) (int64, error) {
	if status != Undergraduated && status != Graduated {
		return 0, fmt.Errorf("%w: unknown graduation status %d", ErrInvalidValue, status)
	}
	return a.assign(ctx, catalog.NaturalPerson, sel, "status", status)
}

// assign sets one attribute on the selected rows of entity.
func (a *Admin) assign(ctx context.Context, entity string, sel selection, attr string, value any) (int64, error) {
	action := "set_" + attr
	if sel.empty() {
		return a.done(action, 0, nil)
	}
	var n int64
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.Registry().Entity(entity)
		if err != nil {
			return err
		}
		filter, err := sel.predicate(e)
		if err != nil {
			return err
		}
		set, err := assignment(e, attr, value)
		if err != nil {
			return err
		}
		n, err = tx.Update(ctx, queryir.Update{
			From:   e.Name,
			Filter: filter,
			Set:    []queryir.Assignment{set},
		})
		return err
	})
	return a.done(action, n, err)
}

func (a *Admin) shiftRank(ctx context.Context, sel selection, by int64) (int64, error) {
	action := "demote"
	if by < 0 {
		action = "promote"
	}
	if sel.empty() {
		return a.done(action, 0, nil)
	}
	var n int64
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.Registry().Entity(catalog.Position)
		if err != nil {
			return err
		}
		filter, err := sel.predicate(e)
		if err != nil {
			return err
		}
		if by < 0 {
			ranked, err := fieldref.On(e.MustRef("pos")).Compare(queryir.OpGT, 0)
			if err != nil {
				return err
			}
			filter = queryir.AllOf(filter, ranked)
		}
		n, err = tx.Update(ctx, queryir.Update{
			From:   e.Name,
			Filter: filter,
			Set:    []queryir.Assignment{queryir.Increment{Field: fieldref.MustPath(e.MustRef("pos")), By: by}},
		})
		return err
	})
	return a.done(action, n, err)
}

func (a *Admin) toManager(ctx context.Context, sel selection) (int64, error) {
	if sel.empty() {
		return a.done("to_manager", 0, nil)
	}
	var n int64
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.Registry().Entity(catalog.Position)
		if err != nil {
			return err
		}
		filter, err := sel.predicate(e)
		if err != nil {
			return err
		}
		top, err := assignment(e, "pos", 0)
		if err != nil {
			return err
		}
		admin, err := assignment(e, "is_admin", true)
		if err != nil {
			return err
		}
		n, err = tx.Update(ctx, queryir.Update{
			From:   e.Name,
			Filter: filter,
			Set:    []queryir.Assignment{top, admin},
		})
		return err
	})
	return a.done("to_manager", n, err)
}

// toMember runs one update per organization type, since the member rank
// depends on the type's job names.
func (a *Admin) toMember(ctx context.Context, sel selection) (int64, error) {
	if sel.empty() {
		return a.done("to_member", 0, nil)
	}
	var n int64
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		reg := tx.Registry()
		e, err := reg.Entity(catalog.Position)
		if err != nil {
			return err
		}
		filter, err := sel.predicate(e)
		if err != nil {
			return err
		}
		otypeRefs, err := reg.Refs(catalog.Position, "org", "otype")
		if err != nil {
			return err
		}
		types, err := tx.OrgTypes(ctx)
		if err != nil {
			return err
		}
		revoke, err := assignment(e, "is_admin", false)
		if err != nil {
			return err
		}
		for _, t := range types {
			jobs, err := t.Titles()
			if err != nil {
				return err
			}
			ofType, err := fieldref.On(otypeRefs...).Equals(t.ID)
			if err != nil {
				return err
			}
			member, err := assignment(e, "pos", len(jobs))
			if err != nil {
				return err
			}
			changed, err := tx.Update(ctx, queryir.Update{
				From:   e.Name,
				Filter: queryir.AllOf(filter, ofType),
				Set:    []queryir.Assignment{member, revoke},
			})
			if err != nil {
				return err
			}
			n += changed
		}
		return nil
	})
	return a.done("to_member", n, err)
}

func (a *Admin) refresh(ctx context.Context, sel selection) (int64, error) {
	year := a.academicYear
	if year <= 0 {
		return a.done("refresh", 0, fmt.Errorf("%w: academic year is not set", ErrInvalidValue))
	}
	if sel.empty() {
		return a.done("refresh", 0, nil)
	}
	var created []int64
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		e, err := tx.Registry().Entity(catalog.Position)
		if err != nil {
			return err
		}
		filter, err := sel.predicate(e)
		if err != nil {
			return err
		}
		stale, err := fieldref.On(e.MustRef("year")).Compare(queryir.OpNE, year)
		if err != nil {
			return err
		}
		person := fieldref.MustPath(e.MustRef("person_id"))
		org := fieldref.MustPath(e.MustRef("org_id"))
		rows, err := tx.Select(ctx, queryir.Select{
			From:   e.Name,
			Filter: queryir.AllOf(filter, stale),
			Fields: []string{model.PrimaryKey, person, org},
		})
		if err != nil {
			return err
		}

		for _, row := range rows {
			var held []queryir.Predicate
			for _, cond := range []struct {
				attr  string
				value any
			}{
				{"person_id", row.Int(person)},
				{"org_id", row.Int(org)},
				{"year", year},
			} {
				p, err := fieldref.EqualsValue(cond.value, e.MustRef(cond.attr))
				if err != nil {
					return err
				}
				held = append(held, p)
			}
			existing, err := tx.IDs(ctx, e.Name, queryir.AllOf(held...))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				continue
			}
			id, err := tx.CopyPosition(ctx, row.Int(model.PrimaryKey), year)
			if err != nil {
				return err
			}
			created = append(created, id)
		}
		return nil
	})
	if err == nil && len(created) > 0 {
		a.logger.Debug("positions extended", "year", year, "created", created)
	}
	return a.done("refresh", int64(len(created)), err)
}

func (a *Admin) done(action string, n int64, err error) (int64, error) {
	if err != nil {
		a.logger.Error("admin action failed", "action", action, "error", err)
		return 0, fmt.Errorf("%s: %w", action, err)
	}
	a.logger.Info("admin action", "action", action, "rows", n)
	return n, nil
}

// selection is the set of rows an action takes. A bulk run also carries
// the filter its ids were selected by, so updates are not bound to one
// parameter per id.
type selection struct {
	ids    []int64
	filter queryir.Predicate
}

func byIDs(ids []int64) selection {
	return selection{ids: ids}
}

func (sel selection) empty() bool {
	return len(sel.ids) == 0
}

// predicate matches the selected rows of e.
func (sel selection) predicate(e *model.Entity) (queryir.Predicate, error) {
	if sel.filter != nil {
		return sel.filter, nil
	}
	values := make([]any, len(sel.ids))
	for i, id := range sel.ids {
		values[i] = id
	}
	return fieldref.On(e.MustRef(model.PrimaryKey)).In(values...)
}

// orgTypeLister is satisfied by both the store and its transactions.
type orgTypeLister interface {
	OrgTypes(ctx context.Context) ([]store.OrgType, error)
}

// typeTitles returns the job names of every organization type by id.
func typeTitles(ctx context.Context, src orgTypeLister) (map[int64][]string, error) {
	types, err := src.OrgTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]string, len(types))
	for _, t := range types {
		jobs, err := t.Titles()
		if err != nil {
			return nil, err
		}
		out[t.ID] = jobs
	}
	return out, nil
}

// assignment builds a SET clause for one of the entity's own attributes.
func assignment(e *model.Entity, attr string, value any) (queryir.Assignment, error) {
	ref, err := e.Ref(attr)
	if err != nil {
		return nil, err
	}
	eq, err := fieldref.EqualsValue(value, ref)
	if err != nil {
		return nil, err
	}
	return queryir.Assign{Field: eq.Field, Value: eq.Value}, nil
}
