package admin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/queryir"
	"github.com/roach88/orgadmin/internal/querysql"
	"github.com/roach88/orgadmin/internal/store"
)

type fixture struct {
	s                          *store.Store
	alice, bob                 int64
	official, chess, choir     int64
	alicePos, bobPos, carolPos int64
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), catalog.MustDefault())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := fixture{s: s}
	user := func(name string) int64 {
		id, err := s.InsertUser(ctx, name)
		require.NoError(t, err)
		return id
	}
	person := func(name string) int64 {
		id, err := s.InsertPerson(ctx, store.Person{UserID: user(name), Name: name, Activated: true})
		require.NoError(t, err)
		return id
	}
	org := func(name string, typeID int64) int64 {
		id, err := s.InsertOrganization(ctx, store.Organization{UserID: user(name), Name: name, TypeID: typeID, Activated: true})
		require.NoError(t, err)
		return id
	}
	position := func(personID, orgID int64, pos int, isAdmin bool) int64 {
		id, err := s.InsertPosition(ctx, store.Position{
			PersonID: personID, OrgID: orgID, Year: 2024, Semester: "Fall", Pos: pos, IsAdmin: isAdmin,
		})
		require.NoError(t, err)
		return id
	}

	require.NoError(t, s.InsertOrgType(ctx, OfficialOrgType, "official"))
	require.NoError(t, s.InsertOrgType(ctx, 1, "club", "社长", "副社长"))

	f.alice = person("Alice")
	f.bob = person("Bob")
	carol := person("Carol")
	f.official = org("元培学院", OfficialOrgType)
	f.chess = org("Chess Club", 1)
	f.choir = org("Choir", 1)

	f.alicePos = position(f.alice, f.chess, 0, true)
	f.bobPos = position(f.bob, f.chess, 2, false)
	f.carolPos = position(carol, f.chess, 0, true)
	return f
}

func intColumn(t *testing.T, s *store.Store, entity string, id int64, path string) int64 {
	t.Helper()
	rows, err := s.Select(context.Background(), queryir.Select{
		From:   entity,
		Filter: queryir.Equals{Field: "id", Value: ir.IRInt(id)},
		Fields: []string{path},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	switch v := rows[0][path].(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return rows[0].Int(path)
	}
}

func TestSetIdentity(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)

	n, err := a.SetIdentity(context.Background(), []int64{f.alice}, Teacher)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, int64(Teacher), intColumn(t, f.s, catalog.NaturalPerson, f.alice, "identity"))
	assert.Equal(t, int64(Student), intColumn(t, f.s, catalog.NaturalPerson, f.bob, "identity"))

	_, err = a.SetIdentity(context.Background(), []int64{f.alice}, 7)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestSetGraduation(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)

	n, err := a.SetGraduation(context.Background(), []int64{f.alice, f.bob}, Graduated)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(Graduated), intColumn(t, f.s, catalog.NaturalPerson, f.bob, "status"))

	n, err = a.SetGraduation(context.Background(), []int64{f.bob}, Undergraduated)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(Undergraduated), intColumn(t, f.s, catalog.NaturalPerson, f.bob, "status"))
}

func TestEmptySelectionChangesNothing(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil, WithAcademicYear(2025))
	ctx := context.Background()

	actions := map[string]func() (int64, error){
		"set_identity":         func() (int64, error) { return a.SetIdentity(ctx, nil, Teacher) },
		"set_graduation":       func() (int64, error) { return a.SetGraduation(ctx, nil, Graduated) },
		"set_activated":        func() (int64, error) { return a.SetActivated(ctx, []int64{}, false) },
		"set_admin":            func() (int64, error) { return a.SetAdmin(ctx, nil, true) },
		"demote":               func() (int64, error) { return a.Demote(ctx, nil) },
		"promote":              func() (int64, error) { return a.Promote(ctx, nil) },
		"to_manager":           func() (int64, error) { return a.ToManager(ctx, nil) },
		"to_member":            func() (int64, error) { return a.ToMember(ctx, nil) },
		"refresh":              func() (int64, error) { return a.Refresh(ctx, nil) },
		"subscribe_all":        func() (int64, error) { return a.SubscribeAll(ctx, nil) },
		"unsubscribe_all":      func() (int64, error) { return a.UnsubscribeAll(ctx, nil) },
		"subscribe_everyone":   func() (int64, error) { return a.SubscribeEveryone(ctx, nil) },
		"unsubscribe_everyone": func() (int64, error) { return a.UnsubscribeEveryone(ctx, nil) },
	}
	assert.Len(t, actions, len(ActionNames()))
	for name, run := range actions {
		t.Run(name, func(t *testing.T) {
			n, err := run()
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}

	assert.Equal(t, int64(2), intColumn(t, f.s, catalog.Position, f.bobPos, "pos"))
	assert.Equal(t, int64(1), intColumn(t, f.s, catalog.Position, f.alicePos, "is_admin"))
}

func TestSetActivated(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)

	n, err := a.SetActivated(context.Background(), []int64{f.choir}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(0), intColumn(t, f.s, catalog.Organization, f.choir, "activated"))
	assert.Equal(t, int64(1), intColumn(t, f.s, catalog.Organization, f.chess, "activated"))
}

func TestUnsubscribeAll_SkipsOfficial(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)
	ctx := context.Background()

	_, err := a.UnsubscribeAll(ctx, []int64{f.alice})
	require.NoError(t, err)

	got, err := f.s.Unsubscribed(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.chess, f.choir}, got)

	_, err = a.SubscribeAll(ctx, []int64{f.alice})
	require.NoError(t, err)
	got, err = f.s.Unsubscribed(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnsubscribeEveryone(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)
	ctx := context.Background()

	_, err := a.UnsubscribeEveryone(ctx, []int64{f.choir})
	require.NoError(t, err)

	// Everyone now lists the choir in their unsubscribe list.
	ids, err := f.s.IDs(ctx, catalog.NaturalPerson, queryir.Equals{
		Field: "unsubscribe_list__oname", Value: ir.IRString("Choir"),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = a.SubscribeEveryone(ctx, []int64{f.choir})
	require.NoError(t, err)
	ids, err = f.s.IDs(ctx, catalog.NaturalPerson, queryir.Equals{
		Field: "unsubscribe_list__oname", Value: ir.IRString("Choir"),
	})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDemotePromote(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)
	ctx := context.Background()

	n, err := a.Demote(ctx, []int64{f.alicePos, f.bobPos})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), intColumn(t, f.s, catalog.Position, f.alicePos, "pos"))
	assert.Equal(t, int64(3), intColumn(t, f.s, catalog.Position, f.bobPos, "pos"))

	// Promote stops at rank 0.
	for i := 0; i < 2; i++ {
		_, err = a.Promote(ctx, []int64{f.alicePos})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), intColumn(t, f.s, catalog.Position, f.alicePos, "pos"))

	n, err = a.Promote(ctx, []int64{f.alicePos})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestToManagerAndManagers(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)
	ctx := context.Background()

	groups, err := a.Managers(ctx, f.chess)
	require.NoError(t, err)
	assert.Equal(t, []ManagerGroup{{Pos: 0, Title: "社长", Names: []string{"Alice", "Carol"}}}, groups)

	_, err = a.SetAdmin(ctx, []int64{f.carolPos}, false)
	require.NoError(t, err)
	_, err = a.ToManager(ctx, []int64{f.bobPos})
	require.NoError(t, err)
	_, err = a.Demote(ctx, []int64{f.alicePos})
	require.NoError(t, err)

	groups, err = a.Managers(ctx, f.chess)
	require.NoError(t, err)
	assert.Equal(t, []ManagerGroup{
		{Pos: 0, Title: "社长", Names: []string{"Bob"}},
		{Pos: 1, Title: "副社长", Names: []string{"Alice"}},
	}, groups)

	groups, err = a.Managers(ctx, f.choir)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestToMember(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)
	ctx := context.Background()

	officialPos, err := f.s.InsertPosition(ctx, store.Position{
		PersonID: f.bob, OrgID: f.official, Year: 2024, Semester: "Fall", IsAdmin: true,
	})
	require.NoError(t, err)

	n, err := a.ToMember(ctx, []int64{f.alicePos, officialPos})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The club names two ranks, the official type none.
	assert.Equal(t, int64(2), intColumn(t, f.s, catalog.Position, f.alicePos, "pos"))
	assert.Equal(t, int64(0), intColumn(t, f.s, catalog.Position, f.alicePos, "is_admin"))
	assert.Equal(t, int64(0), intColumn(t, f.s, catalog.Position, officialPos, "pos"))
	assert.Equal(t, int64(0), intColumn(t, f.s, catalog.Position, officialPos, "is_admin"))
	assert.Equal(t, int64(1), intColumn(t, f.s, catalog.Position, f.carolPos, "is_admin"))

	groups, err := a.Managers(ctx, f.chess)
	require.NoError(t, err)
	assert.Equal(t, []ManagerGroup{{Pos: 0, Title: "社长", Names: []string{"Carol"}}}, groups)
}

func TestRefresh(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil, WithAcademicYear(2025))
	ctx := context.Background()

	// Bob already holds a 2025 position in the chess club.
	_, err := f.s.InsertPosition(ctx, store.Position{PersonID: f.bob, OrgID: f.chess, Year: 2025, Semester: "Spring", Pos: 1})
	require.NoError(t, err)

	n, err := a.Refresh(ctx, []int64{f.alicePos, f.bobPos})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := f.s.Select(ctx, queryir.Select{
		From:   catalog.Position,
		Filter: queryir.Equals{Field: "year", Value: ir.IRInt(2025)},
		Fields: []string{"person__name", "semester", "pos", "is_admin"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[1].Text("person__name"))
	assert.Equal(t, "Fall", rows[1].Text("semester"))
	assert.Equal(t, int64(0), rows[1].Int("pos"))
	assert.Equal(t, true, rows[1]["is_admin"])

	// The copies are already in the academic year.
	n, err = a.Refresh(ctx, []int64{f.alicePos, f.bobPos})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefresh_YearUnset(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)

	_, err := a.Refresh(context.Background(), []int64{f.alicePos})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestPositionTitle(t *testing.T) {
	jobs := []string{"社长", "副社长"}

	tests := []struct {
		pos  int
		want string
	}{
		{0, "社长"},
		{1, "副社长"},
		{2, MemberTitle},
		{-1, MemberTitle},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PositionTitle(jobs, tt.pos), "pos %d", tt.pos)
	}
	assert.Equal(t, MemberTitle, PositionTitle(nil, 0))
}

func TestNameRanks(t *testing.T) {
	f := setup(t)
	a := New(f.s, nil)
	ctx := context.Background()

	rows, err := f.s.Select(ctx, queryir.Select{From: catalog.Position, Fields: PositionListDisplay})
	require.NoError(t, err)
	require.NoError(t, a.NameRanks(ctx, rows))

	require.Len(t, rows, 3)
	assert.Equal(t, "社长", rows[0][PositionNameColumn])
	assert.Equal(t, MemberTitle, rows[1][PositionNameColumn])
	assert.Equal(t, "社长", rows[2][PositionNameColumn])
}

func TestDisplayPaths(t *testing.T) {
	assert.Equal(t, []string{"person_id__username", "name"}, PersonSearchFields)
	assert.Equal(t, []string{"organization_id__username", "oname", "otype__otype_name"}, OrganizationSearchFields)
	assert.Equal(t, []string{"person__name", "org__oname", "org__otype__otype_name"}, PositionSearchFields)
	assert.Equal(t, []string{"year", "semester", "is_admin", "org__otype", "pos"}, PositionListFilter)
	assert.Equal(t, []string{"id", "proposer__username", "recipient__username"}, TransferSearchFields)
}

// Every display path must compile against the built-in models.
func TestDisplayPathsCompile(t *testing.T) {
	c := querysql.NewSQLCompiler(catalog.MustDefault())

	lists := map[string][][]string{
		catalog.NaturalPerson:  {PersonListDisplay, PersonSearchFields, PersonListFilter},
		catalog.Organization:   {OrganizationListDisplay, OrganizationSearchFields, OrganizationListFilter},
		catalog.Position:       {PositionListDisplay, PositionSearchFields, PositionListFilter},
		catalog.TransferRecord: {TransferSearchFields},
	}
	for entity, fieldLists := range lists {
		for _, fields := range fieldLists {
			_, _, err := c.Compile(queryir.Select{From: entity, Fields: fields})
			assert.NoError(t, err, "%s %v", entity, fields)
		}
	}
}
