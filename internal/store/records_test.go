package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// orgFixture holds the ids created by seedOrg.
type orgFixture struct {
	alice, bob     int64 // naturalperson ids
	aliceUser      int64
	official, club int64 // organization ids
	officialUser   int64
	adminPos       int64
}

// seedOrg creates two people, an official organization and a club, and
// makes alice an admin of the club.
func seedOrg(t *testing.T, s *Store) orgFixture {
	t.Helper()
	ctx := context.Background()
	var f orgFixture

	mustUser := func(name string) int64 {
		id, err := s.InsertUser(ctx, name)
		if err != nil {
			t.Fatalf("InsertUser(%q) failed: %v", name, err)
		}
		return id
	}

	var err error
	f.aliceUser = mustUser("alice")
	f.alice, err = s.InsertPerson(ctx, Person{UserID: f.aliceUser, Name: "Alice", StuGrade: "2021", YQPoint: 10, Activated: true})
	if err != nil {
		t.Fatalf("InsertPerson(alice) failed: %v", err)
	}
	f.bob, err = s.InsertPerson(ctx, Person{UserID: mustUser("bob"), Name: "Bob", StuGrade: "2022", YQPoint: 40, Activated: true})
	if err != nil {
		t.Fatalf("InsertPerson(bob) failed: %v", err)
	}

	if err := s.InsertOrgType(ctx, 0, "official"); err != nil {
		t.Fatalf("InsertOrgType(0) failed: %v", err)
	}
	if err := s.InsertOrgType(ctx, 1, "club"); err != nil {
		t.Fatalf("InsertOrgType(1) failed: %v", err)
	}

	f.officialUser = mustUser("yuanpei")
	f.official, err = s.InsertOrganization(ctx, Organization{UserID: f.officialUser, Name: "元培学院", TypeID: 0, YQPoint: 1000, Activated: true})
	if err != nil {
		t.Fatalf("InsertOrganization(official) failed: %v", err)
	}
	f.club, err = s.InsertOrganization(ctx, Organization{UserID: mustUser("chess"), Name: "Chess Club", TypeID: 1, YQPoint: 5, Activated: true})
	if err != nil {
		t.Fatalf("InsertOrganization(club) failed: %v", err)
	}

	f.adminPos, err = s.InsertPosition(ctx, Position{PersonID: f.alice, OrgID: f.club, Year: 2024, Semester: "Fall", IsAdmin: true})
	if err != nil {
		t.Fatalf("InsertPosition(alice) failed: %v", err)
	}
	if _, err := s.InsertPosition(ctx, Position{PersonID: f.bob, OrgID: f.club, Year: 2024, Semester: "Fall", Pos: 1}); err != nil {
		t.Fatalf("InsertPosition(bob) failed: %v", err)
	}
	return f
}

func TestOrganizationByName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seedOrg(t, s)

	org, err := s.OrganizationByName(ctx, "元培学院")
	if err != nil {
		t.Fatalf("OrganizationByName() failed: %v", err)
	}
	if org.ID != f.official || org.UserID != f.officialUser || org.YQPoint != 1000 || !org.Activated {
		t.Errorf("OrganizationByName() = %+v", org)
	}

	_, err = s.OrganizationByName(ctx, "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("OrganizationByName(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInsertTransfers_RejectsDuplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seedOrg(t, s)

	tr := Transfer{
		ID:            "t-1",
		ProposerID:    f.officialUser,
		RecipientID:   f.aliceUser,
		RecipientKind: "person",
		Amount:        5,
		StartTime:     "2024-09-02T00:00:00Z",
		FinishTime:    "2024-09-02T00:00:00Z",
		Message:       "weekly",
		Status:        1,
	}
	if err := s.InsertTransfers(ctx, []Transfer{tr}); err != nil {
		t.Fatalf("InsertTransfers() failed: %v", err)
	}

	err := s.InsertTransfers(ctx, []Transfer{tr})
	if !errors.Is(err, ErrDuplicateTransfer) {
		t.Fatalf("second InsertTransfers() error = %v, want ErrDuplicateTransfer", err)
	}

	got, err := s.Transfers(ctx)
	if err != nil {
		t.Fatalf("Transfers() failed: %v", err)
	}
	if len(got) != 1 || got[0] != tr {
		t.Errorf("Transfers() = %+v, want [%+v]", got, tr)
	}
}

func TestActiveDistributions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	dists := []Distribution{
		{Type: 1, Status: true, StartTime: "2024-09-02T08:00:00Z", PerPoints: 5},
		{Type: 1, Status: false, StartTime: "2024-09-02T08:00:00Z"},
		{Type: 2, Status: true, StartTime: "2024-09-02T08:00:00Z"},
	}
	for _, d := range dists {
		if _, err := s.InsertDistribution(ctx, d); err != nil {
			t.Fatalf("InsertDistribution() failed: %v", err)
		}
	}

	got, err := s.ActiveDistributions(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveDistributions() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ActiveDistributions(1) returned %d rows, want 1", len(got))
	}
	if got[0].PerPoints != 5 || !got[0].Status {
		t.Errorf("ActiveDistributions(1)[0] = %+v", got[0])
	}

	start, err := got[0].Start()
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if start.Hour() != 8 {
		t.Errorf("Start() = %v, want 08:00", start)
	}
}

func TestDistribution_StartInvalid(t *testing.T) {
	if _, err := (Distribution{StartTime: "yesterday"}).Start(); err == nil {
		t.Error("expected error for unparsable start time")
	}
}

func TestUnsubscribers_SetAndClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seedOrg(t, s)

	if err := s.SetUnsubscribers(ctx, f.club, []int64{f.alice, f.bob}); err != nil {
		t.Fatalf("SetUnsubscribers() failed: %v", err)
	}
	for _, p := range []int64{f.alice, f.bob} {
		got, err := s.Unsubscribed(ctx, p)
		if err != nil {
			t.Fatalf("Unsubscribed() failed: %v", err)
		}
		if len(got) != 1 || got[0] != f.club {
			t.Errorf("Unsubscribed(%d) = %v, want [%d]", p, got, f.club)
		}
	}

	if err := s.ClearUnsubscribers(ctx, f.club); err != nil {
		t.Fatalf("ClearUnsubscribers() failed: %v", err)
	}
	got, err := s.Unsubscribed(ctx, f.alice)
	if err != nil {
		t.Fatalf("Unsubscribed() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Unsubscribed() after clear = %v, want none", got)
	}
}

func TestOrgTypes_Titles(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.InsertOrgType(ctx, 0, "official"); err != nil {
		t.Fatalf("InsertOrgType(0) failed: %v", err)
	}
	if err := s.InsertOrgType(ctx, 1, "club", "社长", "副社长"); err != nil {
		t.Fatalf("InsertOrgType(1) failed: %v", err)
	}

	types, err := s.OrgTypes(ctx)
	if err != nil {
		t.Fatalf("OrgTypes() failed: %v", err)
	}
	if len(types) != 2 || types[0].Name != "official" || types[1].Name != "club" {
		t.Fatalf("OrgTypes() = %+v", types)
	}

	tests := []struct {
		typ  OrgType
		want []string
	}{
		{types[0], []string{}},
		{types[1], []string{"社长", "副社长"}},
	}
	for _, tt := range tests {
		got, err := tt.typ.Titles()
		if err != nil {
			t.Fatalf("Titles(%s) failed: %v", tt.typ.Name, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Titles(%s) = %q, want %q", tt.typ.Name, got, tt.want)
		}
	}

	if _, err := (OrgType{ID: 9, JobNames: "not json"}).Titles(); err == nil {
		t.Error("Titles() on malformed job names should fail")
	}
}

func TestCopyPosition(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := seedOrg(t, s)

	id, err := s.CopyPosition(ctx, f.adminPos, 2025)
	if err != nil {
		t.Fatalf("CopyPosition() failed: %v", err)
	}
	if id == f.adminPos {
		t.Fatalf("CopyPosition() returned the source id %d", id)
	}

	var got Position
	if err := s.DB().Get(&got, "SELECT * FROM position WHERE id = ?", id); err != nil {
		t.Fatalf("read copy failed: %v", err)
	}
	want := Position{ID: id, PersonID: f.alice, OrgID: f.club, Year: 2025, Semester: "Fall", IsAdmin: true}
	if got != want {
		t.Errorf("copy = %+v, want %+v", got, want)
	}
}
