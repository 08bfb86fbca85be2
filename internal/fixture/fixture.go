// Package fixture loads organization data from YAML into a store.
//
// A fixture names rows by their natural keys (usernames, organization names)
// and refers to them by name; ids are assigned on insert. Omitted
// activation flags default to true.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orgadmin/internal/store"
)

// Fixture is the contents of a fixture file.
type Fixture struct {
	OrgTypes      []OrgType      `yaml:"org_types"`
	Organizations []Organization `yaml:"organizations"`
	People        []Person       `yaml:"people"`
	Positions     []Position     `yaml:"positions"`
	Distributions []Distribution `yaml:"distributions,omitempty"`
}

// OrgType is an organization type with an explicit id. Jobs names its
// ranks, rank 0 first.
type OrgType struct {
	ID   int64    `yaml:"id"`
	Name string   `yaml:"name"`
	Jobs []string `yaml:"jobs,omitempty"`
}

// Organization is an organization and its account.
type Organization struct {
	Name      string `yaml:"name"`
	Username  string `yaml:"username"`
	Type      int64  `yaml:"type"`
	Points    int64  `yaml:"points,omitempty"`
	Activated *bool  `yaml:"activated,omitempty"`
}

// Person is a natural person and their account.
type Person struct {
	Name         string   `yaml:"name"`
	Username     string   `yaml:"username"`
	Identity     int      `yaml:"identity,omitempty"`
	Status       int      `yaml:"status,omitempty"`
	Grade        string   `yaml:"grade,omitempty"`
	Class        string   `yaml:"class,omitempty"`
	Points       int64    `yaml:"points,omitempty"`
	Activated    *bool    `yaml:"activated,omitempty"`
	Unsubscribed []string `yaml:"unsubscribed,omitempty"` // organization names
}

// Position places a person in an organization.
type Position struct {
	Person   string `yaml:"person"` // username
	Org      string `yaml:"org"`    // organization name
	Year     int    `yaml:"year"`
	Semester string `yaml:"semester"`
	Pos      int    `yaml:"pos,omitempty"`
	Admin    bool   `yaml:"admin,omitempty"`
	Status   int    `yaml:"status,omitempty"`
}

// Distribution is a configured point distribution.
type Distribution struct {
	Type         int       `yaml:"type"`
	Active       bool      `yaml:"active"`
	Start        time.Time `yaml:"start"`
	PerMaxPoints int64     `yaml:"per_max_points"`
	OrgMaxPoints int64     `yaml:"org_max_points"`
	PerPoints    int64     `yaml:"per_points"`
	OrgPoints    int64     `yaml:"org_points"`
}

// IDs maps the natural keys of seeded rows to their ids.
type IDs struct {
	Users         map[string]int64 // by username
	People        map[string]int64 // by username
	Organizations map[string]int64 // by name
	Positions     []int64          // in fixture order
	Distributions []int64          // in fixture order
}

// Load reads and validates a fixture file.
// Unknown fields are rejected.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

// Validate checks required fields and that every reference names a row
// declared in the fixture.
func (f *Fixture) Validate() error {
	types := make(map[int64]bool)
	for i, t := range f.OrgTypes {
		if t.Name == "" {
			return fmt.Errorf("org_types[%d]: name is required", i)
		}
		types[t.ID] = true
	}

	usernames := make(map[string]bool)
	claim := func(where, username string) error {
		if username == "" {
			return fmt.Errorf("%s: username is required", where)
		}
		if usernames[username] {
			return fmt.Errorf("%s: duplicate username %q", where, username)
		}
		usernames[username] = true
		return nil
	}

	orgs := make(map[string]bool)
	for i, o := range f.Organizations {
		where := fmt.Sprintf("organizations[%d]", i)
		if o.Name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if orgs[o.Name] {
			return fmt.Errorf("%s: duplicate organization %q", where, o.Name)
		}
		orgs[o.Name] = true
		if err := claim(where, o.Username); err != nil {
			return err
		}
		if !types[o.Type] {
			return fmt.Errorf("%s: unknown org type %d", where, o.Type)
		}
	}

	people := make(map[string]bool)
	for i, p := range f.People {
		where := fmt.Sprintf("people[%d]", i)
		if p.Name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if err := claim(where, p.Username); err != nil {
			return err
		}
		people[p.Username] = true
		for _, org := range p.Unsubscribed {
			if !orgs[org] {
				return fmt.Errorf("%s: unsubscribed from unknown organization %q", where, org)
			}
		}
	}

	for i, p := range f.Positions {
		where := fmt.Sprintf("positions[%d]", i)
		if !people[p.Person] {
			return fmt.Errorf("%s: unknown person %q", where, p.Person)
		}
		if !orgs[p.Org] {
			return fmt.Errorf("%s: unknown organization %q", where, p.Org)
		}
	}

	for i, d := range f.Distributions {
		if d.Start.IsZero() {
			return fmt.Errorf("distributions[%d]: start is required", i)
		}
	}
	return nil
}

// Apply inserts the fixture in one transaction.
func (f *Fixture) Apply(ctx context.Context, s *store.Store) (*IDs, error) {
	ids := &IDs{
		Users:         make(map[string]int64),
		People:        make(map[string]int64),
		Organizations: make(map[string]int64),
	}

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		user := func(username string) (int64, error) {
			id, err := tx.InsertUser(ctx, username)
			if err != nil {
				return 0, fmt.Errorf("user %q: %w", username, err)
			}
			ids.Users[username] = id
			return id, nil
		}

		for _, t := range f.OrgTypes {
			if err := tx.InsertOrgType(ctx, t.ID, t.Name, t.Jobs...); err != nil {
				return fmt.Errorf("org type %d: %w", t.ID, err)
			}
		}

		for _, o := range f.Organizations {
			userID, err := user(o.Username)
			if err != nil {
				return err
			}
			id, err := tx.InsertOrganization(ctx, store.Organization{
				UserID:    userID,
				Name:      o.Name,
				TypeID:    o.Type,
				YQPoint:   o.Points,
				Activated: activated(o.Activated),
			})
			if err != nil {
				return fmt.Errorf("organization %q: %w", o.Name, err)
			}
			ids.Organizations[o.Name] = id
		}

		for _, p := range f.People {
			userID, err := user(p.Username)
			if err != nil {
				return err
			}
			id, err := tx.InsertPerson(ctx, store.Person{
				UserID:    userID,
				Name:      p.Name,
				Identity:  p.Identity,
				Status:    p.Status,
				StuGrade:  p.Grade,
				StuClass:  p.Class,
				YQPoint:   p.Points,
				Activated: activated(p.Activated),
			})
			if err != nil {
				return fmt.Errorf("person %q: %w", p.Username, err)
			}
			ids.People[p.Username] = id

			if len(p.Unsubscribed) > 0 {
				orgIDs := make([]int64, len(p.Unsubscribed))
				for i, name := range p.Unsubscribed {
					orgIDs[i] = ids.Organizations[name]
				}
				if err := tx.SetUnsubscribed(ctx, id, orgIDs); err != nil {
					return fmt.Errorf("person %q: %w", p.Username, err)
				}
			}
		}

		for i, p := range f.Positions {
			id, err := tx.InsertPosition(ctx, store.Position{
				PersonID: ids.People[p.Person],
				OrgID:    ids.Organizations[p.Org],
				Year:     p.Year,
				Semester: p.Semester,
				IsAdmin:  p.Admin,
				Pos:      p.Pos,
				Status:   p.Status,
			})
			if err != nil {
				return fmt.Errorf("positions[%d]: %w", i, err)
			}
			ids.Positions = append(ids.Positions, id)
		}

		for i, d := range f.Distributions {
			id, err := tx.InsertDistribution(ctx, store.Distribution{
				Type:         d.Type,
				Status:       d.Active,
				StartTime:    d.Start.UTC().Format(time.RFC3339),
				PerMaxPoints: d.PerMaxPoints,
				OrgMaxPoints: d.OrgMaxPoints,
				PerPoints:    d.PerPoints,
				OrgPoints:    d.OrgPoints,
			})
			if err != nil {
				return fmt.Errorf("distributions[%d]: %w", i, err)
			}
			ids.Distributions = append(ids.Distributions, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func activated(v *bool) bool {
	return v == nil || *v
}
