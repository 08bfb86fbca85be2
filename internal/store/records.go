package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Person is a row of naturalperson.
type Person struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"person_id_id"`
	Name      string `db:"name"`
	Identity  int    `db:"identity"`
	Status    int    `db:"status"`
	StuGrade  string `db:"stu_grade"`
	StuClass  string `db:"stu_class"`
	YQPoint   int64  `db:"yqpoint"`
	Activated bool   `db:"activated"`
}

// OrgType is a row of organizationtype.
type OrgType struct {
	ID   int64  `db:"id"`
	Name string `db:"otype_name"`
	// JobNames is a JSON array of rank titles, rank 0 first.
	JobNames string `db:"job_name_list"`
}

// Titles decodes JobNames.
func (t OrgType) Titles() ([]string, error) {
	var titles []string
	if t.JobNames == "" {
		return titles, nil
	}
	if err := json.Unmarshal([]byte(t.JobNames), &titles); err != nil {
		return nil, fmt.Errorf("organization type %d job names: %w", t.ID, err)
	}
	return titles, nil
}

// Organization is a row of organization.
type Organization struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"organization_id_id"`
	Name      string `db:"oname"`
	TypeID    int64  `db:"otype_id"`
	YQPoint   int64  `db:"yqpoint"`
	Activated bool   `db:"activated"`
}

// Position links a person to an organization for one semester.
type Position struct {
	ID       int64  `db:"id"`
	PersonID int64  `db:"person_id"`
	OrgID    int64  `db:"org_id"`
	Year     int    `db:"year"`
	Semester string `db:"semester"`
	IsAdmin  bool   `db:"is_admin"`
	Pos      int    `db:"pos"`
	Status   int    `db:"status"`
}

// Transfer is a ledger entry moving points between two accounts.
type Transfer struct {
	ID            string `db:"id"`
	ProposerID    int64  `db:"proposer_id"`
	RecipientID   int64  `db:"recipient_id"`
	RecipientKind string `db:"recipient_kind"`
	Amount        int64  `db:"amount"`
	StartTime     string `db:"start_time"`
	FinishTime    string `db:"finish_time"`
	Message       string `db:"message"`
	Status        int    `db:"status"`
}

// Distribution is a configured point distribution.
type Distribution struct {
	ID           int64  `db:"id"`
	Type         int    `db:"type"`
	Status       bool   `db:"status"`
	StartTime    string `db:"start_time"`
	PerMaxPoints int64  `db:"per_max_points"`
	OrgMaxPoints int64  `db:"org_max_points"`
	PerPoints    int64  `db:"per_points"`
	OrgPoints    int64  `db:"org_points"`
}

// Start parses StartTime.
func (d Distribution) Start() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, d.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("distribution %d start time: %w", d.ID, err)
	}
	return t, nil
}

// InsertUser creates an account and returns its id.
func (c *conn) InsertUser(ctx context.Context, username string) (int64, error) {
	return c.exec(ctx, "insert-user", username)
}

// InsertPerson creates a person and returns its id. p.UserID must exist.
func (c *conn) InsertPerson(ctx context.Context, p Person) (int64, error) {
	return c.exec(ctx, "insert-person",
		p.UserID, p.Name, p.Identity, p.Status, p.StuGrade, p.StuClass, p.YQPoint, p.Activated)
}

// InsertOrgType creates an organization type with an explicit id and the
// titles of its ranks, rank 0 first. Type 0 is the official type.
func (c *conn) InsertOrgType(ctx context.Context, id int64, name string, jobNames ...string) error {
	if jobNames == nil {
		jobNames = []string{}
	}
	encoded, err := json.Marshal(jobNames)
	if err != nil {
		return fmt.Errorf("organization type %d job names: %w", id, err)
	}
	_, err = c.exec(ctx, "insert-org-type", id, name, string(encoded))
	return err
}

// OrgTypes lists every organization type by id.
func (c *conn) OrgTypes(ctx context.Context) ([]OrgType, error) {
	var out []OrgType
	if err := c.selectNamed(ctx, "list-org-types", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertOrganization creates an organization and returns its id.
func (c *conn) InsertOrganization(ctx context.Context, o Organization) (int64, error) {
	return c.exec(ctx, "insert-organization", o.UserID, o.Name, o.TypeID, o.YQPoint, o.Activated)
}

// InsertPosition creates a position and returns its id.
func (c *conn) InsertPosition(ctx context.Context, p Position) (int64, error) {
	return c.exec(ctx, "insert-position",
		p.PersonID, p.OrgID, p.Year, p.Semester, p.IsAdmin, p.Pos, p.Status)
}

// CopyPosition inserts a copy of a position moved to another year and
// returns the new id.
func (c *conn) CopyPosition(ctx context.Context, id int64, year int) (int64, error) {
	return c.exec(ctx, "copy-position", year, id)
}

// InsertDistribution creates a distribution and returns its id.
func (c *conn) InsertDistribution(ctx context.Context, d Distribution) (int64, error) {
	return c.exec(ctx, "insert-distribution",
		d.Type, d.Status, d.StartTime, d.PerMaxPoints, d.OrgMaxPoints, d.PerPoints, d.OrgPoints)
}

// InsertTransfers appends transfer records in order. An id already present
// fails with ErrDuplicateTransfer; run inside WithTx to keep the batch whole.
func (c *conn) InsertTransfers(ctx context.Context, transfers []Transfer) error {
	query, err := c.raw("insert-transfer")
	if err != nil {
		return err
	}
	for _, t := range transfers {
		_, err := c.ext.ExecContext(ctx, query,
			t.ID, t.ProposerID, t.RecipientID, t.RecipientKind, t.Amount,
			t.StartTime, t.FinishTime, t.Message, t.Status)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateTransfer, t.ID)
			}
			return fmt.Errorf("insert transfer %s: %w", t.ID, err)
		}
	}
	return nil
}

// Transfers lists every transfer record by start time.
func (c *conn) Transfers(ctx context.Context) ([]Transfer, error) {
	var out []Transfer
	if err := c.selectNamed(ctx, "list-transfers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveDistributions lists distributions of a type whose status is on.
func (c *conn) ActiveDistributions(ctx context.Context, typ int) ([]Distribution, error) {
	var out []Distribution
	if err := c.selectNamed(ctx, "active-distributions", &out, typ); err != nil {
		return nil, err
	}
	return out, nil
}

// OrganizationByName looks up an organization by its unique name.
func (c *conn) OrganizationByName(ctx context.Context, name string) (Organization, error) {
	query, err := c.raw("organization-by-name")
	if err != nil {
		return Organization{}, err
	}

	var org Organization
	if err := sqlx.GetContext(ctx, c.ext, &org, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, fmt.Errorf("organization %q: %w", name, ErrNotFound)
		}
		return Organization{}, fmt.Errorf("organization-by-name: %w", err)
	}
	return org, nil
}

// SetUnsubscribed replaces the organizations a person has unsubscribed from.
func (c *conn) SetUnsubscribed(ctx context.Context, personID int64, orgIDs []int64) error {
	if err := c.ClearUnsubscribed(ctx, personID); err != nil {
		return err
	}
	for _, orgID := range orgIDs {
		if _, err := c.exec(ctx, "add-unsubscribe", personID, orgID); err != nil {
			return err
		}
	}
	return nil
}

// ClearUnsubscribed subscribes a person to every organization again.
func (c *conn) ClearUnsubscribed(ctx context.Context, personID int64) error {
	_, err := c.exec(ctx, "clear-person-unsubscribe", personID)
	return err
}

// SetUnsubscribers replaces the people who unsubscribed from an organization.
func (c *conn) SetUnsubscribers(ctx context.Context, orgID int64, personIDs []int64) error {
	if err := c.ClearUnsubscribers(ctx, orgID); err != nil {
		return err
	}
	for _, personID := range personIDs {
		if _, err := c.exec(ctx, "add-unsubscribe", personID, orgID); err != nil {
			return err
		}
	}
	return nil
}

// ClearUnsubscribers resubscribes everyone to an organization.
func (c *conn) ClearUnsubscribers(ctx context.Context, orgID int64) error {
	_, err := c.exec(ctx, "clear-org-unsubscribers", orgID)
	return err
}

// Unsubscribed lists the organizations a person has unsubscribed from.
func (c *conn) Unsubscribed(ctx context.Context, personID int64) ([]int64, error) {
	var out []int64
	if err := c.selectNamed(ctx, "person-unsubscribed", &out, personID); err != nil {
		return nil, err
	}
	return out, nil
}
