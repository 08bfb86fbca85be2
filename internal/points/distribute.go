package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/queryir"
	"github.com/roach88/orgadmin/internal/store"
)

// Distribution types.
const (
	Temporary = 0
	Weekly    = 1
	Biweekly  = 2
)

// Recipient kinds recorded on transfers.
const (
	RecipientPerson       = "person"
	RecipientOrganization = "organization"
)

// TransferAccepted is the status of a transfer that needs no confirmation.
const TransferAccepted = 0

// DefaultProposer is the organization that pays for distributions.
const DefaultProposer = "元培学院"

var (
	// ErrInsufficientBalance indicates the proposer cannot cover a run.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyDistributed indicates the run already credited its recipients.
	ErrAlreadyDistributed = errors.New("already distributed")

	// ErrNoActiveDistribution indicates no distribution of a type is on.
	ErrNoActiveDistribution = errors.New("no active distribution")

	// ErrAmbiguousDistribution indicates more than one distribution of a
	// type is on.
	ErrAmbiguousDistribution = errors.New("ambiguous distribution")

	// ErrInvalidDistribution indicates a distribution with an unknown type
	// or negative amounts.
	ErrInvalidDistribution = errors.New("invalid distribution")
)

// RunIDGenerator labels distribution runs.
// Implemented by UUIDv7Generator (production) and testutil.FixedRunIDs (tests).
type RunIDGenerator interface {
	Generate() string
}

// Result summarizes one distribution run.
type Result struct {
	RunID          string
	DistributionID int64
	RunAt          time.Time
	Persons        int
	Organizations  int
	Total          int64
}

// Distributor pays points from the proposer organization to every activated
// account whose balance is at or below the distribution's cap.
type Distributor struct {
	store    *store.Store
	proposer string
	runIDs   RunIDGenerator
	logger   *slog.Logger
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithRunIDs sets the generator for run IDs.
func WithRunIDs(g RunIDGenerator) Option {
	return func(d *Distributor) {
		d.runIDs = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Distributor) {
		d.logger = l
	}
}

// NewDistributor creates a Distributor paying from the organization named
// proposer, or DefaultProposer when proposer is empty.
func NewDistributor(s *store.Store, proposer string, opts ...Option) *Distributor {
	if proposer == "" {
		proposer = DefaultProposer
	}
	d := &Distributor{
		store:    s,
		proposer: proposer,
		runIDs:   UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// recipient is one account selected for a run.
type recipient struct {
	userID int64
	id     int64
}

// Run credits every eligible person and organization for the run at time
// at. The whole run is one transaction: either every balance and transfer
// record is written or none is.
//
// Transfer IDs are derived from the proposer, recipient, amount and run
// time, so running the same distribution for the same time again fails with
// ErrAlreadyDistributed.
func (d *Distributor) Run(ctx context.Context, dist store.Distribution, at time.Time) (Result, error) {
	if err := validate(dist); err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:          d.runIDs.Generate(),
		DistributionID: dist.ID,
		RunAt:          at.UTC(),
	}
	runAt := res.RunAt.Format(time.RFC3339)
	logger := d.logger.With("run_id", res.RunID, "distribution", dist.ID, "run_at", runAt)

	err := d.store.WithTx(ctx, func(tx *store.Tx) error {
		proposer, err := tx.OrganizationByName(ctx, d.proposer)
		if err != nil {
			return fmt.Errorf("proposer: %w", err)
		}

		persons, personFilter, err := selectRecipients(ctx, tx, catalog.NaturalPerson, "person_id", dist.PerMaxPoints, 0)
		if err != nil {
			return err
		}
		orgs, orgFilter, err := selectRecipients(ctx, tx, catalog.Organization, "organization_id", dist.OrgMaxPoints, proposer.ID)
		if err != nil {
			return err
		}
		if dist.PerPoints == 0 {
			persons = nil
		}
		if dist.OrgPoints == 0 {
			orgs = nil
		}

		total := int64(len(persons))*dist.PerPoints + int64(len(orgs))*dist.OrgPoints
		if total == 0 {
			logger.Info("no recipients")
			return nil
		}
		if proposer.YQPoint < total {
			return fmt.Errorf("%w: %s has %d, run needs %d",
				ErrInsufficientBalance, proposer.Name, proposer.YQPoint, total)
		}

		message := fmt.Sprintf("%s向您发放了%d元气值，请查收！", proposer.Name, dist.PerPoints)
		personTransfers, err := credit(ctx, tx, catalog.NaturalPerson, RecipientPerson, persons, personFilter, dist.PerPoints, proposer.UserID, runAt, message)
		if err != nil {
			return err
		}
		message = fmt.Sprintf("%s向您发放了%d元气值，请查收！", proposer.Name, dist.OrgPoints)
		orgTransfers, err := credit(ctx, tx, catalog.Organization, RecipientOrganization, orgs, orgFilter, dist.OrgPoints, proposer.UserID, runAt, message)
		if err != nil {
			return err
		}

		if err := debit(ctx, tx, proposer.ID, total); err != nil {
			return err
		}

		if err := tx.InsertTransfers(ctx, append(personTransfers, orgTransfers...)); err != nil {
			if errors.Is(err, store.ErrDuplicateTransfer) {
				return fmt.Errorf("%w: distribution %d at %s", ErrAlreadyDistributed, dist.ID, runAt)
			}
			return err
		}

		res.Persons = len(persons)
		res.Organizations = len(orgs)
		res.Total = total
		return nil
	})
	if err != nil {
		logger.Error("distribution failed", "error", err)
		return Result{}, err
	}

	logger.Info("distributed points",
		"persons", res.Persons,
		"organizations", res.Organizations,
		"total", res.Total)
	return res, nil
}

func validate(dist store.Distribution) error {
	switch dist.Type {
	case Temporary, Weekly, Biweekly:
	default:
		return fmt.Errorf("%w: type %d", ErrInvalidDistribution, dist.Type)
	}
	if dist.PerPoints < 0 || dist.OrgPoints < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidDistribution)
	}
	return nil
}

// selectRecipients reads the activated rows of entity whose balance is at
// most limit, skipping the row with id exclude when it is non-zero. It
// also returns the filter that selected them.
func selectRecipients(ctx context.Context, tx *store.Tx, entity, account string, limit, exclude int64) ([]recipient, queryir.Predicate, error) {
	e, err := tx.Registry().Entity(entity)
	if err != nil {
		return nil, nil, err
	}

	activated, err := fieldref.EqualsValue(true, e.MustRef("activated"))
	if err != nil {
		return nil, nil, err
	}
	capped, err := fieldref.On(e.MustRef("yqpoint")).Compare(queryir.OpLTE, limit)
	if err != nil {
		return nil, nil, err
	}
	filter := queryir.AllOf(activated, capped)
	if exclude != 0 {
		self, err := fieldref.EqualsValue(exclude, e.MustRef(model.PrimaryKey))
		if err != nil {
			return nil, nil, err
		}
		filter = queryir.AllOf(filter, queryir.Not{Predicate: self})
	}

	userPath := fieldref.MustPath(e.MustRef(account))
	rows, err := tx.Select(ctx, queryir.Select{
		From:   entity,
		Filter: filter,
		Fields: []string{model.PrimaryKey, userPath},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("select %s recipients: %w", entity, err)
	}

	out := make([]recipient, len(rows))
	for i, row := range rows {
		out[i] = recipient{id: row.Int(model.PrimaryKey), userID: row.Int(userPath)}
	}
	return out, filter, nil
}

// credit adds amount to the balance of the rows filter selected, which
// must be exactly rcpts, and returns their transfer records.
func credit(ctx context.Context, tx *store.Tx, entity, kind string, rcpts []recipient, filter queryir.Predicate, amount, proposerUserID int64, runAt, message string) ([]store.Transfer, error) {
	if len(rcpts) == 0 {
		return nil, nil
	}

	n, err := tx.Update(ctx, queryir.Update{
		From:   entity,
		Filter: filter,
		Set:    []queryir.Assignment{queryir.Increment{Field: "yqpoint", By: amount}},
	})
	if err != nil {
		return nil, fmt.Errorf("credit %s: %w", entity, err)
	}
	if n != int64(len(rcpts)) {
		return nil, fmt.Errorf("credit %s: updated %d rows, want %d", entity, n, len(rcpts))
	}

	transfers := make([]store.Transfer, len(rcpts))
	for i, r := range rcpts {
		id, err := ir.TransferID(proposerUserID, kind, r.userID, amount, runAt)
		if err != nil {
			return nil, err
		}
		transfers[i] = store.Transfer{
			ID:            id,
			ProposerID:    proposerUserID,
			RecipientID:   r.userID,
			RecipientKind: kind,
			Amount:        amount,
			StartTime:     runAt,
			FinishTime:    runAt,
			Message:       message,
			Status:        TransferAccepted,
		}
	}
	return transfers, nil
}

func debit(ctx context.Context, tx *store.Tx, orgID, total int64) error {
	_, err := tx.Update(ctx, queryir.Update{
		From:   catalog.Organization,
		Filter: queryir.Equals{Field: model.PrimaryKey, Value: ir.IRInt(orgID)},
		Set:    []queryir.Assignment{queryir.Increment{Field: "yqpoint", By: -total}},
	})
	if err != nil {
		return fmt.Errorf("debit proposer: %w", err)
	}
	return nil
}
