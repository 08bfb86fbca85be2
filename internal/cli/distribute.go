package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/points"
)

// DistributeOptions holds flags for the distribute command.
type DistributeOptions struct {
	*RootOptions
	At string // run time, RFC 3339
}

// RunInfo is the JSON form of one distribution run.
type RunInfo struct {
	RunID          string `json:"run_id"`
	DistributionID int64  `json:"distribution_id"`
	RunAt          string `json:"run_at"`
	Persons        int    `json:"persons"`
	Organizations  int    `json:"organizations"`
	Total          int64  `json:"total"`
}

func runInfo(res points.Result) RunInfo {
	return RunInfo{
		RunID:          res.RunID,
		DistributionID: res.DistributionID,
		RunAt:          res.RunAt.UTC().Format(time.RFC3339),
		Persons:        res.Persons,
		Organizations:  res.Organizations,
		Total:          res.Total,
	}
}

// NewDistributeCommand creates the distribute command.
func NewDistributeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DistributeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "distribute <type>",
		Short: "Run the active distribution of a type once",
		Long: `Credit every activated person and organization at or below the cap
of the active distribution of <type> (0 temporary, 1 weekly, 2 biweekly),
paying from the proposer organization.

A run is identified by its time: running the same distribution for the
same --at again is refused.

Exit codes:
  0 - Points distributed
  1 - Distribution refused (already ran, insufficient balance, none active)
  2 - Command error

Examples:
  orgadmin distribute 1
  orgadmin distribute 0 --at 2024-09-02T08:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDistribute(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "run time in RFC 3339 (default now)")

	return cmd
}

func runDistribute(opts *DistributeOptions, rawType string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	typ, err := parseType(rawType)
	if err != nil {
		return formatter.Fail(err)
	}
	at := time.Now()
	if opts.At != "" {
		if at, err = time.Parse(time.RFC3339, opts.At); err != nil {
			return formatter.Fail(WrapExitError(ExitCommandError, "invalid --at", err))
		}
	}

	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(err)
	}
	s, err := opts.OpenStore()
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	ctx := cmd.Context()
	dist, err := points.Active(ctx, s, typ)
	if err != nil {
		return formatter.Fail(err)
	}

	d := points.NewDistributor(s, cfg.Points.Proposer, points.WithLogger(slog.Default().With("command", "distribute")))
	res, err := d.Run(ctx, dist, at)
	if err != nil {
		return formatter.Fail(err)
	}

	info := runInfo(res)
	if formatter.Format == "json" {
		return formatter.Success(info)
	}
	fmt.Fprintf(formatter.Writer, "✓ Distributed %d points to %d people and %d organizations\n",
		info.Total, info.Persons, info.Organizations)
	formatter.VerboseLog("run %s of distribution %d at %s", info.RunID, info.DistributionID, info.RunAt)
	return nil
}

// parseType reads a distribution type argument.
func parseType(raw string) (int, error) {
	typ, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid distribution type %q", raw))
	}
	switch typ {
	case points.Temporary, points.Weekly, points.Biweekly:
		return typ, nil
	default:
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("unknown distribution type %d", typ))
	}
}
