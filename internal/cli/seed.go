package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/fixture"
)

// SeedResult counts the rows a fixture created.
type SeedResult struct {
	Fixture       string `json:"fixture"`
	Users         int    `json:"users"`
	People        int    `json:"people"`
	Organizations int    `json:"organizations"`
	Positions     int    `json:"positions"`
	Distributions int    `json:"distributions"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a fixture into the database",
		Long: `Load organization types, organizations, people, positions and
distributions from a fixture file. The whole fixture is applied in one
transaction; a fixture naming rows that already exist fails without
changes.

Examples:
  orgadmin seed campus.yaml
  orgadmin seed campus.yaml --db /tmp/campus.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	f, err := fixture.Load(path)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, "invalid fixture", err))
	}

	s, err := opts.OpenStore()
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	ids, err := f.Apply(cmd.Context(), s)
	if err != nil {
		return formatter.Fail(err)
	}

	result := SeedResult{
		Fixture:       path,
		Users:         len(ids.Users),
		People:        len(ids.People),
		Organizations: len(ids.Organizations),
		Positions:     len(ids.Positions),
		Distributions: len(ids.Distributions),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Seeded %s: %d people, %d organizations, %d positions, %d distributions\n",
		path, result.People, result.Organizations, result.Positions, result.Distributions)
	return nil
}
