package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/admin"
)

// ManagerInfo is the JSON form of one manager rank.
type ManagerInfo struct {
	Pos   int      `json:"pos"`
	Title string   `json:"title"`
	Names []string `json:"names"`
}

// NewManagersCommand creates the managers command.
func NewManagersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "managers <organization>",
		Short: "List the managers of an organization",
		Long: `List the people with management rights on current positions of an
organization, grouped by rank, top rank first. Each rank is named by
the organization type's job names.

Examples:
  orgadmin managers "Chess Club"
  orgadmin managers 元培学院 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManagers(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runManagers(opts *RootOptions, orgName string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := opts.OpenStore()
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	ctx := cmd.Context()
	org, err := s.OrganizationByName(ctx, orgName)
	if err != nil {
		return formatter.Fail(err)
	}
	groups, err := admin.New(s, slog.Default()).Managers(ctx, org.ID)
	if err != nil {
		return formatter.Fail(err)
	}

	infos := make([]ManagerInfo, len(groups))
	for i, g := range groups {
		infos[i] = ManagerInfo{Pos: g.Pos, Title: g.Title, Names: g.Names}
	}
	if formatter.Format == "json" {
		return formatter.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintf(formatter.Writer, "%s has no managers\n", org.Name)
		return nil
	}
	rows := make([][]string, len(infos))
	for i, g := range infos {
		rows[i] = []string{fmt.Sprint(g.Pos), g.Title, strings.Join(g.Names, ", ")}
	}
	formatter.Table([]string{"POS", "TITLE", "MANAGERS"}, rows)
	return nil
}
