package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/admin"
)

// AdminOptions holds flags for the admin command.
type AdminOptions struct {
	*RootOptions
	Where []string // key=value lookups selecting the rows
	Value string   // the action's argument
	All   bool     // allow an empty selection filter
}

// BulkInfo is the JSON form of a bulk action run.
type BulkInfo struct {
	Action   string `json:"action"`
	Entity   string `json:"entity"`
	Filter   string `json:"filter"`
	Selected int    `json:"selected"`
	Rows     int64  `json:"rows"`
}

// NewAdminCommand creates the admin command.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdminOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "admin <action>",
		Short: "Run a bulk action on the selected rows",
		Long: fmt.Sprintf(`Run a bulk action on every row the --where lookups select. Without
--where the action needs --all and applies to every row of its entity.

Actions: %s

Examples:
  orgadmin admin demote --where person.person_id.username=bob
  orgadmin admin set_identity --where name__in="[Alice, Bob]" --value 1
  orgadmin admin set_activated --where oname=Choir --value false
  ORGADMIN_ADMIN_ACADEMIC_YEAR=2025 orgadmin admin refresh --where year=2024
  orgadmin admin subscribe_all --all`, strings.Join(admin.ActionNames(), ", ")),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "lookup filter as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Value, "value", "", "value for actions that set an attribute")
	cmd.Flags().BoolVar(&opts.All, "all", false, "apply to every row when no --where is given")

	return cmd
}

func runAdmin(opts *AdminOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	act, ok := admin.LookupAction(name)
	if !ok {
		return formatter.Fail(NewExitError(ExitCommandError,
			fmt.Sprintf("unknown action %q: must be one of %s", name, strings.Join(admin.ActionNames(), ", "))))
	}
	if len(opts.Where) == 0 && !opts.All {
		return formatter.Fail(NewExitError(ExitCommandError, "no --where given: pass --all to select every row"))
	}

	where, err := parseWhere(opts.Where)
	if err != nil {
		return formatter.Fail(err)
	}
	var value any
	if act.Value != "" {
		if !cmd.Flags().Changed("value") {
			return formatter.Fail(NewExitError(ExitCommandError, fmt.Sprintf("%s needs --value (%s)", act.Name, act.Value)))
		}
		if value, err = parseValue(opts.Value); err != nil {
			return formatter.Fail(err)
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

	a := admin.New(s, slog.Default().With("command", "admin"), admin.WithAcademicYear(cfg.Admin.AcademicYear))
	res, err := a.Bulk(cmd.Context(), act, where, value)
	if err != nil {
		return formatter.Fail(err)
	}

	info := BulkInfo{
		Action:   act.Name,
		Entity:   act.Entity,
		Filter:   res.Filter,
		Selected: res.Selected,
		Rows:     res.Rows,
	}
	if formatter.Format == "json" {
		return formatter.Success(info)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s: %d of %d selected %s rows changed\n",
		info.Action, info.Rows, info.Selected, info.Entity)
	formatter.VerboseLog("filter %s", info.Filter)
	return nil
}
