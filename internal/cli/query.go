package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/admin"
	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/lookup"
	"github.com/roach88/orgadmin/internal/queryir"
	"github.com/roach88/orgadmin/internal/querysql"
	"github.com/roach88/orgadmin/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Where  []string // key=value lookups
	Fields []string // dotted field names
	SQL    bool     // print the compiled SQL instead of running it
}

// QueryResult is the JSON form of a query.
type QueryResult struct {
	Entity  string           `json:"entity"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// SQLResult is the JSON form of a compiled query.
type SQLResult struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// listDisplay holds the default columns per entity when no --field is given.
var listDisplay = map[string][]string{
	catalog.NaturalPerson: admin.PersonListDisplay,
	catalog.Organization:  admin.OrganizationListDisplay,
	catalog.Position:      admin.PositionListDisplay,
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "List rows matching lookup filters",
		Long: `List the rows of an entity that match every --where lookup.

Lookup keys are dotted chains with an optional operator suffix
(lt, lte, gt, gte, ne, in). Values are read as YAML, so "20" is a
number and "[a, b]" a list. Fields default to the entity's list display,
or to all of its columns. The Position list display also shows pos_name,
the title of each rank.

Examples:
  orgadmin query Position --where person.person_id.username=alice
  orgadmin query NaturalPerson --where yqpoint__lte=20 --field name --field yqpoint
  orgadmin query Organization --where otype.otype_name=Club --sql`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Where, "where", "w", nil, "lookup filter as key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Fields, "field", "f", nil, "field to show (repeatable)")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "print the compiled SQL without running it")

	return cmd
}

func runQuery(opts *QueryOptions, entity string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := opts.Registry()
	if err != nil {
		return formatter.Fail(err)
	}
	where, err := parseWhere(opts.Where)
	if err != nil {
		return formatter.Fail(err)
	}
	filter, err := lookup.Where(reg, entity, where)
	if err != nil {
		return formatter.Fail(err)
	}

	fields := listDisplay[entity]
	if len(opts.Fields) > 0 {
		if fields, err = lookup.Fields(reg, entity, opts.Fields); err != nil {
			return formatter.Fail(err)
		}
	}
	q := queryir.Select{From: entity, Filter: filter, Fields: fields}

	compiler := querysql.NewSQLCompiler(reg)
	if opts.SQL {
		sql, params, err := compiler.Compile(q)
		if err != nil {
			return formatter.Fail(err)
		}
		if params == nil {
			params = []any{}
		}
		if formatter.Format == "json" {
			return formatter.Success(SQLResult{SQL: sql, Params: params})
		}
		fmt.Fprintln(formatter.Writer, sql)
		if len(params) > 0 {
			fmt.Fprintf(formatter.Writer, "-- params: %v\n", params)
		}
		return nil
	}

	columns, err := compiler.Columns(q)
	if err != nil {
		return formatter.Fail(err)
	}

	s, err := opts.OpenStore()
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	rows, err := s.Select(cmd.Context(), q)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("%d rows of %s", len(rows), entity)

	if entity == catalog.Position && len(opts.Fields) == 0 {
		if err := admin.New(s, nil).NameRanks(cmd.Context(), rows); err != nil {
			return formatter.Fail(err)
		}
		columns = withRankName(columns)
	}

	if formatter.Format == "json" {
		out := QueryResult{Entity: entity, Columns: columns, Rows: make([]map[string]any, len(rows))}
		for i, row := range rows {
			out.Rows[i] = row
		}
		return formatter.Success(out)
	}

	formatter.Table(columns, tableRows(columns, rows))
	fmt.Fprintf(formatter.Writer, "(%d rows)\n", len(rows))
	return nil
}

// withRankName places the rank title column after pos.
func withRankName(columns []string) []string {
	out := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		out = append(out, col)
		if col == "pos" {
			out = append(out, admin.PositionNameColumn)
		}
	}
	return out
}

func tableRows(columns []string, rows []store.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, col := range columns {
			switch v := row[col].(type) {
			case nil:
				cells[j] = "NULL"
			case []byte:
				cells[j] = string(v)
			default:
				cells[j] = fmt.Sprint(v)
			}
		}
		out[i] = cells
	}
	return out
}
