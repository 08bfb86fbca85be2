package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/model"
)

// ModelsOptions holds flags for the models command.
type ModelsOptions struct {
	*RootOptions
	Output string // output file path
}

// EntityInfo describes one entity for output.
type EntityInfo struct {
	Name   string      `json:"name"`
	Table  string      `json:"table"`
	Fields []FieldInfo `json:"fields"`
}

// FieldInfo describes one attribute for output.
type FieldInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Type    string `json:"type,omitempty"`
	Related string `json:"related,omitempty"`
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModelsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Compile and list the entity models",
		Long: `Compile the CUE model definitions and list every entity with its
attributes, including the reverse accessors synthesized from related_name.

Uses the built-in models unless --models or the models config key names a
CUE file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the model listing as JSON to a file")

	return cmd
}

func runModels(opts *ModelsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := opts.Registry()
	if err != nil {
		return formatter.Fail(err)
	}

	infos := describeEntities(reg)
	formatter.VerboseLog("Compiled %d entities", len(infos))

	if opts.Output != "" {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return formatter.Fail(err)
		}
		if err := os.WriteFile(opts.Output, data, 0644); err != nil {
			return formatter.Fail(WrapExitError(ExitCommandError, "writing output file", err))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d entities\n\n", len(infos))
	for _, e := range infos {
		fmt.Fprintf(w, "%s (%s)\n", e.Name, e.Table)
		rows := make([][]string, len(e.Fields))
		for i, f := range e.Fields {
			target := f.Type
			if f.Related != "" {
				target = "→ " + f.Related
			}
			rows[i] = []string{f.Name, f.Kind, target}
		}
		formatter.Table([]string{"FIELD", "KIND", "TYPE"}, rows)
		fmt.Fprintln(w)
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "Wrote model listing to %s\n", opts.Output)
	}
	return nil
}

func describeEntities(reg *model.Registry) []EntityInfo {
	entities := reg.Entities()
	infos := make([]EntityInfo, len(entities))
	for i, e := range entities {
		fields := make([]FieldInfo, len(e.Fields))
		for j, f := range e.Fields {
			fields[j] = FieldInfo{
				Name:    f.Name,
				Kind:    string(f.Kind),
				Type:    f.Type,
				Related: f.Related,
			}
		}
		infos[i] = EntityInfo{Name: e.Name, Table: e.Table, Fields: fields}
	}
	return infos
}
