package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/lookup"
	"github.com/roach88/orgadmin/internal/queryir"
)

// PathOptions holds flags for the path command.
type PathOptions struct {
	*RootOptions
	Lax bool // skip the chain check
}

// PathResult is the resolved form of a lookup key.
type PathResult struct {
	Entity   string        `json:"entity"`
	Key      string        `json:"key"`
	Path     string        `json:"path"`
	Segments []SegmentInfo `json:"segments"`
}

// SegmentInfo describes one field reference of a chain.
type SegmentInfo struct {
	Kind    string `json:"kind"`
	Owner   string `json:"owner,omitempty"`
	Name    string `json:"name"`
	Segment string `json:"segment"`
}

// NewPathCommand creates the path command.
func NewPathCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PathOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "path <entity> <key>",
		Short: "Resolve a lookup key to a query path",
		Long: `Resolve a dotted lookup key against an entity and print the query
path it compiles to.

Each attribute becomes a field reference. Raw ids ("org_id") resolve to
their storage column, relations to their name, and reverse accessors are
rejected. The chain is checked so that every step starts where the
previous relation ends; --lax skips that check.

Examples:
  orgadmin path Position person.person_id.username
  orgadmin path NaturalPerson yqpoint__lte
  orgadmin path Position org_id --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPath(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Lax, "lax", false, "do not check that the chain follows relations")

	return cmd
}

func runPath(opts *PathOptions, entity, rawKey string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := opts.Registry()
	if err != nil {
		return formatter.Fail(err)
	}
	key, err := lookup.ParseKey(rawKey)
	if err != nil {
		return formatter.Fail(err)
	}

	var refs []fieldref.Ref
	if opts.Lax {
		refs, err = reg.Refs(entity, key.Attrs...)
	} else {
		refs, err = key.Refs(reg, entity)
	}
	if err != nil {
		return formatter.Fail(err)
	}

	path, err := fieldref.PathOf(refs...)
	if err != nil {
		return formatter.Fail(err)
	}
	if key.Op != "" {
		path += queryir.PathSeparator + key.Op
	}

	result := PathResult{Entity: entity, Key: rawKey, Path: path}
	for _, ref := range refs {
		info, err := describeRef(ref)
		if err != nil {
			return formatter.Fail(err)
		}
		result.Segments = append(result.Segments, info)
		formatter.VerboseLog("%s %s.%s → %s", info.Kind, info.Owner, info.Name, info.Segment)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, path)
	return nil
}

func describeRef(ref fieldref.Ref) (SegmentInfo, error) {
	seg, err := fieldref.Segment(ref)
	if err != nil {
		return SegmentInfo{}, err
	}
	info := SegmentInfo{Segment: seg}
	switch r := ref.(type) {
	case fieldref.ScalarField:
		info.Kind, info.Owner, info.Name = "scalar", r.Owner, r.Name
	case fieldref.ForeignIndexField:
		info.Kind, info.Owner, info.Name = "foreign_index", r.Owner, r.AttName()
	case fieldref.ForwardRelationField:
		info.Kind, info.Owner, info.Name = "relation", r.Owner, r.Name
	default:
		info.Kind, info.Name = "raw", seg
	}
	return info, nil
}
