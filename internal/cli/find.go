package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/objectagent/internal/agenterr"
	"github.com/roach88/objectagent/internal/metadata"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Agent string
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <type> <id>...",
		Short: "Load objects by identifier",
		Long: `Load one or more objects of an entity type by identifier. Objects are
printed in the order of the identifiers; a missing identifier fails the command.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Agent, "agent", "a", "", "agent name (default: resolved by entity type)")

	return cmd
}

func runFind(opts *FindOptions, entityType string, rawIDs []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	backends, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer backends.Close()

	a, err := resolveAgent(backends.Registry, opts.Agent, entityType)
	if err != nil {
		return formatter.Fail(err)
	}
	class, ok := backends.Classes.Class(entityType)
	if !ok {
		return formatter.Fail(agenterr.InvalidArgument("no class registered for type %q", entityType))
	}
	ids, err := identifiers(class, rawIDs)
	if err != nil {
		return formatter.Fail(err)
	}

	var objects []any
	if len(ids) == 1 {
		obj, err := a.Find(ids[0], entityType)
		if err != nil {
			return formatter.Fail(err)
		}
		objects = []any{obj}
	} else if objects, err = a.FindMany(ids, entityType); err != nil {
		return formatter.Fail(err)
	}

	records := make([]Record, len(objects))
	for i, obj := range objects {
		if records[i], err = renderObject(backends.Classes, a, obj); err != nil {
			return formatter.Fail(err)
		}
	}
	if formatter.Format == "json" {
		return formatter.Success(records)
	}
	return writeRecords(formatter.Writer, records)
}

// identifiers converts command line identifiers to the identifier field
// type of class.
func identifiers(class *metadata.Class, raw []string) ([]any, error) {
	f, ok := class.SingleID()
	if !ok {
		return nil, agenterr.CompositeIdentifier("cli", class.Name(), class.IDFieldNames())
	}
	ids := make([]any, len(raw))
	for i, s := range raw {
		v, err := metadata.Convert(s, f.Type)
		if err != nil {
			return nil, agenterr.InvalidArgument("identifier %q: %v", s, err)
		}
		ids[i] = v.Interface()
	}
	return ids, nil
}
