package cli

import (
	"fmt"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/objectagent/internal/agent"
	"github.com/roach88/objectagent/internal/agenterr"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Agent string
}

// LoadResult reports the objects persisted per agent.
type LoadResult struct {
	Agents map[string][]any `json:"agents"` // identifiers, in record order
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <records-file>",
		Short: "Persist records from a file",
		Long: `Persist the records of a CUE, YAML or JSON file mapping entity types to
lists of field maps, then flush every agent that received objects.

A parent field holds the identifier of an object already stored by the same
agent. Types are loaded in name order; one failed flush leaves the objects of
that agent unstored.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Agent, "agent", "a", "", "agent name (default: resolved by entity type)")

	return cmd
}

func runLoad(opts *LoadOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	doc, err := LoadDocument(path)
	if err != nil {
		return formatter.Fail(err)
	}
	backends, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer backends.Close()

	types := make([]string, 0, len(doc))
	for t := range doc {
		types = append(types, t)
	}
	sort.Strings(types)

	var order []agent.Agent
	persisted := make(map[agent.Agent][]any)
	for _, entityType := range types {
		a, err := resolveAgent(backends.Registry, opts.Agent, entityType)
		if err != nil {
			return formatter.Fail(err)
		}
		objects, err := buildObjects(backends, a, entityType, doc[entityType])
		if err != nil {
			return formatter.Fail(err)
		}
		for _, obj := range objects {
			if err := a.Persist(obj); err != nil {
				return formatter.Fail(err)
			}
		}
		if !slices.Contains(order, a) {
			order = append(order, a)
		}
		persisted[a] = append(persisted[a], objects...)
	}

	result := LoadResult{Agents: make(map[string][]any)}
	for _, a := range order {
		name := backends.Registry.Name(a)
		if err := a.Flush(); err != nil {
			return formatter.Fail(fmt.Errorf("flush %s: %w", name, err))
		}
		for _, obj := range persisted[a] {
			id, err := a.Identifier(obj)
			if err != nil {
				return formatter.Fail(err)
			}
			result.Agents[name] = append(result.Agents[name], id)
		}
		formatter.VerboseLog("Flushed %d object(s) to %s", len(persisted[a]), name)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, a := range order {
		name := backends.Registry.Name(a)
		fmt.Fprintf(formatter.Writer, "✓ %s: %d object(s) %v\n", name, len(result.Agents[name]), result.Agents[name])
	}
	return nil
}

// buildObjects creates one object per record. Parent identifiers are
// resolved through a as the type named by the field's ref, or as
// entityType when the field has none and a is not hierarchical.
func buildObjects(b *Backends, a agent.Agent, entityType string, raw any) ([]any, error) {
	class, ok := b.Classes.Class(entityType)
	if !ok {
		return nil, agenterr.InvalidArgument("records reference unknown type %q", entityType)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, agenterr.InvalidArgument("records of %q must be a list, got %T", entityType, raw)
	}
	parent, hasParent := class.ParentField()
	parentType := parent.Ref
	if parentType == "" && !a.Capabilities().CanSetParent() {
		parentType = entityType
	}

	objects := make([]any, 0, len(list))
	for i, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, agenterr.InvalidArgument("%s[%d] must be a map, got %T", entityType, i, item)
		}
		obj := class.New()
		for field, v := range record {
			if hasParent && field == parent.Name && v != nil {
				p, err := a.Find(v, parentType)
				if err != nil {
					return nil, fmt.Errorf("%s[%d] parent: %w", entityType, i, err)
				}
				v = p
			}
			if err := class.Set(obj, field, v); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", entityType, i, err)
			}
		}
		objects = append(objects, obj)
	}
	return objects, nil
}
