package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/objectagent/internal/agent"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Agent string // agent name; empty resolves by entity type
	Count bool   // print the unpaginated count instead of the results
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	Agent   string   `json:"agent"`
	Records []Record `json:"records,omitempty"`
	Count   *int     `json:"count,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query-file>",
		Short: "Run a query document",
		Long: `Run a query document against the first agent supporting its entity type,
or against the agent named with --agent.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Agent, "agent", "a", "", "agent name (default: resolved by entity type)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of results ignoring pagination")

	return cmd
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	q, err := LoadQuery(path)
	if err != nil {
		return formatter.Fail(err)
	}
	backends, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer backends.Close()

	a, err := resolveAgent(backends.Registry, opts.Agent, q.EntityType())
	if err != nil {
		return formatter.Fail(err)
	}
	name := backends.Registry.Name(a)
	formatter.VerboseLog("Querying %s on agent %s", q.EntityType(), name)

	if opts.Count {
		n, err := a.QueryCount(q)
		if err != nil {
			return formatter.Fail(err)
		}
		if formatter.Format == "json" {
			return formatter.Success(QueryResult{Agent: name, Count: &n})
		}
		return formatter.Success(n)
	}

	cursor, err := a.Query(q)
	if err != nil {
		return formatter.Fail(err)
	}
	objects, err := cursor.All()
	if err != nil {
		return formatter.Fail(err)
	}
	records := make([]Record, 0, len(objects))
	for _, obj := range objects {
		r, err := renderObject(backends.Classes, a, obj)
		if err != nil {
			return formatter.Fail(err)
		}
		records = append(records, r)
	}

	if formatter.Format == "json" {
		return formatter.Success(QueryResult{Agent: name, Records: records})
	}
	fmt.Fprintf(formatter.Writer, "%d result(s) from %s\n", len(records), name)
	if len(records) == 0 {
		return nil
	}
	return writeRecords(formatter.Writer, records)
}

// resolveAgent returns the agent named name, or the agent for entityType
// when name is empty.
func resolveAgent(r *agent.Registry, name, entityType string) (agent.Agent, error) {
	if name != "" {
		return r.Get(name)
	}
	return r.FindFor(entityType)
}
