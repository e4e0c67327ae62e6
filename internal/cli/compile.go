package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/objectagent/internal/query"
)

// CompiledQuery is the native form of a query on one backend. Error is set
// instead of Native when the backend rejects the query.
type CompiledQuery struct {
	Agent  string    `json:"agent"`
	Native string    `json:"native,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CompilationResult holds the native forms of a query on every backend that
// supports its entity type, in registration order.
type CompilationResult struct {
	EntityType string          `json:"entity_type"`
	Backends   []CompiledQuery `json:"backends"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Show the native form of a query on each backend",
		Long: `Compile a query document on every configured backend that supports its
entity type, without running it.

SQL backends print the statement and its named parameters, the document
backend prints its JCR-SQL2 rendering, the memory backend describes its scan.
The command fails only when no backend accepts the query.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], cmd)
		},
	}
}

func runCompile(opts *RootOptions, path string, cmd *cobra.Command) error {
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

	result, accepted := compileEverywhere(backends, q)
	if len(result.Backends) == 0 {
		_, err := backends.Registry.FindFor(q.EntityType())
		return formatter.Fail(err)
	}

	if err := outputCompileSuccess(formatter, result); err != nil {
		return err
	}
	if accepted == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("no backend accepts the query on %q", q.EntityType()))
	}
	return nil
}

func compileEverywhere(b *Backends, q *query.Query) (*CompilationResult, int) {
	result := &CompilationResult{EntityType: q.EntityType()}
	accepted := 0
	for _, e := range b.Registry.Entries() {
		if !e.Agent.Supports(q.EntityType()) {
			continue
		}
		cq := CompiledQuery{Agent: e.Name}
		ex, ok := explainer(e.Agent)
		if !ok {
			cq.Error = &CLIError{Code: ErrCodeGeneric, Message: "agent cannot explain queries"}
			result.Backends = append(result.Backends, cq)
			continue
		}
		native, err := ex.Explain(q)
		if err != nil {
			code, message, details, _ := describeError(err)
			cq.Error = &CLIError{Code: code, Message: message, Details: details}
		} else {
			cq.Native = native
			accepted++
		}
		result.Backends = append(result.Backends, cq)
	}
	return result, accepted
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Query on %s\n\n", result.EntityType)
	for _, cq := range result.Backends {
		if cq.Error != nil {
			fmt.Fprintf(formatter.Writer, "✗ %s: %s: %s\n\n", cq.Agent, cq.Error.Code, cq.Error.Message)
			continue
		}
		fmt.Fprintf(formatter.Writer, "✓ %s:\n  %s\n\n", cq.Agent, cq.Native)
	}
	return nil
}
