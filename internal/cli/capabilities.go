package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/objectagent/internal/capability"
)

// AgentCapabilities describes one registered agent.
type AgentCapabilities struct {
	Agent        string         `json:"agent"`
	Types        []string       `json:"types"`
	Capabilities map[string]any `json:"capabilities"`
}

// NewCapabilitiesCommand creates the capabilities command.
func NewCapabilitiesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List agents, their entity types and capabilities",
		Long: `List the registered agents in resolution order with the entity types they
support and their capabilities after config narrowing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapabilities(rootOpts, cmd)
		},
	}
}

func runCapabilities(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	backends, err := opts.open(formatter)
	if err != nil {
		return err
	}
	defer backends.Close()

	var result []AgentCapabilities
	for _, e := range backends.Registry.Entries() {
		ac := AgentCapabilities{Agent: e.Name, Types: []string{}, Capabilities: e.Agent.Capabilities().Map()}
		for _, class := range backends.Classes.Classes() {
			if e.Agent.Supports(class.Name()) {
				ac.Types = append(ac.Types, class.Name())
			}
		}
		result = append(result, ac)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, ac := range result {
		fmt.Fprintf(formatter.Writer, "%s\n", ac.Agent)
		fmt.Fprintf(formatter.Writer, "  %-18s %s\n", "types:", strings.Join(ac.Types, ", "))
		fmt.Fprintf(formatter.Writer, "  %-18s %s\n", "comparators:", strings.Join(ac.Capabilities[capability.KeySupportedComparators].([]string), ", "))
		for _, key := range []string{
			capability.KeyCanSetParent,
			capability.KeyCanQueryCount,
			capability.KeyCanQueryJoin,
			capability.KeyCanQuerySelect,
			capability.KeyCanQueryHaving,
		} {
			fmt.Fprintf(formatter.Writer, "  %-18s %v\n", key+":", ac.Capabilities[key])
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
