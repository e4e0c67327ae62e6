package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // config file path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultConfigFile is read when --config is not given.
const DefaultConfigFile = "objectagent.yaml"

// NewRootCommand creates the root command for the objectagent CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "objectagent",
		Short: "objectagent - storage-agnostic object persistence",
		Long: `Find, query and persist objects through one agent contract, whether they
live in SQLite, a hierarchical document workspace or an in-memory collection.

Entity types and backends are declared in a YAML config file. Queries are CUE,
YAML or JSON documents.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", DefaultConfigFile, "config file")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewCapabilitiesCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger writes agent logs to w: debug records with --verbose, warnings
// otherwise.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// open loads the config and opens its backends. Failures are reported
// through f.
func (o *RootOptions) open(f *OutputFormatter) (*Backends, error) {
	cfg, err := LoadConfig(o.Config)
	if err != nil {
		return nil, f.Fail(&LoadError{Code: ErrCodeConfig, Message: err.Error()})
	}
	b, err := OpenBackends(cfg, o.logger(f.GetErrWriter()))
	if err != nil {
		return nil, f.Fail(err)
	}
	for _, e := range b.Registry.Entries() {
		f.VerboseLog("Registered agent %s", e.Name)
	}
	return b, nil
}
