package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // state database path
	Manifest string // stack manifest path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the flotilla CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "flotilla",
		Short: "Flotilla - declarative container deployment",
		Long: `Flotilla provisions declared cloud resources and deploys
multi-container services onto them: plan and reconcile the resource
graph, gate container startup on health, and roll services onto new
revisions without dropping traffic.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags; defaults may come from the environment.
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", envDefault("FLOTILLA_FORMAT", "text"), "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", envDefault("FLOTILLA_DB", "flotilla.db"), "state database path")
	cmd.PersistentFlags().StringVarP(&opts.Manifest, "manifest", "f", envDefault("FLOTILLA_MANIFEST", "stack.cue"), "stack manifest path")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))
	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// envDefault returns the environment variable's value when set,
// otherwise the fallback.
func envDefault(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
