package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/state"
)

// StatusResult is the JSON payload of the status command.
type StatusResult struct {
	Generation state.Generation `json:"generation"`
	Resources  []string         `json:"resources"`
	Service    string           `json:"service"`
	Revision   int              `json:"revision"`
	Instances  []string         `json:"instances,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current generation and service state",
		Long: `Show the current generation and service state.

Reads the last recorded snapshot and the service's deployment record:
live resources by key, the revision the service is on, and its running
instances. Read-only.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	stack, err := loadManifest(opts, formatter)
	if err != nil {
		return err
	}

	e, err := openEnv(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}
	defer e.Close()

	dep, found, err := e.Store.LoadServiceState(ctx, stack.Service.Name)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}

	result := StatusResult{
		Generation: e.Live.Generation,
		Resources:  make([]string, 0, len(e.Live.Resources)),
		Service:    stack.Service.Name,
	}
	for _, k := range e.Live.Keys() {
		result.Resources = append(result.Resources, k.String())
	}
	if found {
		result.Revision = dep.Revision
		for _, inst := range dep.Instances {
			result.Instances = append(result.Instances, inst.ID)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Generation: %d\n", result.Generation)
	fmt.Fprintf(formatter.Writer, "Resources:  %d\n", len(result.Resources))
	for _, r := range result.Resources {
		fmt.Fprintf(formatter.Writer, "  %s\n", r)
	}
	fmt.Fprintf(formatter.Writer, "Service:    %s\n", result.Service)
	if !found {
		fmt.Fprintln(formatter.Writer, "No deployments recorded.")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "Revision:   %d\n", result.Revision)
	fmt.Fprintf(formatter.Writer, "Instances:  %d\n", len(result.Instances))
	for _, id := range result.Instances {
		fmt.Fprintf(formatter.Writer, "  %s\n", id)
	}
	return nil
}
