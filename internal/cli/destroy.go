package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/state"
)

// DestroyResult is the JSON payload of a destroy pass.
type DestroyResult struct {
	Generation state.Generation `json:"generation"`
	Deleted    []model.Key      `json:"deleted"`
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down all live resources",
		Long: `Tear down all live resources.

Deletes every resource in the last recorded snapshot, in the exact
reverse of the recorded apply order, so dependents are removed before
their dependencies. The manifest is not consulted; the recorded order
is authoritative. Fail-fast like apply: a delete failure stops the
pass and the remaining resources stay recorded.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDestroy(rootOpts, cmd)
		},
	}

	return cmd
}

func runDestroy(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	e, err := openEnv(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}
	defer e.Close()

	if len(e.Live.Resources) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(DestroyResult{Generation: e.Live.Generation})
		}
		fmt.Fprintln(formatter.Writer, "Nothing to destroy.")
		return nil
	}

	// An empty desired set turns the whole snapshot into deletes,
	// sequenced by the recorded order in reverse.
	desired := state.Desired{Generation: e.Live.Generation + 1, Resources: model.NewResourceSet()}
	p, err := plan.Compute(desired, e.Live, e.Schemas, e.Order)
	if err != nil {
		return formatter.fail(ExitFailure, ErrCodeReconcile, err.Error(), nil)
	}

	applier := plan.NewApplier(e.Providers, e.Log)
	res, applyErr := applier.Apply(ctx, desired, e.Live, p)

	if err := e.Store.SaveSnapshot(ctx, res.Live, remainingOrder(e.Order, res.Live), time.Now()); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}

	if applyErr != nil {
		return formatter.fail(ExitFailure, ErrCodeReconcile, applyErr.Error(), map[string]any{
			"generation": desired.Generation,
			"deleted":    res.Deleted,
		})
	}

	result := DestroyResult{Generation: desired.Generation, Deleted: res.Deleted}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Destroyed %d resource(s) (generation %d)\n",
		len(result.Deleted), result.Generation)
	return nil
}

// remainingOrder filters the recorded apply order down to resources
// still live, preserving positions, so a partial destroy keeps a usable
// teardown order for the next attempt.
func remainingOrder(order []model.Key, live state.Live) []model.Key {
	var out []model.Key
	for _, k := range order {
		if live.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}
