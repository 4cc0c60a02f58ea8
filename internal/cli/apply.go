package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/graph"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/state"
)

// ApplyResult is the JSON payload of a successful apply.
type ApplyResult struct {
	Generation state.Generation `json:"generation"`
	Applied    []model.Key      `json:"applied"`
	Deleted    []model.Key      `json:"deleted"`
	Summary    plan.Summary     `json:"summary"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile live resources with the manifest",
		Long: `Reconcile live resources with the manifest.

Computes the plan against the last recorded snapshot and executes it:
creates, updates, replaces, and deletes resources through the provider
in dependency order. The pass is fail-fast; on error everything
confirmed before the failure is kept and recorded, nothing is rolled
back. A new snapshot and its apply order are written on every pass,
successful or partial.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, cmd)
		},
	}

	return cmd
}

func runApply(opts *RootOptions, cmd *cobra.Command) error {
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

	desired := state.Desired{Generation: e.Live.Generation + 1, Resources: stack.Resources}
	p, err := plan.Compute(desired, e.Live, e.Schemas, e.Order)
	if err != nil {
		code := ErrCodeValidate
		if graph.IsCycleError(err) {
			code = ErrCodeCycle
		}
		return formatter.fail(ExitFailure, code, err.Error(), nil)
	}

	if p.AllNoOp() {
		if formatter.Format == "json" {
			return formatter.Success(ApplyResult{Generation: e.Live.Generation, Summary: p.Summary})
		}
		fmt.Fprintf(formatter.Writer, "No changes. Live state matches the manifest (%d resources).\n", p.Summary.NoOp)
		return nil
	}

	applier := plan.NewApplier(e.Providers, e.Log)
	res, applyErr := applier.Apply(ctx, desired, e.Live, p)

	// Record what actually happened, even on a partial pass, so the
	// next plan diffs against reality and destroy sees the full order.
	if err := e.Store.SaveSnapshot(ctx, res.Live, res.Order, time.Now()); err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}

	if applyErr != nil {
		return formatter.fail(ExitFailure, ErrCodeReconcile, applyErr.Error(), map[string]any{
			"generation": desired.Generation,
			"applied":    res.Applied,
			"deleted":    res.Deleted,
		})
	}

	result := ApplyResult{
		Generation: desired.Generation,
		Applied:    res.Applied,
		Deleted:    res.Deleted,
		Summary:    p.Summary,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Applied generation %d: %d changed, %d deleted, %d unchanged\n",
		result.Generation, len(result.Applied), len(result.Deleted), p.Summary.NoOp)
	return nil
}
