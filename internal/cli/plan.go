package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/graph"
	"github.com/roach88/flotilla/internal/plan"
	"github.com/roach88/flotilla/internal/state"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Show what apply would change.

Diffs the manifest's resource graph against the last recorded live
snapshot and prints the planned action for every resource: create,
update, replace (immutable attribute changed), delete, or no-op.
Read-only; nothing is provisioned and no snapshot is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, cmd)
		},
	}

	return cmd
}

func runPlan(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	stack, err := loadManifest(opts, formatter)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}
	defer e.Close()

	formatter.VerboseLog("Planning against generation %d (%d live resources)",
		e.Live.Generation, len(e.Live.Resources))

	desired := state.Desired{Generation: e.Live.Generation + 1, Resources: stack.Resources}
	p, err := plan.Compute(desired, e.Live, e.Schemas, e.Order)
	if err != nil {
		code := ErrCodeValidate
		if graph.IsCycleError(err) {
			code = ErrCodeCycle
		}
		return formatter.fail(ExitFailure, code, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(p)
	}
	renderPlan(formatter, p)
	return nil
}

var actionGlyphs = map[plan.Action]string{
	plan.ActionCreate:  "+",
	plan.ActionUpdate:  "~",
	plan.ActionReplace: "±",
	plan.ActionDelete:  "-",
	plan.ActionNoOp:    " ",
}

func renderPlan(formatter *OutputFormatter, p *plan.Plan) {
	for _, c := range p.Changes {
		if c.Action == plan.ActionNoOp && !formatter.Verbose {
			continue
		}
		fmt.Fprintf(formatter.Writer, "%s %s %s\n", actionGlyphs[c.Action], c.Action, c.Key)
		if !formatter.Verbose || c.Action == plan.ActionDelete {
			continue
		}
		for _, attr := range sortedDiffAttrs(c.Diff) {
			d := c.Diff[attr]
			switch {
			case d.Before == nil:
				fmt.Fprintf(formatter.Writer, "    %s = %v\n", attr, d.After)
			case d.ForcesReplace:
				fmt.Fprintf(formatter.Writer, "    %s: %v -> %v (forces replace)\n", attr, d.Before, d.After)
			default:
				fmt.Fprintf(formatter.Writer, "    %s: %v -> %v\n", attr, d.Before, d.After)
			}
		}
	}

	s := p.Summary
	if p.AllNoOp() {
		fmt.Fprintf(formatter.Writer, "No changes. Live state matches the manifest (%d resources).\n", s.NoOp)
		return
	}
	fmt.Fprintf(formatter.Writer,
		"Plan: %d to create, %d to update, %d to replace, %d to delete, %d unchanged.\n",
		s.Create, s.Update, s.Replace, s.Delete, s.NoOp)
}

func sortedDiffAttrs(diff map[string]plan.FieldDiff) []string {
	attrs := make([]string, 0, len(diff))
	for a := range diff {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	return attrs
}
