package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/compiler"
	"github.com/roach88/flotilla/internal/graph"
	"github.com/roach88/flotilla/internal/model"
)

// ValidationResult holds manifest validation results.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	Stack      string `json:"stack,omitempty"`
	Resources  int    `json:"resources,omitempty"`
	Containers int    `json:"containers,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the stack manifest without touching state",
		Long: `Validate the stack manifest without touching state.

Compiles the CUE manifest, checks every resource type and reference
against the builtin schemas, validates the task definition and service,
and verifies the resource graph is acyclic. No provider or database
access.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	src, err := os.ReadFile(opts.Manifest)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("cannot read manifest %s", opts.Manifest), err.Error())
	}

	stack, err := compiler.CompileSource(opts.Manifest, src)
	if err != nil {
		var cerr *compiler.CompileError
		if errors.As(err, &cerr) {
			return formatter.fail(ExitFailure, ErrCodeCompile, cerr.Error(),
				map[string]any{"field": cerr.Field})
		}
		return formatter.fail(ExitFailure, ErrCodeCompile, err.Error(), nil)
	}
	formatter.VerboseLog("Compiled stack %q: %d resource(s), %d container(s)",
		stack.Name, stack.Resources.Len(), len(stack.Task.Containers))

	if err := stack.Validate(model.BuiltinSchemas()); err != nil {
		return formatter.fail(ExitFailure, ErrCodeValidate, err.Error(), nil)
	}

	if _, err := graph.ApplyOrder(stack.Resources); err != nil {
		code := ErrCodeValidate
		if graph.IsCycleError(err) {
			code = ErrCodeCycle
		}
		return formatter.fail(ExitFailure, code, err.Error(), nil)
	}

	result := ValidationResult{
		Valid:      true,
		Stack:      stack.Name,
		Resources:  stack.Resources.Len(),
		Containers: len(stack.Task.Containers),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Stack %q valid (%d resources, %d containers)\n",
		result.Stack, result.Resources, result.Containers)
	return nil
}

// newFormatter builds the per-command output formatter. Verbose logs go
// to stderr so JSON output stays parseable.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
