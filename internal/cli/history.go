package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flotilla/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past deployments of the service",
		Long: `List past deployments of the service, newest first.

Every deploy attempt appears, including failed, timed out, and
cancelled ones, with its token, revision, image reference, and
outcome.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum entries to show (0 = all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	stack, err := loadManifest(opts.RootOptions, formatter)
	if err != nil {
		return err
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}
	defer st.Close()

	records, err := st.ListDeployments(ctx, stack.Service.Name, opts.Limit)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeState, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(formatter.Writer, "No deployments recorded for %s.\n", stack.Service.Name)
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(formatter.Writer, "%s  rev %d  gen %d  %-10s  %s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Revision, rec.Generation, rec.Outcome, rec.Token)
		if formatter.Verbose && rec.ImageRef != "" {
			fmt.Fprintf(formatter.Writer, "    image: %s\n", rec.ImageRef)
		}
	}
	return nil
}
