package cli

import (
	"github.com/spf13/cobra"
)

// NewAllocCommand creates the alloc-ids command.
func NewAllocCommand(rootOpts *RootOptions) *cobra.Command {
	var size int64

	cmd := &cobra.Command{
		Use:   "alloc-ids",
		Short: "Reserve a contiguous range of entity ids",
		Long: `Reserve a contiguous range of entity ids for the namespace.

Reserved ids are never handed out by automatic key completion.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			start, end, err := eng.AllocateIDs(ctx, rootOpts.App, rootOpts.Namespace, size)
			if err != nil {
				return WrapExitError(ExitFailure, "allocation failed", err)
			}

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return formatter.PrintJSON(map[string]any{"start": start, "end": end})
			}
			formatter.PrintText("%d-%d", start, end)
			return nil
		},
	}

	cmd.Flags().Int64Var(&size, "size", 1, "number of ids to reserve")

	return cmd
}
