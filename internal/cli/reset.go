package cli

import (
	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:           "reset",
		Short:         "Drop every stored entity, index and namespace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return NewExitError(ExitCommandError, "pass --yes to confirm wiping the database")
			}
			ctx := cmd.Context()
			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := eng.Reset(ctx); err != nil {
				return WrapExitError(ExitFailure, "reset failed", err)
			}
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			formatter.PrintText("database reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the reset")

	return cmd
}
