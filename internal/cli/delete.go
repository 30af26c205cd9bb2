package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/stratum/internal/entity"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <key>...",
		Short:         "Delete entities by key",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			keys := make([]entity.Key, 0, len(args))
			for _, arg := range args {
				key, err := parseKeyArg(rootOpts.App, rootOpts.Namespace, arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}

			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := eng.Delete(ctx, nil, keys); err != nil {
				return WrapExitError(ExitFailure, "delete failed", err)
			}
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return formatter.PrintJSON(map[string]any{"deleted": len(keys)})
			}
			formatter.PrintText("deleted %d key(s)", len(keys))
			return nil
		},
	}
}
