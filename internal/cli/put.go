package cli

import (
	"github.com/spf13/cobra"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <entities.yaml>",
		Short: "Write entities from a YAML file",
		Long: `Write the entities described in a YAML file.

Entities without an id or name receive an allocated id; the completed
keys are printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entities, err := LoadEntityFile(args[0], rootOpts.App, rootOpts.Namespace)
			if err != nil {
				return err
			}

			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			keys, err := eng.Put(ctx, nil, entities)
			if err != nil {
				return WrapExitError(ExitFailure, "put failed", err)
			}

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				rendered := make([]string, 0, len(keys))
				for _, k := range keys {
					rendered = append(rendered, k.String())
				}
				return formatter.PrintJSON(map[string]any{"keys": rendered})
			}
			for _, k := range keys {
				formatter.PrintText("%s", k.String())
			}
			return nil
		},
	}
}
