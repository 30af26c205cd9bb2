package cli

import (
	"github.com/spf13/cobra"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	StartKind string
	EndKind   string
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe the stored kinds and their properties",
		Long: `Describe the kinds stored in the namespace.

Each kind is reported with its indexed properties and an exemplar value
per observed value kind. Real property data is never shown.`,
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

			schema, err := eng.GetSchema(ctx, opts.App, opts.Namespace, opts.StartKind, opts.EndKind)
			if err != nil {
				return WrapExitError(ExitFailure, "schema failed", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if opts.Format == "json" {
				out := make([]any, 0, len(schema))
				for _, ent := range schema {
					props := make([]map[string]any, 0, len(ent.Properties))
					for _, p := range ent.Properties {
						props = append(props, map[string]any{
							"name":    p.Name,
							"example": renderValue(p.Value),
						})
					}
					out = append(out, map[string]any{
						"kind":       ent.Key.Kind(),
						"properties": props,
					})
				}
				return formatter.PrintJSON(out)
			}
			for _, ent := range schema {
				formatter.PrintText("%s", ent.Key.Kind())
				for _, p := range ent.Properties {
					formatter.PrintText("  %s (e.g. %v)", p.Name, renderValue(p.Value))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.StartKind, "start-kind", "", "lowest kind to include")
	cmd.Flags().StringVar(&opts.EndKind, "end-kind", "", "highest kind to include")

	return cmd
}
