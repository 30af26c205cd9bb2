package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/stratum/internal/entity"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>...",
		Short: "Fetch entities by key",
		Long: `Fetch entities by key.

Keys are written as slash-separated path segments, e.g.
Author:1/Book:roughing-it. Numeric segments are ids, everything else
is a name.`,
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

			entities, err := eng.Get(ctx, nil, keys)
			if err != nil {
				return WrapExitError(ExitFailure, "get failed", err)
			}

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			missing := 0
			if rootOpts.Format == "json" {
				out := make([]any, 0, len(entities))
				for _, ent := range entities {
					if ent == nil {
						out = append(out, nil)
						missing++
						continue
					}
					out = append(out, renderEntity(*ent))
				}
				if err := formatter.PrintJSON(out); err != nil {
					return err
				}
			} else {
				for i, ent := range entities {
					if ent == nil {
						formatter.PrintText("%s: not found", keys[i].String())
						missing++
						continue
					}
					printEntityText(formatter, *ent)
				}
			}
			if missing == len(entities) {
				return NewExitError(ExitFailure, "no entities found")
			}
			return nil
		},
	}
}

func printEntityText(formatter *OutputFormatter, ent entity.Entity) {
	formatter.PrintText("%s", ent.Key.String())
	for _, p := range ent.Properties {
		marker := ""
		if !p.Indexed {
			marker = " (unindexed)"
		}
		formatter.PrintText("  %s = %v%s", p.Name, renderValue(p.Value), marker)
	}
}
