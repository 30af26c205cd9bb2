package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/stratum/internal/index"
)

// NewIndexCommand creates the index command group.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage composite indexes",
	}
	cmd.AddCommand(newIndexCreateCommand(rootOpts))
	cmd.AddCommand(newIndexActivateCommand(rootOpts))
	cmd.AddCommand(newIndexListCommand(rootOpts))
	cmd.AddCommand(newIndexDeleteCommand(rootOpts))
	return cmd
}

func newIndexCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <indexes.yaml>",
		Short: "Register the composite indexes defined in a YAML file",
		Long: `Register composite indexes from a YAML definition file.

New indexes start write-only; activate them once backfilled to make
them servable.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defs, err := index.LoadFile(args[0], rootOpts.App)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading index file", err)
			}

			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			for _, def := range defs {
				id, err := eng.CreateIndex(ctx, def)
				if err != nil {
					return WrapExitError(ExitFailure, "creating index", err)
				}
				formatter.PrintText("created index %d: %s", id, def.String())
			}
			return nil
		},
	}
}

func newIndexActivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "activate <indexes.yaml>",
		Short:         "Move the listed indexes to the read-write state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defs, err := index.LoadFile(args[0], rootOpts.App)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading index file", err)
			}

			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			for _, def := range defs {
				def.State = index.StateReadWrite
				if err := eng.UpdateIndex(ctx, def); err != nil {
					return WrapExitError(ExitFailure, "activating index", err)
				}
				formatter.PrintText("activated: %s", def.String())
			}
			return nil
		},
	}
}

func newIndexListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the registered composite indexes",
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

			defs, err := eng.GetIndices(rootOpts.App)
			if err != nil {
				return WrapExitError(ExitFailure, "listing indexes", err)
			}

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			if rootOpts.Format == "json" {
				return formatter.PrintJSON(defs)
			}
			for _, def := range defs {
				formatter.PrintText("%d [%s] %s", def.ID, def.State, def.String())
			}
			return nil
		},
	}
}

func newIndexDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <indexes.yaml>",
		Short:         "Remove the composite indexes defined in a YAML file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defs, err := index.LoadFile(args[0], rootOpts.App)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading index file", err)
			}

			eng, st, err := openEngine(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			for _, def := range defs {
				if err := eng.DeleteIndex(ctx, def); err != nil {
					return WrapExitError(ExitFailure, "deleting index", err)
				}
				formatter.PrintText("deleted: %s", def.String())
			}
			return nil
		},
	}
}
