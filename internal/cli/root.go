// Package cli implements the stratum command line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stratum/internal/engine"
	"github.com/roach88/stratum/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	DBPath         string
	App            string
	Namespace      string
	RequireIndexes bool
	Verbose        bool
	Format         string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stratum CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stratum",
		Short: "Stratum - hierarchical entity store",
		Long:  "A schema-less hierarchical entity store with queries, cursors and transactions over SQLite.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "stratum.db", "path to the database file")
	cmd.PersistentFlags().StringVar(&opts.App, "app", "app", "application id")
	cmd.PersistentFlags().StringVarP(&opts.Namespace, "namespace", "n", "", "namespace")
	cmd.PersistentFlags().BoolVar(&opts.RequireIndexes, "require-indexes", false, "reject queries lacking a composite index")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewAllocCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

// openEngine opens the database and builds an engine over it. The caller
// must close the returned store.
func openEngine(ctx context.Context, opts *RootOptions) (*engine.Engine, *store.Store, error) {
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	eng, err := engine.New(ctx, st, engine.Config{
		AppID:          opts.App,
		RequireIndexes: opts.RequireIndexes,
	})
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "starting engine", err)
	}
	return eng, st, nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
