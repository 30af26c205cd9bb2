package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Kind        string
	Ancestor    string
	Filters     []string
	Orders      []string
	Limit       int
	Offset      int
	KeysOnly    bool
	Count       bool
	StartCursor string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query",
		Long: `Run a query over stored entities.

Filters are written as a single expression, e.g. --filter "age>=74" or
--filter "name=twain". Orders name a property, prefixed with "-" for
descending, e.g. --order "-published".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "", "entity kind (omit for a kindless query)")
	cmd.Flags().StringVar(&opts.Ancestor, "ancestor", "", "ancestor key, e.g. Author:1")
	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "property filter, e.g. \"age>=74\"")
	cmd.Flags().StringArrayVarP(&opts.Orders, "order", "o", nil, "sort property, prefix with - for descending")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum results (0 = engine cap)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "results to skip")
	cmd.Flags().BoolVar(&opts.KeysOnly, "keys-only", false, "return bare keys")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the match count instead of results")
	cmd.Flags().StringVar(&opts.StartCursor, "start-cursor", "", "resume from a compiled cursor")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions) error {
	ctx := cmd.Context()
	q := query.Query{
		App:         opts.App,
		Namespace:   opts.Namespace,
		Kind:        opts.Kind,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
		KeysOnly:    opts.KeysOnly,
		StartCursor: opts.StartCursor,
	}
	if opts.Ancestor != "" {
		key, err := parseKeyArg(opts.App, opts.Namespace, opts.Ancestor)
		if err != nil {
			return err
		}
		q.Ancestor = &key
	}
	for _, raw := range opts.Filters {
		f, err := parseFilterExpr(raw)
		if err != nil {
			return err
		}
		q.Filters = append(q.Filters, f)
	}
	for _, raw := range opts.Orders {
		q.Orders = append(q.Orders, parseOrderExpr(raw))
	}

	eng, st, err := openEngine(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if opts.Count {
		n, err := eng.Count(ctx, nil, q)
		if err != nil {
			return WrapExitError(ExitFailure, "count failed", err)
		}
		if opts.Format == "json" {
			return formatter.PrintJSON(map[string]any{"count": n})
		}
		formatter.PrintText("%d", n)
		return nil
	}

	res, err := eng.RunQuery(ctx, nil, q)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	results := append([]entity.Entity(nil), res.Results...)
	compiled := res.Compiled
	skipped := res.Skipped
	for res.More {
		batch, err := eng.Next(ctx, opts.App, res.Cursor, 0)
		if err != nil {
			return WrapExitError(ExitFailure, "query failed", err)
		}
		results = append(results, batch.Results...)
		compiled = batch.Compiled
		res = batch
	}

	if opts.Format == "json" {
		rendered := make([]any, 0, len(results))
		for _, ent := range results {
			rendered = append(rendered, renderEntity(ent))
		}
		return formatter.PrintJSON(map[string]any{
			"results": rendered,
			"skipped": skipped,
			"cursor":  compiled,
		})
	}
	for _, ent := range results {
		printEntityText(formatter, ent)
	}
	formatter.PrintText("%d result(s)", len(results))
	return nil
}

var filterOps = []query.Op{query.OpGreaterEq, query.OpLessEq, query.OpGreater, query.OpLess, query.OpEqual}

func parseFilterExpr(raw string) (query.Filter, error) {
	for _, op := range filterOps {
		prop, value, ok := strings.Cut(raw, string(op))
		if !ok || prop == "" {
			continue
		}
		return query.Filter{
			Property: strings.TrimSpace(prop),
			Op:       op,
			Value:    parseLiteral(strings.TrimSpace(value)),
		}, nil
	}
	return query.Filter{}, NewExitError(ExitCommandError,
		fmt.Sprintf("malformed filter %q (want e.g. \"age>=74\")", raw))
}

func parseOrderExpr(raw string) query.Order {
	if prop, ok := strings.CutPrefix(raw, "-"); ok {
		return query.Order{Property: prop, Direction: query.Descending}
	}
	return query.Order{Property: raw}
}

// parseLiteral guesses a value's kind from its shape: integers, floats
// and booleans parse as themselves, everything else is a string.
func parseLiteral(s string) entity.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return entity.Int64(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return entity.Float64(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return entity.Bool(b)
	}
	return entity.String(s)
}
