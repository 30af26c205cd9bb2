package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/index"
)

func testPlanner() *Planner {
	return &Planner{Prefix: "app_ns"}
}

func bookKey(id int64) *entity.Key {
	return &entity.Key{
		App:  "app",
		Path: []entity.PathElement{{Kind: "Book", ID: id}},
	}
}

func TestPlanSQL(t *testing.T) {
	ancestor := bookKey(7)
	tests := []struct {
		name     string
		query    Query
		strategy Strategy
	}{
		{
			name:     "kind_basic",
			query:    Query{App: "app", Kind: "Book"},
			strategy: StrategyKind,
		},
		{
			name: "kind_ancestor_desc",
			query: Query{
				App: "app", Kind: "Book", Ancestor: ancestor,
				Orders: []Order{{Property: KeyProperty, Direction: Descending}},
			},
			strategy: StrategyKind,
		},
		{
			name: "kindless_key_range",
			query: Query{
				App: "app",
				Filters: []Filter{
					{Property: KeyProperty, Op: OpGreater, Value: entity.KeyRef(*bookKey(3))},
				},
			},
			strategy: StrategyKind,
		},
		{
			name: "single_property_eq",
			query: Query{
				App: "app", Kind: "Book",
				Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("twain")}},
			},
			strategy: StrategySingleProperty,
		},
		{
			name: "single_property_range_desc",
			query: Query{
				App: "app", Kind: "Book",
				Filters: []Filter{
					{Property: "published", Op: OpGreaterEq, Value: entity.Int64(1800)},
					{Property: "published", Op: OpLess, Value: entity.Int64(1900)},
				},
				Orders: []Order{{Property: "published", Direction: Descending}},
			},
			strategy: StrategySingleProperty,
		},
		{
			name: "merge_join",
			query: Query{
				App: "app", Kind: "Book",
				Filters: []Filter{
					{Property: "author", Op: OpEqual, Value: entity.String("twain")},
					{Property: "genre", Op: OpEqual, Value: entity.String("satire")},
				},
			},
			strategy: StrategyMergeJoin,
		},
		{
			name: "last_resort_eq_order",
			query: Query{
				App: "app", Kind: "Book",
				Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("twain")}},
				Orders:  []Order{{Property: "published", Direction: Descending}},
			},
			strategy: StrategyLastResort,
		},
		{
			name: "last_resort_ancestor_eq",
			query: Query{
				App: "app", Kind: "Book", Ancestor: ancestor,
				Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("twain")}},
			},
			strategy: StrategyLastResort,
		},
		{
			name: "last_resort_ineq_and_orders",
			query: Query{
				App: "app", Kind: "Book",
				Filters: []Filter{{Property: "published", Op: OpGreater, Value: entity.Int64(1800)}},
				Orders: []Order{
					{Property: "published"},
					{Property: "rating", Direction: Descending},
				},
			},
			strategy: StrategyLastResort,
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := testPlanner().Plan(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.strategy, plan.Strategy)
			g.Assert(t, tc.name, []byte(plan.SQL))
		})
	}
}

func TestPlanShape(t *testing.T) {
	t.Run("kind query", func(t *testing.T) {
		plan, err := testPlanner().Plan(Query{App: "app", Kind: "Book"})
		require.NoError(t, err)
		assert.Equal(t, 1, plan.OrderCols)
		assert.False(t, plan.Descending)
		assert.Equal(t, []any{"Book"}, plan.Params)
	})

	t.Run("single property order columns", func(t *testing.T) {
		plan, err := testPlanner().Plan(Query{
			App: "app", Kind: "Book",
			Orders: []Order{{Property: "published", Direction: Descending}},
		})
		require.NoError(t, err)
		assert.Equal(t, StrategySingleProperty, plan.Strategy)
		assert.Equal(t, 2, plan.OrderCols)
		assert.True(t, plan.Descending)
		assert.Equal(t, []any{"Book", "published"}, plan.Params)
	})

	t.Run("merge join params interleave joins then filters", func(t *testing.T) {
		plan, err := testPlanner().Plan(Query{
			App: "app", Kind: "Book",
			Filters: []Filter{
				{Property: "author", Op: OpEqual, Value: entity.String("twain")},
				{Property: "genre", Op: OpEqual, Value: entity.String("satire")},
			},
		})
		require.NoError(t, err)
		require.Len(t, plan.Params, 7)
		assert.Equal(t, []any{"Book", "author", "Book", "genre"}, plan.Params[:4])
		assert.Equal(t, "Book", plan.Params[4])
	})

	t.Run("last resort adds key tiebreaker", func(t *testing.T) {
		plan, err := testPlanner().Plan(Query{
			App: "app", Kind: "Book",
			Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("twain")}},
			Orders:  []Order{{Property: "published", Direction: Descending}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, plan.OrderCols)
		assert.True(t, plan.Descending)
	})
}

func TestNormalizeDropsTrailingKeyOrder(t *testing.T) {
	plan, err := testPlanner().Plan(Query{
		App: "app", Kind: "Book",
		Orders: []Order{{Property: KeyProperty}},
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyKind, plan.Strategy)
	assert.False(t, plan.Descending)
}

func TestValidateRejects(t *testing.T) {
	tooMany := Query{App: "app", Kind: "Book"}
	for i := 0; i < MaxComponents+1; i++ {
		tooMany.Filters = append(tooMany.Filters,
			Filter{Property: "author", Op: OpEqual, Value: entity.String("x")})
	}

	tests := []struct {
		name  string
		query Query
	}{
		{"missing app", Query{Kind: "Book"}},
		{"too many components", tooMany},
		{"two inequality properties", Query{
			App: "app", Kind: "Book",
			Filters: []Filter{
				{Property: "a", Op: OpLess, Value: entity.Int64(1)},
				{Property: "b", Op: OpGreater, Value: entity.Int64(1)},
			},
		}},
		{"first order not inequality property", Query{
			App: "app", Kind: "Book",
			Filters: []Filter{{Property: "a", Op: OpLess, Value: entity.Int64(1)}},
			Orders:  []Order{{Property: "b"}},
		}},
		{"key filter with non-key value", Query{
			App: "app", Kind: "Book",
			Filters: []Filter{{Property: KeyProperty, Op: OpEqual, Value: entity.Int64(1)}},
		}},
		{"kindless with property filter", Query{
			App:     "app",
			Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("x")}},
		}},
		{"kindless with property order", Query{
			App:    "app",
			Orders: []Order{{Property: "author"}},
		}},
		{"negative limit", Query{App: "app", Kind: "Book", Limit: -1}},
		{"incomplete ancestor", Query{
			App: "app", Kind: "Book",
			Ancestor: &entity.Key{App: "app", Path: []entity.PathElement{{Kind: "Book"}}},
		}},
		{"unknown operator", Query{
			App: "app", Kind: "Book",
			Filters: []Filter{{Property: "a", Op: "!=", Value: entity.Int64(1)}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testPlanner().Plan(tc.query)
			assert.True(t, dserr.IsBadRequest(err), "got %v", err)
		})
	}
}

func TestRequireIndexes(t *testing.T) {
	q := Query{
		App: "app", Kind: "Book",
		Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("twain")}},
		Orders:  []Order{{Property: "published", Direction: Descending}},
	}

	t.Run("missing index", func(t *testing.T) {
		p := &Planner{Prefix: "app_ns", Registry: index.NewRegistry(), RequireIndexes: true}
		_, err := p.Plan(q)
		require.True(t, dserr.IsNeedsIndex(err))
		var de *dserr.Error
		require.ErrorAs(t, err, &de)
		assert.Contains(t, de.Detail["index"], "kind:Book")
	})

	t.Run("servable index", func(t *testing.T) {
		reg := index.NewRegistry()
		_, err := reg.Create(index.Definition{
			App:  "app",
			Kind: "Book",
			Properties: []index.SortProperty{
				{Name: "author"},
				{Name: "published", Descending: true},
			},
			State: index.StateReadWrite,
		})
		require.NoError(t, err)

		p := &Planner{Prefix: "app_ns", Registry: reg, RequireIndexes: true}
		plan, err := p.Plan(q)
		require.NoError(t, err)
		assert.Equal(t, StrategyLastResort, plan.Strategy)
	})

	t.Run("write only index does not serve", func(t *testing.T) {
		reg := index.NewRegistry()
		_, err := reg.Create(index.Definition{
			App:  "app",
			Kind: "Book",
			Properties: []index.SortProperty{
				{Name: "author"},
				{Name: "published", Descending: true},
			},
		})
		require.NoError(t, err)

		p := &Planner{Prefix: "app_ns", Registry: reg, RequireIndexes: true}
		_, err = p.Plan(q)
		assert.True(t, dserr.IsNeedsIndex(err))
	})

	t.Run("cheap strategies never need indexes", func(t *testing.T) {
		p := &Planner{Prefix: "app_ns", Registry: index.NewRegistry(), RequireIndexes: true}
		plan, err := p.Plan(Query{
			App: "app", Kind: "Book",
			Filters: []Filter{{Property: "author", Op: OpEqual, Value: entity.String("twain")}},
		})
		require.NoError(t, err)
		assert.Equal(t, StrategySingleProperty, plan.Strategy)
	})
}
