package query

import (
	"fmt"
	"strings"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/index"
	"github.com/roach88/stratum/internal/sortkey"
)

// Strategy names the shape of SQL a query was planned into.
type Strategy string

const (
	StrategyKind           Strategy = "kind"
	StrategySingleProperty Strategy = "single-property"
	StrategyMergeJoin      Strategy = "merge-join"
	StrategyLastResort     Strategy = "last-resort"
)

// Plan is a compiled query: parameterized SQL whose rows are
// (path, entity, order-key columns...). OrderCols counts the trailing
// order-key columns; the cursor concatenates them to position itself.
//
// Every plan carries an ORDER BY so results are deterministic. LIMIT and
// OFFSET are never pushed into SQL; the cursor applies them after
// deduplicating rows.
type Plan struct {
	SQL        string
	Params     []any
	OrderCols  int
	Descending bool
	Strategy   Strategy
}

// Planner compiles queries against one namespace's tables.
type Planner struct {
	// Prefix is the namespace table prefix, e.g. "app_ns".
	Prefix string
	// Registry supplies composite index definitions for the last resort
	// strategy. May be nil when RequireIndexes is false.
	Registry *index.Registry
	// RequireIndexes makes last resort queries fail with NeedsIndex
	// unless a servable composite index exists.
	RequireIndexes bool
}

// Plan normalizes, validates and compiles a query, trying the cheapest
// strategy that can serve it first.
func (p *Planner) Plan(q Query) (*Plan, error) {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if plan := p.planKind(q); plan != nil {
		return plan, nil
	}
	if plan, err := p.planSingleProperty(q); plan != nil || err != nil {
		return plan, err
	}
	if plan, err := p.planMergeJoin(q); plan != nil || err != nil {
		return plan, err
	}
	return p.planLastResort(q)
}

func (p *Planner) entitiesTable() string { return p.Prefix + "_entities" }
func (p *Planner) propsTable() string    { return p.Prefix + "_props" }

// planKind serves queries that touch nothing but the key: scans over the
// entities table, optionally restricted to a kind, an ancestor prefix and
// key bounds. This is the only strategy for kindless queries.
func (p *Planner) planKind(q Query) *Plan {
	for _, f := range q.Filters {
		if f.Property != KeyProperty {
			return nil
		}
	}
	for _, o := range q.Orders {
		if o.Property != KeyProperty {
			return nil
		}
	}
	if len(q.Orders) > 1 {
		return nil
	}

	var conds []string
	var params []any
	if q.Kind != "" {
		conds = append(conds, "e.kind = ?")
		params = append(params, q.Kind)
	}
	for _, f := range q.Filters {
		encoded, err := encodeFilterValue(f)
		if err != nil {
			return nil
		}
		conds = append(conds, fmt.Sprintf("e.path %s ?", f.Op))
		params = append(params, encoded)
	}
	if q.Ancestor != nil {
		minPath, maxPath := sortkey.PrefixRange(q.Ancestor.Path)
		conds = append(conds, "e.path >= ?", "e.path < ?")
		params = append(params, minPath, maxPath)
	}

	direction := Ascending
	if len(q.Orders) == 1 {
		direction = q.Orders[0].Direction
	}

	var sb strings.Builder
	sb.WriteString("SELECT e.path, e.entity, e.path FROM ")
	sb.WriteString(p.entitiesTable())
	sb.WriteString(" AS e")
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY e.path " + direction.sql())

	return &Plan{
		SQL:        sb.String(),
		Params:     params,
		OrderCols:  1,
		Descending: direction == Descending,
		Strategy:   StrategyKind,
	}
}

// planSingleProperty serves queries touching exactly one non-key
// property with a single index-row scan. Multiple equality filters on the
// property cannot be served from one row, since a multi-valued property
// stores one row per value; those fall through to the join strategies.
func (p *Planner) planSingleProperty(q Query) (*Plan, error) {
	if q.Kind == "" || q.Ancestor != nil || len(q.Orders) > 1 {
		return nil, nil
	}
	property := ""
	equalities := 0
	for _, f := range q.Filters {
		if property == "" {
			property = f.Property
		}
		if f.Property != property {
			return nil, nil
		}
		if f.Op == OpEqual {
			equalities++
		}
	}
	for _, o := range q.Orders {
		if property == "" {
			property = o.Property
		}
		if o.Property != property {
			return nil, nil
		}
	}
	if property == "" || property == KeyProperty || equalities > 1 {
		return nil, nil
	}

	conds := []string{"p.kind = ?", "p.name = ?"}
	params := []any{q.Kind, property}
	for _, f := range q.Filters {
		encoded, err := encodeFilterValue(f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, fmt.Sprintf("p.value %s ?", f.Op))
		params = append(params, encoded)
	}

	direction := Ascending
	if len(q.Orders) == 1 {
		direction = q.Orders[0].Direction
	}
	dir := direction.sql()

	sql := fmt.Sprintf(
		"SELECT e.path, e.entity, p.value, p.path FROM %s AS p INNER JOIN %s AS e ON p.path = e.path WHERE %s ORDER BY p.kind, p.name, p.value %s, p.path %s",
		p.propsTable(), p.entitiesTable(), strings.Join(conds, " AND "), dir, dir)

	return &Plan{
		SQL:        sql,
		Params:     params,
		OrderCols:  2,
		Descending: direction == Descending,
		Strategy:   StrategySingleProperty,
	}, nil
}

// planMergeJoin serves unordered all-equality queries by joining one
// index-row instance per filter against the entities table.
func (p *Planner) planMergeJoin(q Query) (*Plan, error) {
	if q.Kind == "" || q.Ancestor != nil || len(q.Orders) > 0 || len(q.Filters) == 0 {
		return nil, nil
	}
	for _, f := range q.Filters {
		if f.Op != OpEqual || f.Property == KeyProperty {
			return nil, nil
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT e.path, e.entity, e.path FROM ")
	sb.WriteString(p.entitiesTable())
	sb.WriteString(" AS e")

	params := []any{}
	conds := []string{"e.kind = ?"}
	whereParams := []any{q.Kind}
	for i, f := range q.Filters {
		alias := fmt.Sprintf("p%d", i)
		fmt.Fprintf(&sb, " INNER JOIN %s AS %s ON e.path = %s.path AND %s.kind = ? AND %s.name = ?",
			p.propsTable(), alias, alias, alias, alias)
		params = append(params, q.Kind, f.Property)

		encoded, err := encodeFilterValue(f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, alias+".value = ?")
		whereParams = append(whereParams, encoded)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(conds, " AND "))
	sb.WriteString(" ORDER BY e.path ASC")

	return &Plan{
		SQL:       sb.String(),
		Params:    append(params, whereParams...),
		OrderCols: 1,
		Strategy:  StrategyMergeJoin,
	}, nil
}

// planLastResort serves everything the cheaper strategies cannot: one
// index-row join per filter and per sorted property, with ancestor and
// key constraints applied to the entity path. When composite indexes are
// required, the query must be covered by a servable definition.
func (p *Planner) planLastResort(q Query) (*Plan, error) {
	if err := p.checkIndex(q); err != nil {
		return nil, err
	}

	// Equality filters each join their own index row. Inequality filters
	// share a single row, since they must all hold for one value.
	aliases := 0
	newAlias := func() string {
		a := fmt.Sprintf("p%d", aliases)
		aliases++
		return a
	}
	type join struct {
		alias    string
		property string
	}
	var joins []join
	aliasFor := make(map[string]string)
	inequalityAlias := ""

	conds := []string{"e.kind = ?"}
	whereParams := []any{q.Kind}
	for _, f := range q.Filters {
		encoded, err := encodeFilterValue(f)
		if err != nil {
			return nil, err
		}
		if f.Property == KeyProperty {
			conds = append(conds, fmt.Sprintf("e.path %s ?", f.Op))
			whereParams = append(whereParams, encoded)
			continue
		}
		var alias string
		if f.Op == OpEqual {
			alias = newAlias()
			joins = append(joins, join{alias, f.Property})
		} else {
			if inequalityAlias == "" {
				inequalityAlias = newAlias()
				joins = append(joins, join{inequalityAlias, f.Property})
			}
			alias = inequalityAlias
		}
		if _, seen := aliasFor[f.Property]; !seen {
			aliasFor[f.Property] = alias
		}
		conds = append(conds, fmt.Sprintf("%s.value %s ?", alias, f.Op))
		whereParams = append(whereParams, encoded)
	}
	if q.Ancestor != nil {
		minPath, maxPath := sortkey.PrefixRange(q.Ancestor.Path)
		conds = append(conds, "e.path >= ?", "e.path < ?")
		whereParams = append(whereParams, minPath, maxPath)
	}

	var orderCols []string
	lastIsKey := false
	for _, o := range q.Orders {
		if o.Property == KeyProperty {
			orderCols = append(orderCols, "e.path "+o.Direction.sql())
			lastIsKey = true
			continue
		}
		lastIsKey = false
		alias, ok := aliasFor[o.Property]
		if !ok {
			alias = newAlias()
			joins = append(joins, join{alias, o.Property})
			aliasFor[o.Property] = alias
		}
		orderCols = append(orderCols, alias+".value "+o.Direction.sql())
	}
	if !lastIsKey {
		orderCols = append(orderCols, "e.path ASC")
	}

	var sb strings.Builder
	sb.WriteString("SELECT e.path, e.entity")
	for _, col := range orderCols {
		sb.WriteString(", ")
		sb.WriteString(strings.TrimSuffix(strings.TrimSuffix(col, " ASC"), " DESC"))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(p.entitiesTable())
	sb.WriteString(" AS e")
	var joinParams []any
	for _, j := range joins {
		fmt.Fprintf(&sb, " INNER JOIN %s AS %s ON e.path = %s.path AND %s.kind = ? AND %s.name = ?",
			p.propsTable(), j.alias, j.alias, j.alias, j.alias)
		joinParams = append(joinParams, q.Kind, j.property)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(conds, " AND "))
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orderCols, ", "))

	descending := false
	if len(q.Orders) > 0 {
		descending = q.Orders[0].Direction == Descending
	}
	return &Plan{
		SQL:        sb.String(),
		Params:     append(joinParams, whereParams...),
		OrderCols:  len(orderCols),
		Descending: descending,
		Strategy:   StrategyLastResort,
	}, nil
}

// checkIndex enforces composite index coverage for last resort queries.
func (p *Planner) checkIndex(q Query) error {
	if !p.RequireIndexes {
		return nil
	}

	needed := neededIndex(q)
	if p.Registry != nil {
		var equalities []string
		for _, f := range q.Filters {
			if f.Op == OpEqual && f.Property != KeyProperty {
				equalities = append(equalities, f.Property)
			}
		}
		rest := needed.Properties[len(equalities):]
		if p.Registry.FindForQuery(q.App, q.Kind, q.Ancestor != nil, equalities, rest) != nil {
			return nil
		}
	}
	return dserr.New(dserr.CodeNeedsIndex, "no matching index found").
		WithDetail("index", needed.String())
}

// neededIndex derives the composite index definition that would serve a
// query: equality properties first, then the inequality property, then
// the remaining sort orders.
func neededIndex(q Query) index.Definition {
	def := index.Definition{
		App:      q.App,
		Kind:     q.Kind,
		Ancestor: q.Ancestor != nil,
	}
	inequality := ""
	for _, f := range q.Filters {
		if f.Property == KeyProperty {
			continue
		}
		if f.Op == OpEqual {
			def.Properties = append(def.Properties, index.SortProperty{Name: f.Property})
		} else {
			inequality = f.Property
		}
	}
	if inequality != "" && (len(q.Orders) == 0 || q.Orders[0].Property != inequality) {
		def.Properties = append(def.Properties, index.SortProperty{Name: inequality})
	}
	for _, o := range q.Orders {
		if o.Property == KeyProperty {
			continue
		}
		def.Properties = append(def.Properties, index.SortProperty{
			Name:       o.Property,
			Descending: o.Direction == Descending,
		})
	}
	return def
}
