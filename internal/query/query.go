// Package query models datastore queries and plans them into
// parameterized SQL over the per-namespace entity and property tables.
package query

import (
	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/sortkey"
)

// KeyProperty is the reserved property name that addresses an entity's key.
const KeyProperty = "__key__"

// MaxComponents caps the total number of filters, orders and ancestor
// constraints a single query may carry.
const MaxComponents = 63

// Op is a filter comparison operator.
type Op string

const (
	OpLess      Op = "<"
	OpLessEq    Op = "<="
	OpGreater   Op = ">"
	OpGreaterEq Op = ">="
	OpEqual     Op = "="
)

// Direction orders results ascending or descending.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) sql() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// Filter constrains one property against a value.
type Filter struct {
	Property string
	Op       Op
	Value    entity.Value
}

// Order sorts results by one property.
type Order struct {
	Property  string
	Direction Direction
}

// Query describes one datastore query. A zero Limit means unlimited
// (subject to the engine's result cap).
type Query struct {
	App       string
	Namespace string
	Kind      string
	Ancestor  *entity.Key
	Filters   []Filter
	Orders    []Order
	Limit     int
	Offset    int
	KeysOnly  bool

	// StartCursor resumes iteration from a previously returned compiled
	// cursor; EndCursor stops it at one. Both are opaque marker strings.
	StartCursor string
	EndCursor   string
}

// Normalize strips redundancy so equivalent queries plan identically:
// a trailing ascending sort on the key adds nothing, since every plan
// already breaks ties by key.
func (q *Query) Normalize() {
	for len(q.Orders) > 0 {
		last := q.Orders[len(q.Orders)-1]
		if last.Property == KeyProperty && last.Direction == Ascending {
			q.Orders = q.Orders[:len(q.Orders)-1]
			continue
		}
		break
	}
}

// Validate rejects malformed queries before planning.
func (q *Query) Validate() error {
	if q.App == "" {
		return dserr.New(dserr.CodeBadRequest, "query app is required")
	}
	components := len(q.Filters) + len(q.Orders)
	if q.Ancestor != nil {
		components++
	}
	if components > MaxComponents {
		return dserr.Newf(dserr.CodeBadRequest,
			"query has too many components (%d, max %d)", components, MaxComponents)
	}
	if q.Ancestor != nil {
		if err := q.Ancestor.Validate(); err != nil {
			return err
		}
		if q.Ancestor.Incomplete() {
			return dserr.New(dserr.CodeBadRequest, "ancestor key is incomplete")
		}
	}

	inequality := ""
	for _, f := range q.Filters {
		switch f.Op {
		case OpLess, OpLessEq, OpGreater, OpGreaterEq:
			if inequality != "" && inequality != f.Property {
				return dserr.Newf(dserr.CodeBadRequest,
					"inequality filters on both %s and %s; only one property may have them",
					inequality, f.Property)
			}
			inequality = f.Property
		case OpEqual:
		default:
			return dserr.Newf(dserr.CodeBadRequest, "unknown filter operator %q", f.Op)
		}
		if f.Value == nil {
			return dserr.Newf(dserr.CodeBadRequest, "filter on %s has no value", f.Property)
		}
		if f.Property == KeyProperty {
			if _, ok := f.Value.(entity.KeyRef); !ok {
				return dserr.New(dserr.CodeBadRequest, "__key__ filter value must be a key")
			}
		}
	}
	if inequality != "" && len(q.Orders) > 0 && q.Orders[0].Property != inequality {
		return dserr.Newf(dserr.CodeBadRequest,
			"first sort property must be %s, the inequality filter property", inequality)
	}
	if q.Kind == "" {
		for _, f := range q.Filters {
			if f.Property != KeyProperty {
				return dserr.New(dserr.CodeBadRequest,
					"kindless queries only support __key__ filters")
			}
		}
		for _, o := range q.Orders {
			if o.Property != KeyProperty {
				return dserr.New(dserr.CodeBadRequest,
					"kindless queries only support __key__ orders")
			}
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return dserr.New(dserr.CodeBadRequest, "limit and offset must not be negative")
	}
	return nil
}

// encodeFilterValue turns a filter value into its stored byte form. Key
// filters compare against the entity path column, everything else against
// the encoded property value.
func encodeFilterValue(f Filter) ([]byte, error) {
	if f.Property == KeyProperty {
		ref, ok := f.Value.(entity.KeyRef)
		if !ok {
			return nil, dserr.New(dserr.CodeBadRequest, "__key__ filter value must be a key")
		}
		key := entity.Key(ref)
		return sortkey.EncodePath(key.Path), nil
	}
	return sortkey.EncodeValue(f.Value)
}
