package clause

import (
	"github.com/entmap/entmap/schema"
)

// OrderByColumn one sort key
type OrderByColumn struct {
	Column Column
	Desc   bool
}

// Alias projected expression, its value is returned beside the entities
type Alias struct {
	Expr Expression
	Name string
}

// Query describes one request against the target table
type Query struct {
	Target    *schema.Table
	Distinct  bool
	Limit     *int
	Offset    int
	Orders    []OrderByColumn
	Groups    []Expression
	Condition Expression
	Aliases   []Alias
}

// Aggregated reports whether rows are folded by a group list or an aggregate projection
func (q *Query) Aggregated() bool {
	if len(q.Groups) > 0 {
		return true
	}
	for _, alias := range q.Aliases {
		if HasAggregate(alias.Expr) {
			return true
		}
	}
	return false
}
