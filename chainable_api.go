package entmap

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/schema"
)

// QueryBuilder builds the query of entity type T, chaining errors are kept in Error and returned by the finisher
type QueryBuilder[T any] struct {
	Statement *clause.Query
	Error     error

	db    *DB
	table *schema.Table
}

// Query starts a query on the table of T
//
//	q := entmap.Query[User](db)
//	users, err := q.Where(q.Eq(entmap.F("userName"), entmap.V("bob"))).FindAll(ctx, nil)
func Query[T any](db *DB) *QueryBuilder[T] {
	q := &QueryBuilder[T]{db: db, Statement: &clause.Query{}}
	table, err := db.Registry.LookupTable(new(T))
	if err != nil {
		q.AddError(err)
		return q
	}

	q.table = table
	q.Statement.Target = table
	return q
}

// Table returns the target table
func (q *QueryBuilder[T]) Table() *schema.Table {
	return q.table
}

// AddError add error to the builder
func (q *QueryBuilder[T]) AddError(err error) error {
	if err != nil {
		q.Error = errors.Join(q.Error, err)
	}
	return q.Error
}

// Distinct returns each root entity once
func (q *QueryBuilder[T]) Distinct() *QueryBuilder[T] {
	q.Statement.Distinct = true
	return q
}

// Limit specify the number of root entities to be retrieved
func (q *QueryBuilder[T]) Limit(limit int) *QueryBuilder[T] {
	q.Statement.Limit = &limit
	return q
}

// Offset specify the number of root entities to skip
func (q *QueryBuilder[T]) Offset(offset int) *QueryBuilder[T] {
	q.Statement.Offset = offset
	return q
}

// SortBy sorts by a field of the target, direction is "asc" (default) or "desc"
func (q *QueryBuilder[T]) SortBy(field string, direction ...string) *QueryBuilder[T] {
	return q.sortBy(q.table, field, direction)
}

// SortByOf sorts by a field of the table of entity, which must be the target or reachable through its associations
//
//	q.SortByOf((*Group)(nil), "name", "desc")
func (q *QueryBuilder[T]) SortByOf(entity interface{}, field string, direction ...string) *QueryBuilder[T] {
	table, err := q.db.Registry.LookupTable(entity)
	if err != nil {
		q.AddError(err)
		return q
	}
	return q.sortBy(table, field, direction)
}

func (q *QueryBuilder[T]) sortBy(table *schema.Table, field string, direction []string) *QueryBuilder[T] {
	column, err := q.resolveOf(table, field)
	if err != nil {
		q.AddError(err)
		return q
	}

	desc := false
	if len(direction) > 0 {
		switch strings.ToLower(direction[0]) {
		case "", "asc":
		case "desc":
			desc = true
		default:
			q.AddError(fmt.Errorf("%w: unknown sort direction %q", ErrInvalidField, direction[0]))
			return q
		}
	}

	q.Statement.Orders = append(q.Statement.Orders, clause.OrderByColumn{Column: column, Desc: desc})
	return q
}

// GroupBy groups by a field of the target
func (q *QueryBuilder[T]) GroupBy(field string) *QueryBuilder[T] {
	return q.GroupByExpr(q.Field(field))
}

// GroupByOf groups by a field of the table of entity
func (q *QueryBuilder[T]) GroupByOf(entity interface{}, field string) *QueryBuilder[T] {
	table, err := q.db.Registry.LookupTable(entity)
	if err != nil {
		q.AddError(err)
		return q
	}

	column, err := q.resolveOf(table, field)
	if err != nil {
		q.AddError(err)
		return q
	}
	return q.GroupByExpr(column)
}

// GroupByExpr groups by an expression
func (q *QueryBuilder[T]) GroupByExpr(expr clause.Expression) *QueryBuilder[T] {
	if expr != nil {
		q.Statement.Groups = append(q.Statement.Groups, expr)
	}
	return q
}

// Alias projects expr under name, its value is returned in the extra slot of the finishers
func (q *QueryBuilder[T]) Alias(expr clause.Expression, name string) *QueryBuilder[T] {
	if expr == nil {
		q.AddError(fmt.Errorf("%w: empty expression for alias %s", ErrInvalidField, name))
		return q
	}
	q.Statement.Aliases = append(q.Statement.Aliases, clause.Alias{Expr: expr, Name: name})
	return q
}

// Where add conditions, same as AndWhere
func (q *QueryBuilder[T]) Where(exprs ...clause.Expression) *QueryBuilder[T] {
	return q.AndWhere(exprs...)
}

// AndWhere joins conditions to the current one with AND
func (q *QueryBuilder[T]) AndWhere(exprs ...clause.Expression) *QueryBuilder[T] {
	q.Statement.Condition = fold(clause.And, q.Statement.Condition, exprs)
	return q
}

// OrWhere joins conditions to the current one with OR
func (q *QueryBuilder[T]) OrWhere(exprs ...clause.Expression) *QueryBuilder[T] {
	q.Statement.Condition = fold(clause.Or, q.Statement.Condition, exprs)
	return q
}

// And folds exprs left to right, nil without arguments
func (q *QueryBuilder[T]) And(exprs ...clause.Expression) clause.Expression {
	return fold(clause.And, nil, exprs)
}

// Or folds exprs left to right, nil without arguments
func (q *QueryBuilder[T]) Or(exprs ...clause.Expression) clause.Expression {
	return fold(clause.Or, nil, exprs)
}

func fold(op clause.Operator, root clause.Expression, exprs []clause.Expression) clause.Expression {
	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		if root == nil {
			root = expr
		} else {
			root = clause.Binary{Op: op, Left: root, Right: expr}
		}
	}
	return root
}

// Eq left = right
func (q *QueryBuilder[T]) Eq(left, right Operand) clause.Expression {
	return q.binary(clause.Eq, left, right)
}

// Neq left <> right
func (q *QueryBuilder[T]) Neq(left, right Operand) clause.Expression {
	return q.binary(clause.Neq, left, right)
}

// Lt left < right
func (q *QueryBuilder[T]) Lt(left, right Operand) clause.Expression {
	return q.binary(clause.Lt, left, right)
}

// Le left <= right
func (q *QueryBuilder[T]) Le(left, right Operand) clause.Expression {
	return q.binary(clause.Le, left, right)
}

// Gt left > right
func (q *QueryBuilder[T]) Gt(left, right Operand) clause.Expression {
	return q.binary(clause.Gt, left, right)
}

// Ge left >= right
func (q *QueryBuilder[T]) Ge(left, right Operand) clause.Expression {
	return q.binary(clause.Ge, left, right)
}

func (q *QueryBuilder[T]) binary(op clause.Operator, left, right Operand) clause.Expression {
	return clause.Binary{Op: op, Left: q.Expr(left), Right: q.Expr(right)}
}

// Expr converts an operand into an expression
func (q *QueryBuilder[T]) Expr(op Operand) clause.Expression {
	switch o := op.(type) {
	case nil:
		return clause.Literal{}
	case fieldOperand:
		return q.Field(o.path)
	case valueOperand:
		return q.Quote(o.value)
	case exprOperand:
		if o.expr == nil {
			return clause.Literal{}
		}
		return o.expr
	case entityOperand:
		table, err := q.db.Registry.LookupTable(o.entity)
		if err != nil {
			q.AddError(err)
			return clause.Literal{}
		}
		// a nil entity compares as NULL
		if v := reflect.ValueOf(o.entity); v.Kind() == reflect.Pointer && v.IsNil() {
			return clause.Literal{}
		}
		if table.IDField == nil {
			q.AddError(fmt.Errorf("%w: entity %s can not be used as an operand", ErrNoSingleID, table.Name))
			return clause.Literal{}
		}
		return q.Quote(table.IDField.Get(o.entity))
	}
	return clause.Literal{}
}

// Sum sum of the operand
func (q *QueryBuilder[T]) Sum(op Operand) clause.Expression {
	return q.Call("sum", op)
}

// Count count of the operand
func (q *QueryBuilder[T]) Count(op Operand) clause.Expression {
	return q.Call("count", op)
}

// Min minimum of the operand
func (q *QueryBuilder[T]) Min(op Operand) clause.Expression {
	return q.Call("min", op)
}

// Max maximum of the operand
func (q *QueryBuilder[T]) Max(op Operand) clause.Expression {
	return q.Call("max", op)
}

// Avg average of the operand
func (q *QueryBuilder[T]) Avg(op Operand) clause.Expression {
	return q.Call("avg", op)
}

// Call calls a function
func (q *QueryBuilder[T]) Call(function string, args ...Operand) clause.Expression {
	call := clause.Call{Func: function, Args: make([]clause.Expression, 0, len(args))}
	for _, arg := range args {
		call.Args = append(call.Args, q.Expr(arg))
	}
	return call
}

// Quote returns a literal
func (q *QueryBuilder[T]) Quote(value interface{}) clause.Expression {
	return clause.Literal{Value: value}
}

// Field resolves a dotted property path against the target, an association resolves to the related id column
//
//	q.Field("userName")    // user.user_name
//	q.Field("groups")      // user.groups.id
//	q.Field("groups.name") // user.groups.name
func (q *QueryBuilder[T]) Field(path string) clause.Expression {
	if q.table == nil {
		return clause.Column{Path: schema.ColumnPath(q.db.Registry.Namer(), path)}
	}

	column, err := resolve(q.table, q.table.Name, path)
	if err != nil {
		q.AddError(err)
	}
	return column
}

func (q *QueryBuilder[T]) resolveOf(table *schema.Table, path string) (clause.Column, error) {
	if q.table == nil {
		return clause.Column{}, ErrUnregisteredEntity
	}

	prefix, ok := reachable(q.table, table)
	if !ok {
		return clause.Column{}, fmt.Errorf("%w: %s is not reachable from %s", ErrInvalidField, table.Name, q.table.Name)
	}
	return resolve(table, prefix, path)
}

// resolve walks path from table, whose columns live under prefix
func resolve(table *schema.Table, prefix, path string) (clause.Column, error) {
	var (
		segments = strings.Split(path, ".")
		current  = table
		column   = prefix
		namer    = table.Registry().Namer()
	)

	for idx, segment := range segments {
		field, hops := current.LookUpField(segment)
		if field == nil {
			// unknown properties are kept as plain column names
			for _, rest := range segments[idx:] {
				column += "." + namer.ColumnName(rest)
			}
			return clause.Column{Path: column}, nil
		}

		for i := 0; i < hops; i++ {
			column += "." + schema.BaseSegment
		}
		column += "." + field.InternalName

		last := idx == len(segments)-1
		if ref := field.AssociatedField; ref != nil {
			current = ref.Table
			if last {
				if current.IDField == nil {
					return clause.Column{Path: column}, fmt.Errorf("%w: associated table %s of %s", ErrNoSingleID, current.Name, field)
				}
				column += "." + current.IDField.InternalName
			}
		} else if !last {
			return clause.Column{Path: column}, fmt.Errorf("%w: %s is not an association in %s", ErrInvalidField, field, path)
		}
	}
	return clause.Column{Path: column}, nil
}

// reachable finds the column prefix of target from root: root itself, one of its base tables or a table joined through associations
func reachable(root, target *schema.Table) (string, bool) {
	type step struct {
		table  *schema.Table
		prefix string
		via    *schema.Field
	}

	queue := []step{{table: root, prefix: root.Name}}
	visited := map[*schema.Table]bool{}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s.table == target {
			return s.prefix, true
		}
		if visited[s.table] {
			continue
		}
		visited[s.table] = true

		if base := s.table.Extends; base != nil {
			queue = append(queue, step{table: base, prefix: s.prefix + "." + schema.BaseSegment})
		}
		for _, field := range s.table.Fields {
			if ref := field.AssociatedField; ref != nil && ref != s.via {
				queue = append(queue, step{table: ref.Table, prefix: s.prefix + "." + field.InternalName, via: field})
			}
		}
	}
	return "", false
}
