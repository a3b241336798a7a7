package clause_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/entmap/entmap/clause"
	"github.com/stretchr/testify/assert"
)

type testBuilder struct {
	strings.Builder
	vars []interface{}
}

func (b *testBuilder) WriteQuoted(field interface{}) {
	column := field.(clause.Column)
	prefix, name := column.Split()
	fmt.Fprintf(b, "`%s`.`%s`", prefix, name)
}

func (b *testBuilder) AddVar(w clause.Writer, vars ...interface{}) {
	for idx, v := range vars {
		if idx > 0 {
			w.WriteByte(',')
		}
		b.vars = append(b.vars, v)
		w.WriteByte('?')
	}
}

func TestBuild(t *testing.T) {
	results := []struct {
		Expr   clause.Expression
		Result string
		Vars   []interface{}
	}{{
		Expr:   clause.Binary{Op: clause.Eq, Left: clause.Column{Path: "user.user_name"}, Right: clause.Literal{Value: "bob"}},
		Result: "`user`.`user_name` = ?",
		Vars:   []interface{}{"bob"},
	}, {
		Expr: clause.Binary{
			Op:    clause.Or,
			Left:  clause.Binary{Op: clause.Ge, Left: clause.Column{Path: "user.id"}, Right: clause.Literal{Value: 3}},
			Right: clause.Binary{Op: clause.Neq, Left: clause.Column{Path: "user.groups.id"}, Right: clause.Literal{}},
		},
		Result: "(`user`.`id` >= ? OR `user.groups`.`id` IS NOT NULL)",
		Vars:   []interface{}{3},
	}, {
		Expr:   clause.Binary{Op: clause.Eq, Left: clause.Column{Path: "admin._base.user_name"}, Right: clause.Literal{}},
		Result: "`admin._base`.`user_name` IS NULL",
	}, {
		Expr:   clause.Call{Func: "sum", Args: []clause.Expression{clause.Column{Path: "post.id"}}},
		Result: "SUM(`post`.`id`)",
	}, {
		Expr:   clause.Binary{Op: clause.Lt, Left: clause.Literal{Value: 1}, Right: clause.Literal{Value: 2}},
		Result: "? < ?",
		Vars:   []interface{}{1, 2},
	}}

	for idx, result := range results {
		t.Run(fmt.Sprintf("case #%v", idx), func(t *testing.T) {
			var builder testBuilder
			result.Expr.Build(&builder)
			assert.Equal(t, result.Result, builder.String())
			assert.Equal(t, result.Vars, builder.vars)
		})
	}
}

func TestColumnSplit(t *testing.T) {
	prefix, name := clause.Column{Path: "user.groups.id"}.Split()
	assert.Equal(t, "user.groups", prefix)
	assert.Equal(t, "id", name)

	prefix, name = clause.Column{Path: "id"}.Split()
	assert.Equal(t, "", prefix)
	assert.Equal(t, "id", name)
}

func TestAggregates(t *testing.T) {
	sum := clause.Call{Func: "Sum", Args: []clause.Expression{clause.Column{Path: "post.id"}}}
	lower := clause.Call{Func: "lower", Args: []clause.Expression{clause.Column{Path: "user.user_name"}}}

	assert.True(t, sum.Aggregate())
	assert.False(t, lower.Aggregate())
	assert.True(t, clause.HasAggregate(clause.Binary{Op: clause.Gt, Left: sum, Right: clause.Literal{Value: 1}}))
	assert.False(t, clause.HasAggregate(lower))

	q := clause.Query{Aliases: []clause.Alias{{Expr: lower, Name: "lower"}}}
	assert.False(t, q.Aggregated())
	q.Aliases = append(q.Aliases, clause.Alias{Expr: sum, Name: "total"})
	assert.True(t, q.Aggregated())
}

func TestColumns(t *testing.T) {
	expr := clause.Binary{
		Op:    clause.And,
		Left:  clause.Binary{Op: clause.Eq, Left: clause.Column{Path: "user.id"}, Right: clause.Literal{Value: 1}},
		Right: clause.Call{Func: "max", Args: []clause.Expression{clause.Column{Path: "user.posts.id"}}},
	}
	assert.Equal(t, []clause.Column{{Path: "user.id"}, {Path: "user.posts.id"}}, clause.Columns(expr))
	assert.True(t, clause.IsNull(clause.Literal{}))
	assert.False(t, clause.IsNull(clause.Column{Path: "user.id"}))
}
