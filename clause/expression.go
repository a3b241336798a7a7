package clause

import (
	"strings"
)

// Writer write writer
type Writer interface {
	WriteByte(byte) error
	WriteString(string) (int, error)
}

// Builder builder interface, implemented by SQL statements
type Builder interface {
	Writer
	WriteQuoted(field interface{})
	AddVar(Writer, ...interface{})
}

// Expression closed set of query expression nodes: Literal, Column, Binary and Call
type Expression interface {
	Build(builder Builder)
	expression()
}

// Operator binary operator
type Operator string

const (
	Eq  Operator = "eq"
	Neq Operator = "neq"
	Lt  Operator = "lt"
	Le  Operator = "le"
	Gt  Operator = "gt"
	Ge  Operator = "ge"
	And Operator = "and"
	Or  Operator = "or"
)

var sqlOperators = map[Operator]string{
	Eq:  "=",
	Neq: "<>",
	Lt:  "<",
	Le:  "<=",
	Gt:  ">",
	Ge:  ">=",
	And: "AND",
	Or:  "OR",
}

// Logical reports whether op combines conditions
func (op Operator) Logical() bool {
	return op == And || op == Or
}

// Literal quoted value
type Literal struct {
	Value interface{}
}

func (Literal) expression() {}

// Build build literal, nil is written as NULL
func (literal Literal) Build(builder Builder) {
	if literal.Value == nil {
		builder.WriteString("NULL")
		return
	}
	builder.AddVar(builder, literal.Value)
}

// Column reference to a column through its dotted path, eg: user.groups.id
type Column struct {
	Path string
}

func (Column) expression() {}

// Build build column
func (column Column) Build(builder Builder) {
	builder.WriteQuoted(column)
}

// Split returns the prefix the column belongs to and its name
func (column Column) Split() (prefix, name string) {
	if idx := strings.LastIndexByte(column.Path, '.'); idx >= 0 {
		return column.Path[:idx], column.Path[idx+1:]
	}
	return "", column.Path
}

// Binary comparison or logical combination of two expressions
type Binary struct {
	Op    Operator
	Left  Expression
	Right Expression
}

func (Binary) expression() {}

// Build build binary expression, comparing against NULL is written as IS [NOT] NULL
func (binary Binary) Build(builder Builder) {
	if binary.Op.Logical() {
		builder.WriteByte('(')
		binary.Left.Build(builder)
		builder.WriteByte(' ')
		builder.WriteString(sqlOperators[binary.Op])
		builder.WriteByte(' ')
		binary.Right.Build(builder)
		builder.WriteByte(')')
		return
	}

	if IsNull(binary.Right) && (binary.Op == Eq || binary.Op == Neq) {
		binary.Left.Build(builder)
		if binary.Op == Eq {
			builder.WriteString(" IS NULL")
		} else {
			builder.WriteString(" IS NOT NULL")
		}
		return
	}

	binary.Left.Build(builder)
	builder.WriteByte(' ')
	builder.WriteString(sqlOperators[binary.Op])
	builder.WriteByte(' ')
	binary.Right.Build(builder)
}

// Call function call
type Call struct {
	Func string
	Args []Expression
}

func (Call) expression() {}

// Build build function call
func (call Call) Build(builder Builder) {
	builder.WriteString(strings.ToUpper(call.Func))
	builder.WriteByte('(')
	if len(call.Args) == 0 && strings.EqualFold(call.Func, "count") {
		builder.WriteByte('*')
	}
	for idx, arg := range call.Args {
		if idx > 0 {
			builder.WriteByte(',')
		}
		arg.Build(builder)
	}
	builder.WriteByte(')')
}

var aggregates = map[string]bool{"sum": true, "count": true, "min": true, "max": true, "avg": true}

// Aggregate reports whether the function folds a group of rows
func (call Call) Aggregate() bool {
	return aggregates[strings.ToLower(call.Func)]
}

// IsNull reports whether expr is the NULL literal
func IsNull(expr Expression) bool {
	literal, ok := expr.(Literal)
	return ok && literal.Value == nil
}

// HasAggregate reports whether an aggregate call appears anywhere in expr
func HasAggregate(expr Expression) bool {
	switch e := expr.(type) {
	case Call:
		if e.Aggregate() {
			return true
		}
		for _, arg := range e.Args {
			if HasAggregate(arg) {
				return true
			}
		}
	case Binary:
		return HasAggregate(e.Left) || HasAggregate(e.Right)
	}
	return false
}

// Columns returns every column referenced by expr, in order of appearance
func Columns(expr Expression) []Column {
	var columns []Column
	var walk func(Expression)
	walk = func(expr Expression) {
		switch e := expr.(type) {
		case Column:
			columns = append(columns, e)
		case Binary:
			walk(e.Left)
			walk(e.Right)
		case Call:
			for _, arg := range e.Args {
				walk(arg)
			}
		}
	}
	walk(expr)
	return columns
}
