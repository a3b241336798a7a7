package entmap

import (
	"github.com/entmap/entmap/clause"
)

// Operand one side of a comparison, built with F, V, E or X
type Operand interface {
	operand()
}

type fieldOperand struct{ path string }

type valueOperand struct{ value interface{} }

type entityOperand struct{ entity interface{} }

type exprOperand struct{ expr clause.Expression }

func (fieldOperand) operand() {}
func (valueOperand) operand() {}
func (entityOperand) operand() {}
func (exprOperand) operand() {}

// F references a field by its dotted path, resolved against the query target
//
//	F("groups.name")
func F(path string) Operand {
	return fieldOperand{path: path}
}

// V quotes a literal value
func V(value interface{}) Operand {
	return valueOperand{value: value}
}

// E stands for the id of a registered entity instance
func E(entity interface{}) Operand {
	return entityOperand{entity: entity}
}

// X wraps a prebuilt expression
func X(expr clause.Expression) Operand {
	return exprOperand{expr: expr}
}
