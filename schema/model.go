package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// Declared is implemented by every registered model
type Declared interface {
	Table() *Table
}

// Model declares the mapping of entity type T, calls are meant to run once at startup
//
//	users := schema.Define[User](reg).
//		ID("ID", schema.Prop(func(u *User) *int { return &u.ID })).
//		Field("UserName", schema.Prop(func(u *User) *string { return &u.UserName }))
type Model[T any] struct {
	table *Table
	reg   *Registry
}

// Define returns the model of T, defining it twice returns the same table; once sealed the registry is left
// untouched and the returned model ignores every declaration
func Define[T any](reg *Registry) *Model[T] {
	entityType := reflect.TypeOf((*T)(nil)).Elem()
	if reg.Sealed() {
		table := reg.newTable(entityType)
		if reg.HasTable(entityType) {
			table = reg.tables[entityType]
		}
		reg.AddError(fmt.Errorf("%w: can not define %s", ErrRegistrySealed, table.Name))
		return &Model[T]{table: table, reg: reg}
	}

	table := reg.GetOrCreateTable(entityType)
	if table.newFn == nil {
		table.newFn = func() interface{} { return new(T) }
	}
	return &Model[T]{table: table, reg: reg}
}

// Table returns the table of the model
func (m *Model[T]) Table() *Table {
	return m.table
}

func (m *Model[T]) field(name string, acc Accessor) *Field {
	field := m.table.GetField(name)
	if field == nil {
		field = m.table.CreateField(name, acc.DataType)
	}

	if acc.get != nil {
		field.accessor = acc
		field.IsArray = acc.Kind == ManyKind
	}
	if field.DataType == "" {
		field.DataType = acc.DataType
	}
	return field
}

func (m *Model[T]) writable() bool {
	return !m.reg.Sealed()
}

// Field declares a property, associations may be declared later with Associate
func (m *Model[T]) Field(name string, acc Accessor) *Model[T] {
	if m.writable() {
		m.field(name, acc)
	}
	return m
}

// ID declares the single id property
func (m *Model[T]) ID(name string, acc Accessor) *Model[T] {
	if m.writable() {
		field := m.field(name, acc)
		m.table.IDField = field
		m.table.IDFields = []*Field{field}
	}
	return m
}

// Coalition declares a composite id from already declared properties, names are split on whitespace and commas
func (m *Model[T]) Coalition(names string) *Model[T] {
	if !m.writable() {
		return m
	}

	parts := strings.FieldsFunc(names, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	fields := make([]*Field, 0, len(parts))
	for _, name := range parts {
		field := m.table.GetField(name)
		if field == nil {
			m.reg.AddError(fmt.Errorf("%w: coalition field %s in %s", ErrUnknownField, name, m.table.Name))
			return m
		}
		fields = append(fields, field)
	}

	m.table.IDField = nil
	if len(fields) == 1 {
		m.table.IDField = fields[0]
	}
	m.table.IDFields = fields
	return m
}

// Extends declares T as extending the base model, upcast returns the embedded base value of the entity
//
//	schema.Define[Admin](reg).Extends(users, func(a *Admin) any { return &a.User })
func (m *Model[T]) Extends(base Declared, upcast func(*T) interface{}) *Model[T] {
	if !m.writable() {
		return m
	}

	m.table.upcast = func(e interface{}) interface{} { return upcast(e.(*T)) }
	if err := MarkExtends(m.table, base.Table()); err != nil {
		m.reg.AddError(fmt.Errorf("%w: %s extends %s", err, m.table.Name, base.Table().Name))
	}
	return m
}

// Associate declares an association property reversed by the target's reversedBy property;
// when the reverse property is not declared yet the link is completed by Seal
func (m *Model[T]) Associate(name string, acc Accessor, target Declared, reversedBy string) *Model[T] {
	if !m.writable() {
		return m
	}

	field := m.field(name, acc)
	if !m.reg.link(field, target.Table(), reversedBy) {
		m.reg.pending = append(m.reg.pending, &pendingAssociation{
			field:      field,
			target:     target.Table(),
			reversedBy: reversedBy,
		})
	}
	return m
}
