package schema

import (
	"reflect"
)

// BaseSegment is the column path segment under which the base portion of an extending table lives
const BaseSegment = "_base"

// Table schema of one mapped entity type
type Table struct {
	Name         string
	EntityType   reflect.Type
	Fields       []*Field
	FieldsByName map[string]*Field // keyed by internal name
	// IDField is only set if a single field without coalition is the id
	IDField    *Field
	IDFields   []*Field
	Extends    *Table
	ExtendedBy []*Table

	registry *Registry
	newFn    func() interface{}
	upcast   func(interface{}) interface{}
}

func (table *Table) String() string {
	return table.Name
}

// Registry returns the registry owning the table
func (table *Table) Registry() *Registry {
	return table.registry
}

func (table *Table) namer() Namer {
	if table.registry == nil {
		return NamingStrategy{}
	}
	return table.registry.namer
}

// CreateField creates a field, an already declared field of the same name is returned as is
func (table *Table) CreateField(name string, dataType DataType) *Field {
	if field := table.GetField(name); field != nil {
		return field
	}

	field := newField(table, name, dataType)
	table.setField(field)
	return field
}

func (table *Table) setField(field *Field) {
	if old, ok := table.FieldsByName[field.InternalName]; ok {
		for idx, f := range table.Fields {
			if f == old {
				table.Fields[idx] = field
			}
		}
	} else {
		table.Fields = append(table.Fields, field)
	}
	table.FieldsByName[field.InternalName] = field
}

// GetField returns the field of this table, name is normalised first
func (table *Table) GetField(name string) *Field {
	return table.FieldsByName[table.namer().ColumnName(name)]
}

// HasField reports whether this table declares the field
func (table *Table) HasField(name string) bool {
	_, ok := table.FieldsByName[table.namer().ColumnName(name)]
	return ok
}

// LookUpField searches the table and then its base tables, hops is the number of base tables walked
func (table *Table) LookUpField(name string) (field *Field, hops int) {
	for t := table; t != nil; t = t.Extends {
		if field = t.GetField(name); field != nil {
			return field, hops
		}
		hops++
	}
	return nil, 0
}

// PrimaryFields returns the id field or the coalition fields
func (table *Table) PrimaryFields() []*Field {
	if table.IDField != nil {
		return []*Field{table.IDField}
	}
	return table.IDFields
}

// New allocates an empty entity instance
func (table *Table) New() interface{} {
	if table.newFn == nil {
		return nil
	}
	return table.newFn()
}

// View returns the portion of entity that belongs to the ancestor table
func (table *Table) View(entity interface{}, ancestor *Table) interface{} {
	for t := table; t != nil && t != ancestor; t = t.Extends {
		if t.upcast == nil {
			return entity
		}
		entity = t.upcast(entity)
	}
	return entity
}

// IsA reports whether table is other or extends it
func (table *Table) IsA(other *Table) bool {
	for t := table; t != nil; t = t.Extends {
		if t == other {
			return true
		}
	}
	return false
}

// MarkExtends declares child as extending base, the child gets a fresh copy of the base id field
func MarkExtends(child, base *Table) error {
	if base.IDField == nil {
		return ErrNoIDField
	}

	child.Extends = base
	base.ExtendedBy = append(base.ExtendedBy, child)

	id := newField(child, base.IDField.Name, base.IDField.DataType)
	id.accessor = base.IDField.accessor.through(child.upcast)
	child.setField(id)
	child.IDField = id
	child.IDFields = []*Field{id}
	return nil
}
