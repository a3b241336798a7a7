package schema

import (
	"time"
)

// DataType declared type of a field
type DataType string

const (
	Bool   DataType = "bool"
	Int    DataType = "int"
	Uint   DataType = "uint"
	Float  DataType = "float"
	String DataType = "string"
	Time   DataType = "time"
	Bytes  DataType = "bytes"
)

// Field schema of one mapped property
type Field struct {
	Table           *Table
	Name            string
	InternalName    string
	DataType        DataType
	AssociatedField *Field
	IsArray         bool
	// Leading marks the side of the association that owns the reference
	Leading   bool
	JoinTable string

	accessor Accessor
}

func newField(table *Table, name string, dataType DataType) *Field {
	return &Field{
		Table:        table,
		Name:         name,
		InternalName: table.namer().ColumnName(name),
		DataType:     dataType,
	}
}

func (field *Field) String() string {
	return field.Table.Name + "." + field.InternalName
}

// Accessor returns the property accessor bound to the field
func (field *Field) Accessor() Accessor {
	return field.accessor
}

// IsAssociation reports whether the field links to another table
func (field *Field) IsAssociation() bool {
	return field.AssociatedField != nil
}

// Associate links two fields symmetrically, field becomes the leading side
func (field *Field) Associate(other *Field) {
	field.AssociatedField = other
	field.Leading = true

	other.AssociatedField = field
	other.Leading = false

	field.JoinTable, other.JoinTable = "", ""
	if field.IsArray && other.IsArray {
		var tableName string
		if field.Table.Name < other.Table.Name || (field.Table.Name == other.Table.Name && field.InternalName < other.InternalName) {
			tableName = field.Table.namer().JoinTableName(field.Table.Name, field.InternalName)
		} else {
			tableName = other.Table.namer().JoinTableName(other.Table.Name, other.InternalName)
		}

		field.JoinTable, other.JoinTable = tableName, tableName
	}
}

// ForeignKeyOwner returns the side of the association storing the reference column, nil for join tables
func (field *Field) ForeignKeyOwner() *Field {
	ref := field.AssociatedField
	switch {
	case ref == nil || field.JoinTable != "":
		return nil
	case field.IsArray:
		return ref
	case ref.IsArray:
		return field
	case field.Leading:
		return field
	default:
		return ref
	}
}

// Get reads the property from the entity portion owned by field.Table
func (field *Field) Get(entity interface{}) interface{} {
	return field.accessor.Get(entity)
}

// Set writes the property on the entity portion owned by field.Table
func (field *Field) Set(entity, value interface{}) error {
	return field.accessor.Set(entity, value)
}

// Append adds value to an array association
func (field *Field) Append(entity, value interface{}) error {
	return field.accessor.Append(entity, value)
}

// Items returns the related entities of an association
func (field *Field) Items(entity interface{}) []interface{} {
	return field.accessor.Items(entity)
}

func dataTypeOf(value interface{}) DataType {
	switch value.(type) {
	case bool:
		return Bool
	case int, int8, int16, int32, int64:
		return Int
	case uint, uint8, uint16, uint32, uint64:
		return Uint
	case float32, float64:
		return Float
	case string:
		return String
	case time.Time:
		return Time
	case []byte:
		return Bytes
	default:
		return ""
	}
}
