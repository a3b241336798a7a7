package hydrate

import (
	"strings"

	"github.com/entmap/entmap/schema"
)

// Row flat result row keyed by column path, eg: user.groups.id
type Row map[string]interface{}

// Path joins a prefix and a column name
func Path(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// HasPrefix reports whether any column of the row lives under prefix
func (row Row) HasPrefix(prefix string) bool {
	if prefix == "" {
		return len(row) > 0
	}

	prefix += "."
	for key := range row {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Flatten copies every field of item into a row, base portions are written under prefix._base
func Flatten(reg *schema.Registry, item interface{}, prefix string) (Row, error) {
	table, err := reg.LookupTable(item)
	if err != nil {
		return nil, err
	}

	row := Row{}
	flatten(table, item, prefix, row)
	return row, nil
}

func flatten(table *schema.Table, entity interface{}, prefix string, row Row) {
	if base := table.Extends; base != nil {
		flatten(base, table.View(entity, base), Path(prefix, schema.BaseSegment), row)
	}

	for _, field := range table.Fields {
		row[Path(prefix, field.InternalName)] = field.Get(entity)
	}
}
