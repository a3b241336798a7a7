package memory

import (
	"github.com/entmap/entmap/hydrate"
	"github.com/entmap/entmap/schema"
)

// keyColumn carries the record key of the root entity in every row
const keyColumn = "#key"

// rows joins every record of table with its associations up to MaxDepth, left join style
func (b *Backend) rows(table *schema.Table) ([]hydrate.Row, error) {
	s, err := b.store(table)
	if err != nil {
		return nil, err
	}

	var rows []hydrate.Row
	for _, rec := range s.all() {
		expanded := b.expand(table, rec, table.Name, 0, nil)
		for _, row := range expanded {
			row[hydrate.Path(table.Name, keyColumn)] = rec.key
		}
		rows = append(rows, expanded...)
	}
	return rows, nil
}

// expand returns the rows of one record under prefix, via is the association followed to reach it
func (b *Backend) expand(table *schema.Table, rec *record, prefix string, depth int, via *schema.Field) []hydrate.Row {
	rows := []hydrate.Row{{}}

	if base := table.Extends; base != nil {
		basePrefix := hydrate.Path(prefix, schema.BaseSegment)
		if baseRec := b.baseRecord(base, rec.key); baseRec != nil {
			rows = product(rows, b.expand(base, baseRec, basePrefix, depth, via))
		} else {
			rows = product(rows, []hydrate.Row{nullRow(base, basePrefix)})
		}
	}

	for _, field := range table.Fields {
		path := hydrate.Path(prefix, field.InternalName)
		ref := field.AssociatedField
		if ref == nil {
			for _, row := range rows {
				row[path] = rec.values[field.InternalName]
			}
			continue
		}

		// never walk back through the association we came from
		if depth >= b.MaxDepth || (via != nil && ref == via) {
			continue
		}

		var sub []hydrate.Row
		for _, related := range b.related(field, rec) {
			sub = append(sub, b.expand(ref.Table, related, path, depth+1, field)...)
		}
		if len(sub) == 0 {
			sub = []hydrate.Row{nullRow(ref.Table, path)}
		}
		rows = product(rows, sub)
	}
	return rows
}

func (b *Backend) baseRecord(base *schema.Table, key string) *record {
	if s, ok := b.stores[base]; ok {
		return s.get(key)
	}
	return nil
}

// related returns the records linked to rec through field
func (b *Backend) related(field *schema.Field, rec *record) []*record {
	ref := field.AssociatedField
	refStore, ok := b.stores[ref.Table]
	if !ok {
		return nil
	}

	var records []*record
	switch {
	case field.JoinTable != "":
		if joins := b.joins[field.JoinTable]; joins != nil {
			for _, key := range joins.match(field, rec.key) {
				if r := refStore.get(key); r != nil {
					records = append(records, r)
				}
			}
		}
	case field.ForeignKeyOwner() == field:
		if v := rec.values[field.InternalName]; v != nil {
			if r := refStore.get(keyOf(v)); r != nil {
				records = append(records, r)
			}
		}
	default:
		for _, r := range refStore.all() {
			if v := r.values[ref.InternalName]; v != nil && keyOf(v) == rec.key {
				records = append(records, r)
			}
		}
	}
	return records
}

// nullRow is the row of a missing joined record
func nullRow(table *schema.Table, prefix string) hydrate.Row {
	row := hydrate.Row{}
	if base := table.Extends; base != nil {
		for k, v := range nullRow(base, hydrate.Path(prefix, schema.BaseSegment)) {
			row[k] = v
		}
	}

	for _, field := range table.Fields {
		if field.AssociatedField == nil {
			row[hydrate.Path(prefix, field.InternalName)] = nil
		}
	}
	return row
}

func product(left, right []hydrate.Row) []hydrate.Row {
	rows := make([]hydrate.Row, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			row := make(hydrate.Row, len(l)+len(r))
			for k, v := range l {
				row[k] = v
			}
			for k, v := range r {
				row[k] = v
			}
			rows = append(rows, row)
		}
	}
	return rows
}
