package memory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/schema"
	"github.com/entmap/entmap/utils"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

type record struct {
	key    string
	values map[string]interface{}
}

// store records of one table in insertion order
type store struct {
	table   *schema.Table
	records map[string]*record
	order   []string
	seq     int64
}

func newStore(table *schema.Table) *store {
	return &store{table: table, records: map[string]*record{}}
}

func (s *store) get(key string) *record {
	return s.records[key]
}

func (s *store) put(rec *record) {
	if _, ok := s.records[rec.key]; !ok {
		s.order = append(s.order, rec.key)
	}
	s.records[rec.key] = rec
}

func (s *store) remove(key string) bool {
	if _, ok := s.records[key]; !ok {
		return false
	}

	delete(s.records, key)
	for idx, k := range s.order {
		if k == key {
			s.order = append(s.order[:idx], s.order[idx+1:]...)
			break
		}
	}
	return true
}

func (s *store) all() []*record {
	records := make([]*record, 0, len(s.order))
	for _, key := range s.order {
		records = append(records, s.records[key])
	}
	return records
}

// joinSet pairs of a many to many association, lead holds keys of the leading field's table
type joinSet struct {
	pairs []pair
}

type pair struct {
	lead, other string
}

func (j *joinSet) add(field *schema.Field, key, related string) {
	p := pair{lead: key, other: related}
	if !field.Leading {
		p = pair{lead: related, other: key}
	}

	for _, existing := range j.pairs {
		if existing == p {
			return
		}
	}
	j.pairs = append(j.pairs, p)
}

func (j *joinSet) match(field *schema.Field, key string) []string {
	var keys []string
	for _, p := range j.pairs {
		switch {
		case field.Leading && p.lead == key:
			keys = append(keys, p.other)
		case !field.Leading && p.other == key:
			keys = append(keys, p.lead)
		}
	}
	return keys
}

func (j *joinSet) removeKey(field *schema.Field, key string) {
	pairs := j.pairs[:0]
	for _, p := range j.pairs {
		if (field.Leading && p.lead == key) || (!field.Leading && p.other == key) {
			continue
		}
		pairs = append(pairs, p)
	}
	j.pairs = pairs
}

func keyOf(values ...interface{}) string {
	return utils.ToStringKey(values...)
}

// entityKey returns the key of an entity from its primary fields
func entityKey(table *schema.Table, entity interface{}) (string, bool) {
	primary := table.PrimaryFields()
	if len(primary) == 0 {
		return "", false
	}

	values := make([]interface{}, 0, len(primary))
	for _, field := range primary {
		values = append(values, field.Get(entity))
	}
	return keyOf(values...), true
}

func relatedID(table *schema.Table, related interface{}) (interface{}, error) {
	if table.IDField == nil {
		return nil, fmt.Errorf("%w: %s can not be referenced", schema.ErrNoIDField, table.Name)
	}
	return table.IDField.Get(related), nil
}

func root(table *schema.Table) *schema.Table {
	for table.Extends != nil {
		table = table.Extends
	}
	return table
}

func (b *Backend) store(table *schema.Table) (*store, error) {
	s, ok := b.stores[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, table.Name)
	}
	return s, nil
}

// Insert stores item, its base portions and the references to already stored related entities
func (b *Backend) Insert(ctx context.Context, q *clause.Query, item interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ready(); err != nil {
		return err
	}

	table, err := b.reg.LookupTable(item)
	if err != nil {
		return err
	}

	for t := table; t != nil; t = t.Extends {
		if _, err := b.store(t); err != nil {
			return err
		}
	}

	if err := b.generateID(table, item); err != nil {
		return err
	}

	if key, ok := entityKey(table, item); ok {
		for t := table; t != nil; t = t.Extends {
			if b.stores[t].get(key) != nil {
				return fmt.Errorf("%w: %s %s", ErrDuplicateKey, t.Name, key)
			}
		}
	}

	return b.insertPortion(table, item)
}

// generateID fills a zero id, integers are sequenced on the root table of the hierarchy and strings get a UUID
func (b *Backend) generateID(table *schema.Table, item interface{}) error {
	id := table.IDField
	if id == nil {
		return nil
	}

	s := b.stores[root(table)]
	value := id.Get(item)

	switch id.DataType {
	case schema.Int, schema.Uint:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", schema.ErrInvalidValue, id, err)
		}
		if n == 0 {
			s.seq++
			return id.Set(item, s.seq)
		}
		if n > s.seq {
			s.seq = n
		}
	case schema.String:
		if cast.ToString(value) == "" {
			return id.Set(item, uuid.NewString())
		}
	}
	return nil
}

func (b *Backend) insertPortion(table *schema.Table, entity interface{}) error {
	if base := table.Extends; base != nil {
		if err := b.insertPortion(base, table.View(entity, base)); err != nil {
			return err
		}
	}

	s := b.stores[table]
	key, ok := entityKey(table, entity)
	if !ok {
		s.seq++
		key = "#" + strconv.FormatInt(s.seq, 10)
	}

	rec := &record{key: key, values: map[string]interface{}{}}
	for _, field := range table.Fields {
		ref := field.AssociatedField
		switch {
		case ref == nil:
			rec.values[field.InternalName] = field.Get(entity)
		case field.JoinTable != "":
			joins := b.joins[field.JoinTable]
			for _, related := range field.Items(entity) {
				id, err := relatedID(ref.Table, related)
				if err != nil {
					return err
				}
				joins.add(field, key, keyOf(id))
			}
		case field.ForeignKeyOwner() == field:
			rec.values[field.InternalName] = nil
			if items := field.Items(entity); len(items) > 0 {
				id, err := relatedID(ref.Table, items[0])
				if err != nil {
					return err
				}
				rec.values[field.InternalName] = id
			}
		default:
			// the related records hold the reference
			refStore, ok := b.stores[ref.Table]
			if !ok || table.IDField == nil {
				continue
			}
			for _, related := range field.Items(entity) {
				relKey, ok := entityKey(ref.Table, related)
				if !ok {
					continue
				}
				if r := refStore.get(relKey); r != nil {
					r.values[ref.InternalName] = table.IDField.Get(entity)
				}
			}
		}
	}

	s.put(rec)
	return nil
}

// deleteRecord removes the whole entity stored under key: every portion of its hierarchy and the references to it
func (b *Backend) deleteRecord(table *schema.Table, key string) {
	b.deleteDown(root(table), key)
}

func (b *Backend) deleteDown(table *schema.Table, key string) {
	if s, ok := b.stores[table]; ok && s.remove(key) {
		for _, field := range table.Fields {
			ref := field.AssociatedField
			switch {
			case ref == nil:
			case field.JoinTable != "":
				if joins := b.joins[field.JoinTable]; joins != nil {
					joins.removeKey(field, key)
				}
			case field.ForeignKeyOwner() == ref:
				refStore, ok := b.stores[ref.Table]
				if !ok {
					continue
				}
				for _, r := range refStore.all() {
					if v := r.values[ref.InternalName]; v != nil && keyOf(v) == key {
						r.values[ref.InternalName] = nil
					}
				}
			}
		}
	}

	for _, child := range table.ExtendedBy {
		b.deleteDown(child, key)
	}
}
