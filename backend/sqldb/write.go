package sqldb

import (
	"context"
	"fmt"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/schema"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Insert inserts item and its base portions in one transaction, then links the already stored related entities
func (b *Backend) Insert(ctx context.Context, q *clause.Query, item interface{}) error {
	if err := b.ready(); err != nil {
		return err
	}

	table, err := b.reg.LookupTable(item)
	if err != nil {
		return err
	}

	if id := root(table).IDField; id != nil && id.DataType == schema.String && cast.ToString(table.IDField.Get(item)) == "" {
		if err := table.IDField.Set(item, uuid.NewString()); err != nil {
			return err
		}
	}

	return b.transaction(ctx, func(c *conn) error {
		return c.insertPortion(ctx, table, item)
	})
}

// generated reports whether the database generates the id of table for entity
func generated(table *schema.Table, entity interface{}) bool {
	id := table.IDField
	if id == nil || table.Extends != nil || (id.DataType != schema.Int && id.DataType != schema.Uint) {
		return false
	}
	n, err := cast.ToInt64E(id.Get(entity))
	return err == nil && n == 0
}

func (c *conn) insertPortion(ctx context.Context, table *schema.Table, entity interface{}) error {
	if base := table.Extends; base != nil {
		if err := c.insertPortion(ctx, base, table.View(entity, base)); err != nil {
			return err
		}
	}

	var (
		columns []string
		values  []interface{}
		gen     = generated(table, entity)
	)
	for _, field := range table.Fields {
		ref := field.AssociatedField
		switch {
		case ref == nil:
			if gen && field == table.IDField {
				continue
			}
			columns = append(columns, field.InternalName)
			values = append(values, field.Get(entity))
		case field.JoinTable == "" && field.ForeignKeyOwner() == field:
			if err := referable(field); err != nil {
				return err
			}
			var id interface{}
			if items := field.Items(entity); len(items) > 0 {
				id = ref.Table.IDField.Get(items[0])
			}
			columns = append(columns, field.InternalName)
			values = append(values, id)
		}
	}

	stmt := c.b.statement()
	stmt.WriteString("INSERT INTO ")
	stmt.WriteQuoted(table.Name)
	if len(columns) == 0 {
		if c.b.Dialect.Name() == "mysql" {
			stmt.WriteString(" () VALUES ()")
		} else {
			stmt.WriteString(" DEFAULT VALUES")
		}
	} else {
		stmt.WriteString(" (")
		stmt.List(len(columns), func(idx int) { stmt.WriteQuoted(columns[idx]) })
		stmt.WriteString(") VALUES (")
		stmt.AddVar(stmt, values...)
		stmt.WriteByte(')')
	}

	if gen && c.b.Dialect.ReturningStr(table.IDField.InternalName) != "" {
		stmt.WriteByte(' ')
		stmt.WriteString(c.b.Dialect.ReturningStr(table.IDField.InternalName))

		rows, err := c.query(ctx, stmt)
		if err != nil {
			return err
		}
		var id int64
		if rows.Next() {
			err = rows.Scan(&id)
		} else {
			err = rows.Err()
		}
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return c.b.Dialect.Translate(err)
		}
		if err := table.IDField.Set(entity, id); err != nil {
			return err
		}
	} else {
		result, err := c.exec(ctx, stmt)
		if err != nil {
			return err
		}
		if gen {
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("%w: reading generated id of %s: %v", ErrUnsupported, table.Name, err)
			}
			if err := table.IDField.Set(entity, id); err != nil {
				return err
			}
		}
	}

	return c.link(ctx, table, entity)
}

// link stores the join rows and reverse references of entity, related entities must be stored already
func (c *conn) link(ctx context.Context, table *schema.Table, entity interface{}) error {
	for _, field := range table.Fields {
		ref := field.AssociatedField
		if ref == nil || (field.JoinTable == "" && field.ForeignKeyOwner() == field) {
			continue
		}

		items := field.Items(entity)
		if len(items) == 0 {
			continue
		}
		if err := referable(field); err != nil {
			return err
		}

		id := table.IDField.Get(entity)
		for _, related := range items {
			relID := ref.Table.IDField.Get(related)

			stmt := c.b.statement()
			if field.JoinTable != "" {
				stmt.WriteString("INSERT INTO ")
				stmt.WriteQuoted(field.JoinTable)
				stmt.WriteString(" (")
				stmt.WriteQuoted(joinColumn(field))
				stmt.WriteByte(',')
				stmt.WriteQuoted(joinColumn(ref))
				stmt.WriteString(") VALUES (")
				stmt.AddVar(stmt, id, relID)
				stmt.WriteByte(')')
			} else {
				stmt.WriteString("UPDATE ")
				stmt.WriteQuoted(ref.Table.Name)
				stmt.WriteString(" SET ")
				stmt.WriteQuoted(ref.InternalName)
				stmt.WriteString(" = ")
				stmt.AddVar(stmt, id)
				stmt.WriteString(" WHERE ")
				stmt.WriteQuoted(ref.Table.IDField.InternalName)
				stmt.WriteString(" = ")
				stmt.AddVar(stmt, relID)
			}

			if _, err := c.exec(ctx, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes item, or every root entity matching the condition when item is nil
func (b *Backend) Delete(ctx context.Context, q *clause.Query, item interface{}) error {
	if err := b.ready(); err != nil {
		return err
	}

	if item != nil {
		table, err := b.reg.LookupTable(item)
		if err != nil {
			return err
		}
		primary := table.PrimaryFields()
		if len(primary) == 0 {
			return fmt.Errorf("%w: %s has no id to delete by", ErrUnsupported, table.Name)
		}

		key := make([]interface{}, 0, len(primary))
		for _, field := range primary {
			key = append(key, field.Get(item))
		}
		return b.transaction(ctx, func(c *conn) error {
			return c.deleteDown(ctx, root(table), key)
		})
	}

	if q == nil || q.Target == nil {
		return fmt.Errorf("%w: query without target", ErrUnsupported)
	}
	if len(q.Target.PrimaryFields()) == 0 {
		return fmt.Errorf("%w: %s has no id to delete by", ErrUnsupported, q.Target.Name)
	}

	stmt, err := b.keysStatement(q, "")
	if err != nil {
		return err
	}

	return b.transaction(ctx, func(c *conn) error {
		rows, err := c.query(ctx, stmt)
		if err != nil {
			return err
		}

		var keys [][]interface{}
		n := len(q.Target.PrimaryFields())
		for rows.Next() {
			key := make([]interface{}, n)
			ptrs := make([]interface{}, n)
			for idx := range key {
				ptrs[idx] = &key[idx]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, key)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, key := range keys {
			if err := c.deleteDown(ctx, root(q.Target), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// deleteDown removes the rows stored under key from table and every table extending it, clearing the references to them
func (c *conn) deleteDown(ctx context.Context, table *schema.Table, key []interface{}) error {
	if table.IDField != nil {
		for _, field := range table.Fields {
			ref := field.AssociatedField
			if ref == nil {
				continue
			}

			stmt := c.b.statement()
			switch {
			case field.JoinTable != "":
				stmt.WriteString("DELETE FROM ")
				stmt.WriteQuoted(field.JoinTable)
				stmt.WriteString(" WHERE ")
				stmt.WriteQuoted(joinColumn(field))
				stmt.WriteString(" = ")
				stmt.AddVar(stmt, key[0])
			case field.ForeignKeyOwner() == ref:
				stmt.WriteString("UPDATE ")
				stmt.WriteQuoted(ref.Table.Name)
				stmt.WriteString(" SET ")
				stmt.WriteQuoted(ref.InternalName)
				stmt.WriteString(" = NULL WHERE ")
				stmt.WriteQuoted(ref.InternalName)
				stmt.WriteString(" = ")
				stmt.AddVar(stmt, key[0])
			default:
				continue
			}

			if _, err := c.exec(ctx, stmt); err != nil {
				return err
			}
		}
	}

	primary := table.PrimaryFields()
	stmt := c.b.statement()
	stmt.WriteString("DELETE FROM ")
	stmt.WriteQuoted(table.Name)
	stmt.WriteString(" WHERE ")
	for idx, field := range primary {
		if idx > 0 {
			stmt.WriteString(" AND ")
		}
		stmt.WriteQuoted(field.InternalName)
		stmt.WriteString(" = ")
		stmt.AddVar(stmt, key[idx])
	}
	if _, err := c.exec(ctx, stmt); err != nil {
		return err
	}

	for _, child := range table.ExtendedBy {
		if err := c.deleteDown(ctx, child, key); err != nil {
			return err
		}
	}
	return nil
}

func root(table *schema.Table) *schema.Table {
	for table.Extends != nil {
		table = table.Extends
	}
	return table
}
