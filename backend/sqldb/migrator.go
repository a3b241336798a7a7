package sqldb

import (
	"context"

	"github.com/entmap/entmap/schema"
)

// CreateSchema creates every missing table and join table, existing tables are left untouched
func (b *Backend) CreateSchema(ctx context.Context) error {
	if err := b.ready(); err != nil {
		return err
	}

	c := b.conn()
	joins := map[string]bool{}
	for _, table := range b.reg.Tables() {
		if _, err := c.exec(ctx, b.createTable(table)); err != nil {
			return err
		}

		for _, field := range table.Fields {
			if field.JoinTable == "" || joins[field.JoinTable] {
				continue
			}
			if err := referable(field); err != nil {
				return err
			}
			joins[field.JoinTable] = true
			if _, err := c.exec(ctx, b.createJoinTable(field)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backend) createTable(table *schema.Table) *Statement {
	var (
		stmt    = b.statement()
		columns []func()
		single  = table.IDField
		primary = table.PrimaryFields()
		keys    = map[*schema.Field]bool{}
	)
	for _, field := range primary {
		keys[field] = true
	}

	for _, field := range table.Fields {
		field := field
		ref := field.AssociatedField
		switch {
		case ref == nil:
			columns = append(columns, func() {
				stmt.WriteQuoted(field.InternalName)
				stmt.WriteByte(' ')
				switch {
				case field == single && table.Extends == nil && b.Dialect.PrimaryKeyTag(field.DataType) != "":
					stmt.WriteString(b.Dialect.PrimaryKeyTag(field.DataType))
				case field == single:
					stmt.WriteString(b.Dialect.DataTypeOf(field.DataType, true))
					stmt.WriteString(" NOT NULL PRIMARY KEY")
				case keys[field]:
					stmt.WriteString(b.Dialect.DataTypeOf(field.DataType, true))
					stmt.WriteString(" NOT NULL")
				default:
					stmt.WriteString(b.Dialect.DataTypeOf(field.DataType, false))
				}
			})
		case field.JoinTable == "" && field.ForeignKeyOwner() == field && ref.Table.IDField != nil:
			columns = append(columns, func() {
				stmt.WriteQuoted(field.InternalName)
				stmt.WriteByte(' ')
				stmt.WriteString(b.Dialect.DataTypeOf(ref.Table.IDField.DataType, true))
			})
		}
	}

	if single == nil && len(primary) > 0 {
		columns = append(columns, func() {
			stmt.WriteString("PRIMARY KEY (")
			stmt.List(len(primary), func(idx int) { stmt.WriteQuoted(primary[idx].InternalName) })
			stmt.WriteByte(')')
		})
	}

	stmt.WriteString("CREATE TABLE IF NOT EXISTS ")
	stmt.WriteQuoted(table.Name)
	stmt.WriteString(" (")
	stmt.List(len(columns), func(idx int) { columns[idx]() })
	stmt.WriteByte(')')
	return stmt
}

func (b *Backend) createJoinTable(field *schema.Field) *Statement {
	sides := []*schema.Field{field, field.AssociatedField}
	if !field.Leading {
		sides[0], sides[1] = sides[1], sides[0]
	}

	stmt := b.statement()
	stmt.WriteString("CREATE TABLE IF NOT EXISTS ")
	stmt.WriteQuoted(field.JoinTable)
	stmt.WriteString(" (")
	for _, side := range sides {
		stmt.WriteQuoted(joinColumn(side))
		stmt.WriteByte(' ')
		stmt.WriteString(b.Dialect.DataTypeOf(side.Table.IDField.DataType, true))
		stmt.WriteString(" NOT NULL,")
	}
	stmt.WriteString("PRIMARY KEY (")
	stmt.WriteQuoted(joinColumn(sides[0]))
	stmt.WriteByte(',')
	stmt.WriteQuoted(joinColumn(sides[1]))
	stmt.WriteString("))")
	return stmt
}
