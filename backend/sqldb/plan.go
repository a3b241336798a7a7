package sqldb

import (
	"fmt"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/hydrate"
	"github.com/entmap/entmap/schema"
)

// column selected entity column, its result name is its path
type column struct {
	path     string
	dataType schema.DataType
}

// join one LEFT JOIN, left and right are the column paths compared by the ON clause
type join struct {
	table string
	alias string
	left  string
	right string
}

// plan joined shape of a query target: every table reached within MaxDepth, aliased by its path
type plan struct {
	target  *schema.Table
	columns []column
	joins   []join
	aliases map[string]bool
	// many is set when a join may repeat the root row
	many bool
}

func (b *Backend) plan(target *schema.Table) (*plan, error) {
	p := &plan{target: target, aliases: map[string]bool{target.Name: true}}
	if err := p.expand(target, target.Name, 0, nil, b.MaxDepth); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *plan) join(table, alias, left, right string) {
	p.joins = append(p.joins, join{table: table, alias: alias, left: left, right: right})
	p.aliases[alias] = true
}

// expand follows the same rules as the memory backend: base portions live under prefix._base and the association
// walked to reach a table is never walked back
func (p *plan) expand(table *schema.Table, prefix string, depth int, via *schema.Field, maxDepth int) error {
	if base := table.Extends; base != nil {
		basePrefix := hydrate.Path(prefix, schema.BaseSegment)
		p.join(base.Name, basePrefix,
			hydrate.Path(basePrefix, base.IDField.InternalName), hydrate.Path(prefix, table.IDField.InternalName))
		if err := p.expand(base, basePrefix, depth, via, maxDepth); err != nil {
			return err
		}
	}

	for _, field := range table.Fields {
		ref := field.AssociatedField
		if ref == nil {
			p.columns = append(p.columns, column{path: hydrate.Path(prefix, field.InternalName), dataType: field.DataType})
			continue
		}

		if depth >= maxDepth || (via != nil && ref == via) {
			continue
		}

		if err := referable(field); err != nil {
			return err
		}

		path := hydrate.Path(prefix, field.InternalName)
		switch {
		case field.JoinTable != "":
			link := path + "#" + field.JoinTable
			p.join(field.JoinTable, link,
				hydrate.Path(link, joinColumn(field)), hydrate.Path(prefix, table.IDField.InternalName))
			p.join(ref.Table.Name, path,
				hydrate.Path(path, ref.Table.IDField.InternalName), hydrate.Path(link, joinColumn(ref)))
			p.many = true
		case field.ForeignKeyOwner() == field:
			p.join(ref.Table.Name, path,
				hydrate.Path(path, ref.Table.IDField.InternalName), hydrate.Path(prefix, field.InternalName))
		default:
			p.join(ref.Table.Name, path,
				hydrate.Path(path, ref.InternalName), hydrate.Path(prefix, table.IDField.InternalName))
			if field.IsArray {
				p.many = true
			}
		}

		if err := p.expand(ref.Table, path, depth+1, field, maxDepth); err != nil {
			return err
		}
	}
	return nil
}

// referable checks both sides of an association can be referenced by id
func referable(field *schema.Field) error {
	for _, f := range []*schema.Field{field, field.AssociatedField} {
		if f.Table.IDField == nil {
			return fmt.Errorf("%w: %s can not be referenced by %s", schema.ErrNoIDField, f.Table.Name, field)
		}
	}
	return nil
}

// joinColumn column of a join table holding the id of field's table
func joinColumn(field *schema.Field) string {
	if field.Table.Name == field.AssociatedField.Table.Name {
		return field.InternalName + "_" + field.Table.IDField.InternalName
	}
	return field.Table.Name + "_" + field.Table.IDField.InternalName
}

// check reports columns referenced by the query that live outside the joined tables
func (p *plan) check(q *clause.Query) error {
	exprs := make([]clause.Expression, 0, len(q.Groups)+len(q.Aliases)+len(q.Orders)+1)
	if q.Condition != nil {
		exprs = append(exprs, q.Condition)
	}
	exprs = append(exprs, q.Groups...)
	for _, alias := range q.Aliases {
		exprs = append(exprs, alias.Expr)
	}
	for _, order := range q.Orders {
		exprs = append(exprs, order.Column)
	}

	for _, expr := range exprs {
		for _, c := range clause.Columns(expr) {
			if prefix, _ := c.Split(); !p.aliases[prefix] {
				return fmt.Errorf("%w: %s is not joined, raise MaxDepth to reach it", ErrUnsupported, c.Path)
			}
		}
	}
	return nil
}

// keyColumns returns the paths identifying a root row: its primary columns, or every column when it has none
func (p *plan) keyColumns() []string {
	var keys []string
	for _, field := range p.target.PrimaryFields() {
		keys = append(keys, hydrate.Path(p.target.Name, field.InternalName))
	}
	if len(keys) > 0 {
		return keys
	}

	for _, field := range p.target.Fields {
		if field.AssociatedField == nil {
			keys = append(keys, hydrate.Path(p.target.Name, field.InternalName))
		}
	}
	return keys
}

// writeFrom writes the FROM clause with every join
func (p *plan) writeFrom(stmt *Statement) {
	stmt.WriteString(" FROM ")
	stmt.WriteQuoted(p.target.Name)
	stmt.WriteString(" AS ")
	stmt.WriteQuoted(p.target.Name)

	for _, j := range p.joins {
		stmt.WriteString(" LEFT JOIN ")
		stmt.WriteQuoted(j.table)
		stmt.WriteString(" AS ")
		stmt.WriteQuoted(j.alias)
		stmt.WriteString(" ON ")
		stmt.WriteQuoted(clause.Column{Path: j.left})
		stmt.WriteString(" = ")
		stmt.WriteQuoted(clause.Column{Path: j.right})
	}
}

func writeWhere(stmt *Statement, q *clause.Query) {
	if q.Condition != nil {
		stmt.WriteString(" WHERE ")
		q.Condition.Build(stmt)
	}
}
