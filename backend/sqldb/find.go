package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/hydrate"
	"github.com/entmap/entmap/schema"
)

// selectStmt compiled SELECT, names lists the result columns in order: entity paths then alias names
type selectStmt struct {
	*Statement
	plan    *plan
	names   []string
	types   []schema.DataType
	aliases int
	// paged is set when LIMIT and OFFSET were written, the rows then hold exactly the requested roots
	paged bool
}

func (b *Backend) compile(q *clause.Query) (*selectStmt, error) {
	if q == nil || q.Target == nil {
		return nil, fmt.Errorf("%w: query without target", ErrUnsupported)
	}

	p, err := b.plan(q.Target)
	if err != nil {
		return nil, err
	}
	if err := p.check(q); err != nil {
		return nil, err
	}

	s := &selectStmt{Statement: b.statement(), plan: p}
	s.WriteString("SELECT ")
	if q.Distinct {
		s.WriteString("DISTINCT ")
	}

	grouped := map[string]bool{}
	for _, expr := range q.Groups {
		if c, ok := expr.(clause.Column); ok {
			grouped[c.Path] = true
		}
	}

	aggregated := q.Aggregated()
	for idx, c := range p.columns {
		if idx > 0 {
			s.WriteByte(',')
		}
		// a grouped row is represented by the smallest value of every column outside the group list
		if aggregated && !grouped[c.path] {
			s.WriteString("MIN(")
			s.WriteQuoted(clause.Column{Path: c.path})
			s.WriteByte(')')
		} else {
			s.WriteQuoted(clause.Column{Path: c.path})
		}
		s.WriteString(" AS ")
		s.WriteQuoted(c.path)
		s.names = append(s.names, c.path)
		s.types = append(s.types, c.dataType)
	}

	for _, alias := range q.Aliases {
		s.WriteByte(',')
		alias.Expr.Build(s)
		s.WriteString(" AS ")
		s.WriteQuoted(alias.Name)
		s.names = append(s.names, alias.Name)
		s.types = append(s.types, "")
		s.aliases++
	}

	p.writeFrom(s.Statement)
	writeWhere(s.Statement, q)

	if len(q.Groups) > 0 {
		s.WriteString(" GROUP BY ")
		s.List(len(q.Groups), func(idx int) { q.Groups[idx].Build(s) })
	}

	if len(q.Orders) > 0 {
		selected := map[string]bool{}
		for _, name := range s.names {
			selected[name] = true
		}

		s.WriteString(" ORDER BY ")
		s.List(len(q.Orders), func(idx int) {
			order := q.Orders[idx]
			if selected[order.Column.Path] {
				s.WriteQuoted(order.Column.Path)
			} else {
				s.WriteQuoted(order.Column)
			}
			if order.Desc {
				s.WriteString(" DESC")
			}
		})
	}

	if q.Limit != nil && *q.Limit >= 0 && !p.many {
		s.WriteString(" LIMIT ")
		s.WriteString(strconv.Itoa(*q.Limit))
		if q.Offset > 0 {
			s.WriteString(" OFFSET ")
			s.WriteString(strconv.Itoa(q.Offset))
		}
		s.paged = true
	}
	return s, nil
}

// scan reads every row, []byte values of non binary columns are read as strings
func (s *selectStmt) scan(rows *sql.Rows) ([]hydrate.Row, []map[string]interface{}, error) {
	defer rows.Close()

	var (
		results []hydrate.Row
		extras  []map[string]interface{}
		values  = make([]interface{}, len(s.names))
		ptrs    = make([]interface{}, len(s.names))
		entity  = len(s.names) - s.aliases
	)
	for idx := range values {
		ptrs[idx] = &values[idx]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(hydrate.Row, entity)
		extra := make(map[string]interface{}, s.aliases)
		for idx, v := range values {
			if b, ok := v.([]byte); ok && s.types[idx] != schema.Bytes {
				v = string(b)
			}
			if idx < entity {
				row[s.names[idx]] = v
			} else {
				extra[s.names[idx]] = v
			}
		}
		results = append(results, row)
		extras = append(extras, extra)
	}
	return results, extras, rows.Err()
}

// FindAll runs the joined select and hydrates the root entities; offset and limit count root entities
func (b *Backend) FindAll(ctx context.Context, q *clause.Query, extra *[]map[string]interface{}) ([]interface{}, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	s, err := b.compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := b.conn().query(ctx, s.Statement)
	if err != nil {
		return nil, err
	}
	results, aliases, err := s.scan(rows)
	if err != nil {
		return nil, err
	}

	var (
		g      = hydrate.NewGraph()
		order  []int
		extras []map[string]interface{}
		seen   = map[int]bool{}
	)
	for idx, row := range results {
		node, ok := g.Add(q.Target, row, q.Target.Name)
		if !ok || seen[node] {
			continue
		}
		seen[node] = true
		order = append(order, node)
		extras = append(extras, aliases[idx])
	}

	if err := g.Resolve(); err != nil {
		return nil, err
	}

	start, end := 0, len(order)
	if !s.paged {
		start, end = window(q, len(order))
	}

	items := make([]interface{}, 0, end-start)
	for _, node := range order[start:end] {
		items = append(items, g.Entity(node))
	}
	if extra != nil {
		*extra = append((*extra)[:0], extras[start:end]...)
	}
	return items, nil
}

// Total counts the distinct root rows matching the condition
func (b *Backend) Total(ctx context.Context, q *clause.Query) (int64, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}

	stmt, err := b.keysStatement(q, "SELECT COUNT(*) FROM (")
	if err != nil {
		return 0, err
	}
	stmt.WriteString(") AS ")
	stmt.WriteQuoted("total")

	rows, err := b.conn().query(ctx, stmt)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

// keysStatement writes head then the select of the distinct root keys matching the condition
func (b *Backend) keysStatement(q *clause.Query, head string) (*Statement, error) {
	if q == nil || q.Target == nil {
		return nil, fmt.Errorf("%w: query without target", ErrUnsupported)
	}

	p, err := b.plan(q.Target)
	if err != nil {
		return nil, err
	}

	check := &clause.Query{Condition: q.Condition}
	if err := p.check(check); err != nil {
		return nil, err
	}

	stmt := b.statement()
	stmt.WriteString(head)
	stmt.WriteString("SELECT DISTINCT ")
	keys := p.keyColumns()
	stmt.List(len(keys), func(idx int) {
		stmt.WriteQuoted(clause.Column{Path: keys[idx]})
		stmt.WriteString(" AS ")
		stmt.WriteQuoted(keys[idx])
	})
	p.writeFrom(stmt)
	writeWhere(stmt, q)
	return stmt, nil
}

// window returns the bounds of the requested page of n root entities
func window(q *clause.Query, n int) (start, end int) {
	start, end = q.Offset, n
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if q.Limit != nil && *q.Limit >= 0 && start+*q.Limit < end {
		end = start + *q.Limit
	}
	return start, end
}
