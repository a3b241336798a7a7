package sqldb

import (
	"strings"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/dialect"
)

// Statement SQL text and its vars, built by clause expressions
type Statement struct {
	strings.Builder
	Dialect dialect.Dialect
	Vars    []interface{}
}

func (b *Backend) statement() *Statement {
	return &Statement{Dialect: b.Dialect}
}

// WriteQuoted writes a quoted column reference or name, a column is written as its quoted prefix and name
func (stmt *Statement) WriteQuoted(field interface{}) {
	switch v := field.(type) {
	case clause.Column:
		prefix, name := v.Split()
		if prefix != "" {
			stmt.Dialect.Quote(stmt, prefix)
			stmt.WriteByte('.')
		}
		stmt.Dialect.Quote(stmt, name)
	case string:
		stmt.Dialect.Quote(stmt, v)
	}
}

// AddVar appends vars, writing their placeholders to writer
func (stmt *Statement) AddVar(writer clause.Writer, vars ...interface{}) {
	for idx, v := range vars {
		if idx > 0 {
			writer.WriteByte(',')
		}
		stmt.Vars = append(stmt.Vars, v)
		stmt.Dialect.BindVar(writer, len(stmt.Vars))
	}
}

// Column writes the quoted column of the table aliased as prefix
func (stmt *Statement) Column(prefix, name string) {
	stmt.WriteQuoted(clause.Column{Path: prefix + "." + name})
}

// List writes n comma separated items
func (stmt *Statement) List(n int, item func(idx int)) {
	for idx := 0; idx < n; idx++ {
		if idx > 0 {
			stmt.WriteByte(',')
		}
		item(idx)
	}
}
