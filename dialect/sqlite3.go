package dialect

import (
	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/schema"
)

// SQLite dialect of both mattn/go-sqlite3 and modernc.org/sqlite
type SQLite struct{}

func (SQLite) Name() string {
	return "sqlite"
}

func (SQLite) BindVar(w clause.Writer, n int) {
	w.WriteByte('?')
}

func (SQLite) Quote(w clause.Writer, name string) {
	quoteWith(w, name, '"')
}

func (SQLite) DataTypeOf(dataType schema.DataType, key bool) string {
	switch dataType {
	case schema.Bool:
		return "numeric"
	case schema.Int, schema.Uint:
		return "integer"
	case schema.Float:
		return "real"
	case schema.Time:
		return "datetime"
	case schema.Bytes:
		return "blob"
	default:
		return "text"
	}
}

func (SQLite) PrimaryKeyTag(dataType schema.DataType) string {
	switch dataType {
	case schema.Int, schema.Uint:
		return "integer PRIMARY KEY AUTOINCREMENT"
	}
	return ""
}

func (SQLite) SupportLastInsertId() bool {
	return true
}

func (SQLite) ReturningStr(column string) string {
	return ""
}

func (SQLite) Explain(sql string, vars ...interface{}) string {
	return logger.ExplainSQL(sql, nil, `"`, vars...)
}

func (SQLite) Translate(err error) error {
	return translateSQLite(err)
}
