package dialect

import (
	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/schema"
)

// MySQL dialect of go-sql-driver/mysql, the DSN needs parseTime=true to read time columns
type MySQL struct{}

func (MySQL) Name() string {
	return "mysql"
}

func (MySQL) BindVar(w clause.Writer, n int) {
	w.WriteByte('?')
}

func (MySQL) Quote(w clause.Writer, name string) {
	quoteWith(w, name, '`')
}

func (MySQL) DataTypeOf(dataType schema.DataType, key bool) string {
	switch dataType {
	case schema.Bool:
		return "boolean"
	case schema.Int:
		return "bigint"
	case schema.Uint:
		return "bigint unsigned"
	case schema.Float:
		return "double"
	case schema.Time:
		return "datetime(3)"
	case schema.Bytes:
		if key {
			return "varbinary(255)"
		}
		return "longblob"
	default:
		if key {
			return "varchar(191)"
		}
		return "longtext"
	}
}

func (m MySQL) PrimaryKeyTag(dataType schema.DataType) string {
	switch dataType {
	case schema.Int, schema.Uint:
		return m.DataTypeOf(dataType, true) + " NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}
	return ""
}

func (MySQL) SupportLastInsertId() bool {
	return true
}

func (MySQL) ReturningStr(column string) string {
	return ""
}

func (MySQL) Explain(sql string, vars ...interface{}) string {
	return logger.ExplainSQL(sql, nil, `'`, vars...)
}

func (MySQL) Translate(err error) error {
	return translateMySQL(err)
}
