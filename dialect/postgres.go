package dialect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/schema"
)

var numericPlaceholder = regexp.MustCompile(`\$(\d+)`)

// Postgres dialect of lib/pq and jackc/pgx
type Postgres struct{}

func (Postgres) Name() string {
	return "postgres"
}

func (Postgres) BindVar(w clause.Writer, n int) {
	w.WriteByte('$')
	w.WriteString(strconv.Itoa(n))
}

func (Postgres) Quote(w clause.Writer, name string) {
	quoteWith(w, name, '"')
}

func (Postgres) DataTypeOf(dataType schema.DataType, key bool) string {
	switch dataType {
	case schema.Bool:
		return "boolean"
	case schema.Int, schema.Uint:
		return "bigint"
	case schema.Float:
		return "double precision"
	case schema.Time:
		return "timestamp with time zone"
	case schema.Bytes:
		return "bytea"
	default:
		return "text"
	}
}

func (Postgres) PrimaryKeyTag(dataType schema.DataType) string {
	switch dataType {
	case schema.Int, schema.Uint:
		return "bigserial PRIMARY KEY"
	}
	return ""
}

func (Postgres) SupportLastInsertId() bool {
	return false
}

func (p Postgres) ReturningStr(column string) string {
	var b strings.Builder
	b.WriteString("RETURNING ")
	p.Quote(&b, column)
	return b.String()
}

func (Postgres) Explain(sql string, vars ...interface{}) string {
	return logger.ExplainSQL(sql, numericPlaceholder, `'`, vars...)
}

func (Postgres) Translate(err error) error {
	return translatePostgres(err)
}
