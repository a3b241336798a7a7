package dialect

import (
	"fmt"
	"strings"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/schema"
)

// Dialect SQL flavour of one database family
type Dialect interface {
	Name() string
	// BindVar writes the placeholder of the n-th statement variable, n starts at 1
	BindVar(w clause.Writer, n int)
	Quote(w clause.Writer, name string)
	// DataTypeOf returns the column type, key is set for id and reference columns
	DataTypeOf(dataType schema.DataType, key bool) string
	// PrimaryKeyTag returns the definition of a generated id column, empty when the type can not be generated
	PrimaryKeyTag(dataType schema.DataType) string
	SupportLastInsertId() bool
	// ReturningStr returns the clause reading back a generated column after insert
	ReturningStr(column string) string
	// Explain renders sql with its vars inlined, for logging only
	Explain(sql string, vars ...interface{}) string
	// Translate maps driver errors to ErrDuplicatedKey, other errors are returned as is
	Translate(err error) error
}

// New returns the dialect of a database/sql driver name
func New(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "pgx", "pq":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

func quoteWith(w clause.Writer, name string, quote byte) {
	w.WriteByte(quote)
	for idx := 0; idx < len(name); idx++ {
		if name[idx] == quote {
			w.WriteByte(quote)
		}
		w.WriteByte(name[idx])
	}
	w.WriteByte(quote)
}
