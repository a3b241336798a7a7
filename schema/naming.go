package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Namer namer interface
type Namer interface {
	TableName(entity string) string
	ColumnName(name string) string
	JoinTableName(table, column string) string
}

// NamingStrategy tables, columns naming strategy
type NamingStrategy struct {
	TablePrefix  string
	PluralTables bool
}

// TableName convert an entity type name to table name
func (ns NamingStrategy) TableName(str string) string {
	if ns.PluralTables {
		return ns.TablePrefix + inflection.Plural(toDBName(str))
	}
	return ns.TablePrefix + toDBName(str)
}

// ColumnName convert a property name to column name
func (ns NamingStrategy) ColumnName(name string) string {
	return toDBName(name)
}

// JoinTableName generate the join table name of a many-to-many association owned by table.column
func (ns NamingStrategy) JoinTableName(table, column string) string {
	return fmt.Sprintf("%s_%s", table, column)
}

// ColumnPath convert every segment of a dotted property path
func ColumnPath(namer Namer, path string) string {
	segments := strings.Split(path, ".")
	for idx, segment := range segments {
		segments[idx] = namer.ColumnName(segment)
	}
	return strings.Join(segments, ".")
}

var (
	smap sync.Map
	// https://github.com/golang/lint/blob/master/lint.go#L770
	commonInitialisms         = []string{"API", "ASCII", "CPU", "CSS", "DNS", "EOF", "GUID", "HTML", "HTTP", "HTTPS", "ID", "IP", "JSON", "LHS", "QPS", "RAM", "RHS", "RPC", "SLA", "SMTP", "SSH", "TLS", "TTL", "UID", "UI", "UUID", "URI", "URL", "UTF8", "VM", "XML", "XSRF", "XSS"}
	commonInitialismsReplacer *strings.Replacer
)

func init() {
	titleCaser := cases.Title(language.Und)
	commonInitialismsForReplacer := make([]string, 0, len(commonInitialisms)*2)
	for _, initialism := range commonInitialisms {
		commonInitialismsForReplacer = append(commonInitialismsForReplacer, initialism, titleCaser.String(initialism))
	}
	commonInitialismsReplacer = strings.NewReplacer(commonInitialismsForReplacer...)
}

func toDBName(name string) string {
	if name == "" {
		return ""
	} else if v, ok := smap.Load(name); ok {
		return v.(string)
	}

	var (
		value                          = commonInitialismsReplacer.Replace(name)
		buf                            strings.Builder
		lastCase, nextCase, nextNumber bool // upper case == true
		curCase                        = value[0] <= 'Z' && value[0] >= 'A'
	)

	for i, v := range value[:len(value)-1] {
		nextCase = value[i+1] <= 'Z' && value[i+1] >= 'A'
		nextNumber = value[i+1] >= '0' && value[i+1] <= '9'

		if curCase {
			if lastCase && (nextCase || nextNumber) {
				buf.WriteRune(v + 32)
			} else {
				if i > 0 && value[i-1] != '_' && value[i+1] != '_' {
					buf.WriteByte('_')
				}
				buf.WriteRune(v + 32)
			}
		} else {
			buf.WriteRune(v)
		}

		lastCase = curCase
		curCase = nextCase
	}

	if curCase {
		if !lastCase && len(value) > 1 {
			buf.WriteByte('_')
		}
		buf.WriteByte(value[len(value)-1] + 32)
	} else {
		buf.WriteByte(value[len(value)-1])
	}

	result := buf.String()
	smap.Store(name, result)
	return result
}
