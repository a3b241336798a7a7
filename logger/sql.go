package logger

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const tmFmt = "2006-01-02 15:04:05"

func isPrintable(s []byte) bool {
	for _, r := range s {
		if !unicode.IsPrint(rune(r)) {
			return false
		}
	}
	return true
}

func quoteVar(s, escaper string) string {
	return escaper + strings.ReplaceAll(s, escaper, "\\"+escaper) + escaper
}

func explainVar(v interface{}, escaper string) string {
	if valuer, ok := v.(driver.Valuer); ok {
		v, _ = valuer.Value()
	}

	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return escaper + v.Format(tmFmt) + escaper
	case *time.Time:
		if v == nil {
			return "NULL"
		}
		return escaper + v.Format(tmFmt) + escaper
	case []byte:
		if isPrintable(v) {
			return quoteVar(string(v), escaper)
		}
		return escaper + "<binary>" + escaper
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float64, float32:
		return fmt.Sprintf("%.6f", v)
	case string:
		return quoteVar(v, escaper)
	default:
		return quoteVar(fmt.Sprint(v), escaper)
	}
}

// ExplainSQL generate SQL string with given parameters, the generated SQL is expected to be used in logger, execute it might introduce a SQL injection vulnerability
func ExplainSQL(sql string, numericPlaceholder *regexp.Regexp, escaper string, vars ...interface{}) string {
	formatted := make([]string, len(vars))
	for idx, v := range vars {
		formatted[idx] = explainVar(v, escaper)
	}

	if numericPlaceholder == nil {
		var (
			buf    strings.Builder
			varIdx int
		)
		for _, c := range []byte(sql) {
			if c == '?' && varIdx < len(formatted) {
				buf.WriteString(formatted[varIdx])
				varIdx++
				continue
			}
			buf.WriteByte(c)
		}
		return buf.String()
	}

	sql = numericPlaceholder.ReplaceAllString(sql, "$$$$${1}$$$$")
	for idx := range formatted {
		sql = strings.ReplaceAll(sql, "$$"+strconv.Itoa(idx+1)+"$$", formatted[idx])
	}
	return sql
}
