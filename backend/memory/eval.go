package memory

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/hydrate"
	"github.com/jinzhu/now"
	"github.com/spf13/cast"
)

// eval evaluates expr against one row
func eval(expr clause.Expression, row hydrate.Row) (interface{}, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case clause.Literal:
		return e.Value, nil
	case clause.Column:
		return row[e.Path], nil
	case clause.Binary:
		left, err := eval(e.Left, row)
		if err != nil {
			return nil, err
		}
		right, err := eval(e.Right, row)
		if err != nil {
			return nil, err
		}
		return apply(e, left, right)
	case clause.Call:
		if e.Aggregate() {
			return nil, fmt.Errorf("%w: aggregate %s in a condition", ErrUnsupported, e.Func)
		}
		args := make([]interface{}, 0, len(e.Args))
		for _, arg := range e.Args {
			v, err := eval(arg, row)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return call(e.Func, args)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, expr)
}

// evalGroup evaluates expr over the rows of one group, columns outside aggregates read the first row
func evalGroup(expr clause.Expression, rows []hydrate.Row) (interface{}, error) {
	switch e := expr.(type) {
	case clause.Call:
		if e.Aggregate() {
			return aggregate(e, rows)
		}
		args := make([]interface{}, 0, len(e.Args))
		for _, arg := range e.Args {
			v, err := evalGroup(arg, rows)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return call(e.Func, args)
	case clause.Binary:
		left, err := evalGroup(e.Left, rows)
		if err != nil {
			return nil, err
		}
		right, err := evalGroup(e.Right, rows)
		if err != nil {
			return nil, err
		}
		return apply(e, left, right)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	return eval(expr, rows[0])
}

func apply(e clause.Binary, left, right interface{}) (interface{}, error) {
	switch e.Op {
	case clause.And:
		return truthy(left) && truthy(right), nil
	case clause.Or:
		return truthy(left) || truthy(right), nil
	}

	// comparing with the NULL literal tests for NULL, any other NULL comparison is false
	if clause.IsNull(e.Right) {
		switch e.Op {
		case clause.Eq:
			return left == nil, nil
		case clause.Neq:
			return left != nil, nil
		}
	}
	if left == nil || right == nil {
		return false, nil
	}

	c, err := compare(left, right)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case clause.Eq:
		return c == 0, nil
	case clause.Neq:
		return c != 0, nil
	case clause.Lt:
		return c < 0, nil
	case clause.Le:
		return c <= 0, nil
	case clause.Gt:
		return c > 0, nil
	case clause.Ge:
		return c >= 0, nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, e.Op)
}

func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	b, err := cast.ToBoolE(v)
	return err == nil && b
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// compare orders two non nil values: numbers numerically, times chronologically and anything else as text
func compare(a, b interface{}) (int, error) {
	if _, ok := a.(time.Time); ok {
		return compareTime(a, b)
	}
	if _, ok := b.(time.Time); ok {
		return compareTime(a, b)
	}

	if isNumber(a) || isNumber(b) {
		af, aerr := cast.ToFloat64E(a)
		bf, berr := cast.ToFloat64E(b)
		if aerr == nil && berr == nil {
			return compareFloat(af, bf), nil
		}
	}

	as, err := cast.ToStringE(a)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	bs, err := cast.ToStringE(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return strings.Compare(as, bs), nil
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTime(a, b interface{}) (int, error) {
	at, err := toTime(a)
	if err != nil {
		return 0, err
	}
	bt, err := toTime(b)
	if err != nil {
		return 0, err
	}
	return at.Compare(bt), nil
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, err := cast.ToTimeE(t); err == nil {
			return parsed, nil
		}
		// partial forms such as "2024-03" or "2024-3-1 10:00"
		parsed, err := now.ParseInLocation(time.UTC, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return parsed, nil
	}

	parsed, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return parsed, nil
}

// call runs a scalar function
func call(function string, args []interface{}) (interface{}, error) {
	switch strings.ToLower(function) {
	case "coalesce":
		for _, arg := range args {
			if arg != nil {
				return arg, nil
			}
		}
		return nil, nil
	case "lower", "upper", "length":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s takes one argument", ErrUnsupported, function)
		}
		if args[0] == nil {
			return nil, nil
		}
		s := cast.ToString(args[0])
		switch strings.ToLower(function) {
		case "lower":
			return strings.ToLower(s), nil
		case "upper":
			return strings.ToUpper(s), nil
		}
		return int64(len([]rune(s))), nil
	case "abs":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: abs takes one argument", ErrUnsupported)
		}
		if args[0] == nil {
			return nil, nil
		}
		if n, err := cast.ToInt64E(args[0]); err == nil && !isFloat(args[0]) {
			if n < 0 {
				n = -n
			}
			return n, nil
		}
		f, err := cast.ToFloat64E(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return math.Abs(f), nil
	}
	return nil, fmt.Errorf("%w: function %s", ErrUnsupported, function)
}

func isFloat(v interface{}) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

// aggregate folds the argument of call over rows, NULL values are skipped
func aggregate(c clause.Call, rows []hydrate.Row) (interface{}, error) {
	function := strings.ToLower(c.Func)
	if len(c.Args) == 0 {
		if function == "count" {
			return int64(len(rows)), nil
		}
		return nil, fmt.Errorf("%w: %s needs an argument", ErrUnsupported, c.Func)
	}

	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		v, err := eval(c.Args[0], row)
		if err != nil {
			return nil, err
		}
		if v != nil {
			values = append(values, v)
		}
	}

	switch function {
	case "count":
		return int64(len(values)), nil
	case "sum", "avg":
		if len(values) == 0 {
			return nil, nil
		}

		var (
			ints     int64
			floats   float64
			fraction bool
		)
		for _, v := range values {
			f, err := cast.ToFloat64E(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s of %v", ErrUnsupported, function, err)
			}
			floats += f
			if isFloat(v) || f != math.Trunc(f) {
				fraction = true
			} else {
				ints += int64(f)
			}
		}

		if function == "avg" {
			return floats / float64(len(values)), nil
		}
		if fraction {
			return floats, nil
		}
		return ints, nil
	case "min", "max":
		var best interface{}
		for _, v := range values {
			if best == nil {
				best = v
				continue
			}
			n, err := compare(v, best)
			if err != nil {
				return nil, err
			}
			if (function == "min" && n < 0) || (function == "max" && n > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("%w: aggregate %s", ErrUnsupported, c.Func)
}
