package schema

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// AccessorKind shape of the property behind an accessor
type AccessorKind int

const (
	ScalarKind AccessorKind = iota
	OneKind
	ManyKind
)

// Accessor reads and writes one property of an entity, built from typed closures so no struct introspection is needed
type Accessor struct {
	Kind     AccessorKind
	DataType DataType

	get    func(entity interface{}) interface{}
	set    func(entity, value interface{}) error
	append func(entity, value interface{}) error
	items  func(entity interface{}) []interface{}
}

// Get reads the property, nil when the accessor is unbound
func (a Accessor) Get(entity interface{}) interface{} {
	if a.get == nil || entity == nil {
		return nil
	}
	return a.get(entity)
}

// Set writes the property, a nil value resets it to the zero value
func (a Accessor) Set(entity, value interface{}) error {
	if a.set == nil || entity == nil {
		return nil
	}
	return a.set(entity, value)
}

// Append adds a related entity to a Many property
func (a Accessor) Append(entity, value interface{}) error {
	if a.append == nil {
		return fmt.Errorf("%w: property is not a collection", ErrInvalidValue)
	}
	return a.append(entity, value)
}

// Items returns the related entities held by a One or Many property
func (a Accessor) Items(entity interface{}) []interface{} {
	if a.items == nil || entity == nil {
		return nil
	}
	return a.items(entity)
}

// through composes the accessor with an upcast, so a base property is reached from an extending entity
func (a Accessor) through(upcast func(interface{}) interface{}) Accessor {
	if upcast == nil {
		return a
	}

	wrapped := a
	if a.get != nil {
		wrapped.get = func(e interface{}) interface{} { return a.get(upcast(e)) }
	}
	if a.set != nil {
		wrapped.set = func(e, v interface{}) error { return a.set(upcast(e), v) }
	}
	if a.append != nil {
		wrapped.append = func(e, v interface{}) error { return a.append(upcast(e), v) }
	}
	if a.items != nil {
		wrapped.items = func(e interface{}) []interface{} { return a.items(upcast(e)) }
	}
	return wrapped
}

// Prop binds a scalar property
//
//	schema.Prop(func(u *User) *string { return &u.UserName })
func Prop[T, V any](ref func(*T) *V) Accessor {
	var zero V
	return Accessor{
		Kind:     ScalarKind,
		DataType: dataTypeOf(zero),
		get: func(e interface{}) interface{} {
			return *ref(e.(*T))
		},
		set: func(e, v interface{}) error {
			p := ref(e.(*T))
			if v == nil {
				var empty V
				*p = empty
				return nil
			}

			cv, err := convert[V](v)
			if err != nil {
				return err
			}
			*p = cv
			return nil
		},
	}
}

// One binds a single-valued association property
//
//	schema.One(func(p *Post) **User { return &p.Author })
func One[T, R any](ref func(*T) **R) Accessor {
	return Accessor{
		Kind: OneKind,
		get: func(e interface{}) interface{} {
			if r := *ref(e.(*T)); r != nil {
				return r
			}
			return nil
		},
		set: func(e, v interface{}) error {
			p := ref(e.(*T))
			if v == nil {
				*p = nil
				return nil
			}

			r, ok := v.(*R)
			if !ok {
				return fmt.Errorf("%w: cannot assign %T to %T", ErrInvalidValue, v, *p)
			}
			*p = r
			return nil
		},
		items: func(e interface{}) []interface{} {
			if r := *ref(e.(*T)); r != nil {
				return []interface{}{r}
			}
			return nil
		},
	}
}

// Many binds an array association property
//
//	schema.Many(func(u *User) *[]*Group { return &u.Groups })
func Many[T, R any](ref func(*T) *[]*R) Accessor {
	return Accessor{
		Kind: ManyKind,
		get: func(e interface{}) interface{} {
			return *ref(e.(*T))
		},
		set: func(e, v interface{}) error {
			p := ref(e.(*T))
			switch rs := v.(type) {
			case nil:
				*p = nil
			case []*R:
				*p = rs
			case []interface{}:
				values := make([]*R, 0, len(rs))
				for _, item := range rs {
					r, ok := item.(*R)
					if !ok {
						return fmt.Errorf("%w: cannot append %T to %T", ErrInvalidValue, item, *p)
					}
					values = append(values, r)
				}
				*p = values
			default:
				return fmt.Errorf("%w: cannot assign %T to %T", ErrInvalidValue, v, *p)
			}
			return nil
		},
		append: func(e, v interface{}) error {
			p := ref(e.(*T))
			r, ok := v.(*R)
			if !ok {
				return fmt.Errorf("%w: cannot append %T to %T", ErrInvalidValue, v, *p)
			}
			*p = append(*p, r)
			return nil
		},
		items: func(e interface{}) []interface{} {
			rs := *ref(e.(*T))
			values := make([]interface{}, 0, len(rs))
			for _, r := range rs {
				values = append(values, r)
			}
			return values
		},
	}
}

// convert coerces driver values into the property type
func convert[V any](v interface{}) (V, error) {
	if cv, ok := v.(V); ok {
		return cv, nil
	}

	var (
		zero V
		out  interface{}
		err  error
	)

	switch any(zero).(type) {
	case string:
		out, err = cast.ToStringE(v)
	case bool:
		out, err = cast.ToBoolE(v)
	case int:
		out, err = cast.ToIntE(v)
	case int8:
		out, err = cast.ToInt8E(v)
	case int16:
		out, err = cast.ToInt16E(v)
	case int32:
		out, err = cast.ToInt32E(v)
	case int64:
		out, err = cast.ToInt64E(v)
	case uint:
		out, err = cast.ToUintE(v)
	case uint8:
		out, err = cast.ToUint8E(v)
	case uint16:
		out, err = cast.ToUint16E(v)
	case uint32:
		out, err = cast.ToUint32E(v)
	case uint64:
		out, err = cast.ToUint64E(v)
	case float32:
		out, err = cast.ToFloat32E(v)
	case float64:
		out, err = cast.ToFloat64E(v)
	case time.Time:
		out, err = cast.ToTimeE(v)
	case []byte:
		switch b := v.(type) {
		case string:
			out = []byte(b)
		default:
			err = fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
		}
	default:
		err = fmt.Errorf("unable to cast %#v of type %T to %T", v, v, zero)
	}

	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return out.(V), nil
}
