package schema

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/entmap/entmap/logger"
)

var (
	// ErrUnknownReverseField association references a field the target table does not have
	ErrUnknownReverseField = errors.New("unknown reverse field")
	// ErrUnknownField field is not declared on the table
	ErrUnknownField = errors.New("unknown field")
	// ErrNoIDField table has no single id field
	ErrNoIDField = errors.New("no single id field")
	// ErrRegistrySealed registration after Seal
	ErrRegistrySealed = errors.New("registry sealed")
	// ErrInvalidValue value can not be assigned to the property
	ErrInvalidValue = errors.New("invalid value")
	// ErrUnregisteredEntity entity type has no table in the registry
	ErrUnregisteredEntity = errors.New("unregistered entity")
)

// Registry caches one Table per entity type
type Registry struct {
	namer   Namer
	tables  map[reflect.Type]*Table
	order   []*Table
	pending []*pendingAssociation
	errs    []error
	sealed  bool
}

type pendingAssociation struct {
	field      *Field
	target     *Table
	reversedBy string
}

// NewRegistry creates an empty registry, a nil namer means NamingStrategy{}
func NewRegistry(namer Namer) *Registry {
	if namer == nil {
		namer = NamingStrategy{}
	}

	return &Registry{
		namer:  namer,
		tables: map[reflect.Type]*Table{},
	}
}

// Namer returns the naming strategy of the registry
func (r *Registry) Namer() Namer {
	return r.namer
}

// HasTable reports whether the entity type has been registered
func (r *Registry) HasTable(entityType reflect.Type) bool {
	_, ok := r.tables[indirectType(entityType)]
	return ok
}

// GetOrCreateTable returns the table of the entity type, creating an empty one on first reference
func (r *Registry) GetOrCreateTable(entityType reflect.Type) *Table {
	entityType = indirectType(entityType)
	if table, ok := r.tables[entityType]; ok {
		return table
	}

	table := r.newTable(entityType)
	r.tables[entityType] = table
	r.order = append(r.order, table)
	return table
}

func (r *Registry) newTable(entityType reflect.Type) *Table {
	return &Table{
		Name:         r.namer.TableName(entityType.Name()),
		EntityType:   entityType,
		FieldsByName: map[string]*Field{},
		registry:     r,
	}
}

// TableOf returns the table of an entity instance
func (r *Registry) TableOf(entity interface{}) (*Table, bool) {
	if entity == nil {
		return nil, false
	}
	table, ok := r.tables[indirectType(reflect.TypeOf(entity))]
	return table, ok
}

// LookupTable returns the table of an entity instance, or ErrUnregisteredEntity
func (r *Registry) LookupTable(entity interface{}) (*Table, error) {
	if table, ok := r.TableOf(entity); ok {
		return table, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnregisteredEntity, entity)
}

// Tables returns tables in registration order
func (r *Registry) Tables() []*Table {
	tables := make([]*Table, len(r.order))
	copy(tables, r.order)
	return tables
}

// AddError records a configuration error
func (r *Registry) AddError(err error) {
	logger.Default.Error(context.Background(), err.Error())
	r.errs = append(r.errs, err)
}

// Err returns every configuration error, unresolved associations included
func (r *Registry) Err() error {
	errs := append([]error{}, r.errs...)
	for _, p := range r.pending {
		errs = append(errs, p.err())
	}
	return errors.Join(errs...)
}

// Sealed reports whether registration has ended
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Seal ends registration, resolving deferred associations; the registry is read-only afterwards
func (r *Registry) Seal() error {
	if r.sealed {
		return r.Err()
	}

	pending := r.pending
	r.pending = nil
	for _, p := range pending {
		if !r.link(p.field, p.target, p.reversedBy) {
			r.AddError(p.err())
		}
	}

	r.sealed = true
	return r.Err()
}

// link associates field with target.reversedBy, it returns false if the reverse field is missing
func (r *Registry) link(field *Field, target *Table, reversedBy string) bool {
	ref := target.GetField(reversedBy)
	if ref == nil {
		return false
	}

	if field.AssociatedField != ref {
		field.Associate(ref)
	}
	return true
}

func (p *pendingAssociation) err() error {
	return fmt.Errorf("%w: unknown field %s in %s, referenced by %s.%s",
		ErrUnknownReverseField, p.reversedBy, p.target.Name, p.field.Table.Name, p.field.Name)
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
