package entmap

import (
	"context"

	"github.com/entmap/entmap/schema"
)

// Repository binds entity type T to the DB, every call runs on a fresh query
type Repository[T any] struct {
	db *DB
}

// NewRepository creates the repository of T
func NewRepository[T any](db *DB) *Repository[T] {
	return &Repository[T]{db: db}
}

// Table returns the table of T, nil when T is not registered
func (r *Repository[T]) Table() *schema.Table {
	table, _ := r.db.Registry.TableOf(new(T))
	return table
}

// Query starts a new query
func (r *Repository[T]) Query() *QueryBuilder[T] {
	return Query[T](r.db)
}

func (r *Repository[T]) FindOne(ctx context.Context, extra map[string]interface{}) (*T, error) {
	return r.Query().FindOne(ctx, extra)
}

func (r *Repository[T]) FindAll(ctx context.Context, extra *[]map[string]interface{}) ([]*T, error) {
	return r.Query().FindAll(ctx, extra)
}

func (r *Repository[T]) Insert(ctx context.Context, item *T) error {
	return r.Query().Insert(ctx, item)
}

func (r *Repository[T]) Delete(ctx context.Context, item *T) error {
	return r.Query().Delete(ctx, item)
}

// Total counts every entity of T
func (r *Repository[T]) Total(ctx context.Context) (int64, error) {
	return r.Query().Total(ctx)
}
