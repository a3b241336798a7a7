package entmap

import (
	"context"

	"github.com/entmap/entmap/clause"
)

// Backend storage operations the query builder delegates to
type Backend interface {
	// Connect opens the backend, called once per DB
	Connect(ctx context.Context) error
	// CreateSchema materializes every registered table
	CreateSchema(ctx context.Context) error
	// FindAll returns the root entities matching q, extra receives the alias values of each returned entity
	FindAll(ctx context.Context, q *clause.Query, extra *[]map[string]interface{}) ([]interface{}, error)
	Insert(ctx context.Context, q *clause.Query, item interface{}) error
	// Delete removes item, or every entity matching q when item is nil
	Delete(ctx context.Context, q *clause.Query, item interface{}) error
	Total(ctx context.Context, q *clause.Query) (int64, error)
}
