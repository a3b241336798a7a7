package entmap

import (
	"context"
	"fmt"
)

// FindOne returns the first matching entity, nil when nothing matches; extra receives its alias values
func (q *QueryBuilder[T]) FindOne(ctx context.Context, extra map[string]interface{}) (*T, error) {
	var rows *[]map[string]interface{}
	if extra != nil {
		rows = &[]map[string]interface{}{}
	}

	// no implicit limit, joined to-many rows of the first entity would be cut
	results, err := q.FindAll(ctx, rows)
	if err != nil || len(results) == 0 {
		return nil, err
	}

	if rows != nil && len(*rows) > 0 {
		for key, value := range (*rows)[0] {
			extra[key] = value
		}
	}
	return results[0], nil
}

// FindAll returns every matching entity, extra receives the alias values of each of them
func (q *QueryBuilder[T]) FindAll(ctx context.Context, extra *[]map[string]interface{}) ([]*T, error) {
	if err := q.ready(ctx); err != nil {
		return nil, err
	}

	var results []*T
	err := q.db.trace(ctx, "find all "+q.table.Name, func() (int64, error) {
		items, err := q.db.Backend.FindAll(ctx, q.Statement, extra)
		if err != nil {
			return -1, err
		}

		results = make([]*T, 0, len(items))
		for _, item := range items {
			entity, ok := item.(*T)
			if !ok {
				return -1, fmt.Errorf("%w: %T in %s results", ErrInvalidData, item, q.table.Name)
			}
			results = append(results, entity)
		}
		return int64(len(results)), nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Insert stores item and its associations links
func (q *QueryBuilder[T]) Insert(ctx context.Context, item *T) error {
	if err := q.ready(ctx); err != nil {
		return err
	}

	return q.db.trace(ctx, "insert "+q.table.Name, func() (int64, error) {
		if err := q.db.Backend.Insert(ctx, q.Statement, item); err != nil {
			return -1, err
		}
		return 1, nil
	})
}

// Delete removes item, or every entity matching the conditions when item is nil
func (q *QueryBuilder[T]) Delete(ctx context.Context, item *T) error {
	if err := q.ready(ctx); err != nil {
		return err
	}

	var target interface{}
	if item != nil {
		target = item
	}

	return q.db.trace(ctx, "delete "+q.table.Name, func() (int64, error) {
		return -1, q.db.Backend.Delete(ctx, q.Statement, target)
	})
}

// Total counts the matching entities
func (q *QueryBuilder[T]) Total(ctx context.Context) (int64, error) {
	if err := q.ready(ctx); err != nil {
		return 0, err
	}

	var total int64
	err := q.db.trace(ctx, "total "+q.table.Name, func() (int64, error) {
		var err error
		total, err = q.db.Backend.Total(ctx, q.Statement)
		return -1, err
	})
	return total, err
}

func (q *QueryBuilder[T]) ready(ctx context.Context) error {
	if q.Error != nil {
		return q.Error
	}
	return q.db.Connect(ctx)
}
