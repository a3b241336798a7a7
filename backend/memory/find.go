package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/hydrate"
	"github.com/entmap/entmap/utils"
	"github.com/spf13/cast"
)

type result struct {
	row     hydrate.Row
	aliases map[string]interface{}
}

// FindAll filters the joined rows, groups and sorts them, then hydrates the root entities; offset and limit count root entities
func (b *Backend) FindAll(ctx context.Context, q *clause.Query, extra *[]map[string]interface{}) ([]interface{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.check(q); err != nil {
		return nil, err
	}

	rows, err := b.selectRows(q)
	if err != nil {
		return nil, err
	}

	results, err := project(q, rows)
	if err != nil {
		return nil, err
	}
	sortResults(q.Orders, results)

	var (
		g      = hydrate.NewGraph()
		order  []int
		extras []map[string]interface{}
		seen   = map[int]bool{}
	)
	for _, res := range results {
		idx, ok := g.Add(q.Target, res.row, q.Target.Name)
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
		extras = append(extras, res.aliases)
	}

	if err := g.Resolve(); err != nil {
		return nil, err
	}

	start, end := window(q, len(order))
	items := make([]interface{}, 0, end-start)
	for _, idx := range order[start:end] {
		items = append(items, g.Entity(idx))
	}

	if extra != nil {
		*extra = append((*extra)[:0], extras[start:end]...)
	}
	return items, nil
}

// Total counts the distinct root records matching the condition
func (b *Backend) Total(ctx context.Context, q *clause.Query) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.check(q); err != nil {
		return 0, err
	}

	keys, err := b.matchingKeys(q)
	return int64(len(keys)), err
}

// Delete removes item, or every root record matching the condition when item is nil
func (b *Backend) Delete(ctx context.Context, q *clause.Query, item interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ready(); err != nil {
		return err
	}

	if item != nil {
		table, err := b.reg.LookupTable(item)
		if err != nil {
			return err
		}
		key, ok := entityKey(table, item)
		if !ok {
			return fmt.Errorf("%w: %s has no id to delete by", ErrUnsupported, table.Name)
		}
		b.deleteRecord(table, key)
		return nil
	}

	if err := b.check(q); err != nil {
		return err
	}

	keys, err := b.matchingKeys(q)
	if err != nil {
		return err
	}
	for _, key := range keys {
		b.deleteRecord(q.Target, key)
	}
	return nil
}

func (b *Backend) check(q *clause.Query) error {
	if err := b.ready(); err != nil {
		return err
	}
	if q == nil || q.Target == nil {
		return fmt.Errorf("%w: query without target", ErrUnsupported)
	}
	return nil
}

func (b *Backend) matchingKeys(q *clause.Query) ([]string, error) {
	rows, err := b.selectRows(q)
	if err != nil {
		return nil, err
	}

	var (
		column = hydrate.Path(q.Target.Name, keyColumn)
		keys   []string
		seen   = map[string]bool{}
	)
	for _, row := range rows {
		key := cast.ToString(row[column])
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// selectRows returns the joined rows of the target matching the condition
func (b *Backend) selectRows(q *clause.Query) ([]hydrate.Row, error) {
	rows, err := b.rows(q.Target)
	if err != nil {
		return nil, err
	}

	selected := make([]hydrate.Row, 0, len(rows))
	seen := map[string]bool{}
	for _, row := range rows {
		if q.Condition != nil {
			ok, err := eval(q.Condition, row)
			if err != nil {
				return nil, err
			}
			if !truthy(ok) {
				continue
			}
		}

		if q.Distinct {
			key := rowKey(row)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		selected = append(selected, row)
	}
	return selected, nil
}

// project computes alias values, folding rows into groups when the query aggregates
func project(q *clause.Query, rows []hydrate.Row) ([]result, error) {
	if !q.Aggregated() {
		results := make([]result, 0, len(rows))
		for _, row := range rows {
			aliases := map[string]interface{}{}
			for _, alias := range q.Aliases {
				v, err := eval(alias.Expr, row)
				if err != nil {
					return nil, err
				}
				aliases[alias.Name] = v
			}
			results = append(results, result{row: row, aliases: aliases})
		}
		return results, nil
	}

	var (
		keys   []string
		groups = map[string][]hydrate.Row{}
	)
	for _, row := range rows {
		values := make([]interface{}, 0, len(q.Groups))
		for _, expr := range q.Groups {
			v, err := eval(expr, row)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}

		key := utils.ToStringKey(values...)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], row)
	}

	results := make([]result, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		aliases := map[string]interface{}{}
		for _, alias := range q.Aliases {
			v, err := evalGroup(alias.Expr, group)
			if err != nil {
				return nil, err
			}
			aliases[alias.Name] = v
		}
		row, err := representative(group)
		if err != nil {
			return nil, err
		}
		results = append(results, result{row: row, aliases: aliases})
	}
	return results, nil
}

// representative builds the row standing for a group: the smallest non NULL value of every column,
// the same row a SQL database returns for MIN() over each column
func representative(group []hydrate.Row) (hydrate.Row, error) {
	row := make(hydrate.Row, len(group[0]))
	for column := range group[0] {
		var best interface{}
		for _, r := range group {
			v := r[column]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			cmp, err := compare(v, best)
			if err != nil {
				return nil, err
			}
			if cmp < 0 {
				best = v
			}
		}
		row[column] = best
	}
	return row, nil
}

// sortResults orders rows by the sort keys, NULL first
func sortResults(orders []clause.OrderByColumn, results []result) {
	if len(orders) == 0 {
		return
	}

	sort.SliceStable(results, func(i, j int) bool {
		for _, order := range orders {
			c := compareNullable(results[i].row[order.Column.Path], results[j].row[order.Column.Path])
			if c != 0 {
				return (c < 0) != order.Desc
			}
		}
		return false
	})
}

func compareNullable(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if c, err := compare(a, b); err == nil {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rowKey(row hydrate.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == "" || strings.HasSuffix(k, "."+keyColumn) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		values = append(values, k, row[k])
	}
	return utils.ToStringKey(values...)
}

// window returns the bounds of the requested page of n root entities
func window(q *clause.Query, n int) (start, end int) {
	start, end = q.Offset, n
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if q.Limit != nil && *q.Limit >= 0 && start+*q.Limit < end {
		end = start + *q.Limit
	}
	return start, end
}
