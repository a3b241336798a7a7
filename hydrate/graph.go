package hydrate

import (
	"fmt"

	"github.com/entmap/entmap/schema"
	"github.com/entmap/entmap/utils"
)

// Graph arena of hydrated entities, nodes are merged by (table, identity) and associations
// are kept as node indexes until Resolve allocates the entities
type Graph struct {
	nodes    []*node
	index    map[string]int
	roots    []int
	isRoot   map[int]bool
	resolved bool
}

type assignment struct {
	field *schema.Field
	value interface{}
}

type link struct {
	field  *schema.Field
	target int
}

type node struct {
	table  *schema.Table
	key    string
	values []assignment
	links  []link
	linked map[link]bool
	entity interface{}
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{index: map[string]int{}, isRoot: map[int]bool{}}
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Add hydrates one row as a root entity of table, it returns the node index or false when the row carries no entity
func (g *Graph) Add(table *schema.Table, row Row, prefix string) (int, bool) {
	idx := g.visit(table, row, prefix)
	if idx < 0 {
		return -1, false
	}

	if !g.isRoot[idx] {
		g.isRoot[idx] = true
		g.roots = append(g.roots, idx)
	}
	return idx, true
}

func (g *Graph) visit(table *schema.Table, row Row, prefix string) int {
	if !row.HasPrefix(prefix) {
		return -1
	}
	if id := table.IDField; id != nil && row[Path(prefix, id.InternalName)] == nil {
		return -1
	}

	key := identity(table, row, prefix)
	if idx, ok := g.index[key]; ok && key != "" {
		g.fill(idx, table, row, prefix)
		return idx
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, &node{table: table, key: key, linked: map[link]bool{}})
	if key != "" {
		g.index[key] = idx
	}

	if g.fill(idx, table, row, prefix) {
		// nothing but nulls, nodes appended while filling were absent too
		g.nodes = g.nodes[:idx]
		if key != "" {
			delete(g.index, key)
		}
		return -1
	}
	return idx
}

// fill copies the row into node idx, reporting whether every value was null
func (g *Graph) fill(idx int, table *schema.Table, row Row, prefix string) (allNull bool) {
	allNull = true
	if base := table.Extends; base != nil {
		if !g.fill(idx, base, row, Path(prefix, schema.BaseSegment)) {
			allNull = false
		}
	}

	for _, field := range table.Fields {
		path := Path(prefix, field.InternalName)

		if ref := field.AssociatedField; ref != nil {
			if target := g.visit(ref.Table, row, path); target >= 0 {
				g.link(idx, field, target)
				g.link(target, ref, idx)
				allNull = false
			}
			continue
		}

		value, ok := row[path]
		if !ok {
			continue
		}
		g.nodes[idx].set(field, value)
		if value != nil {
			allNull = false
		}
	}
	return allNull
}

func (n *node) set(field *schema.Field, value interface{}) {
	for idx := range n.values {
		if n.values[idx].field == field {
			if value != nil {
				n.values[idx].value = value
			}
			return
		}
	}
	n.values = append(n.values, assignment{field: field, value: value})
}

func (g *Graph) link(from int, field *schema.Field, to int) {
	n := g.nodes[from]
	l := link{field: field, target: to}
	if n.linked[l] {
		return
	}
	n.linked[l] = true
	n.links = append(n.links, l)
}

func identity(table *schema.Table, row Row, prefix string) string {
	primary := table.PrimaryFields()
	if len(primary) == 0 {
		return ""
	}

	values := make([]interface{}, 0, len(primary))
	for _, field := range primary {
		value := row[Path(prefix, field.InternalName)]
		if value == nil {
			return ""
		}
		values = append(values, value)
	}
	return table.Name + ":" + utils.ToStringKey(values...)
}

// Resolve allocates every entity and wires association properties in both directions
func (g *Graph) Resolve() error {
	if g.resolved {
		return nil
	}

	for _, n := range g.nodes {
		if n.entity = n.table.New(); n.entity == nil {
			return fmt.Errorf("%w: table %s has no constructor", schema.ErrUnregisteredEntity, n.table.Name)
		}
	}

	for _, n := range g.nodes {
		for _, a := range n.values {
			if err := a.field.Set(n.table.View(n.entity, a.field.Table), a.value); err != nil {
				return fmt.Errorf("%s: %w", a.field, err)
			}
		}

		for _, l := range n.links {
			// an extending entity is linked through its base portion
			to := g.nodes[l.target]
			target := to.table.View(to.entity, l.field.AssociatedField.Table)
			view := n.table.View(n.entity, l.field.Table)

			var err error
			if l.field.IsArray {
				err = l.field.Append(view, target)
			} else {
				err = l.field.Set(view, target)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", l.field, err)
			}
		}
	}

	g.resolved = true
	return nil
}

// Entity returns the entity of node idx, nil before Resolve
func (g *Graph) Entity(idx int) interface{} {
	if idx < 0 || idx >= len(g.nodes) {
		return nil
	}
	return g.nodes[idx].entity
}

// Roots returns the root entities in order of first appearance
func (g *Graph) Roots() []interface{} {
	entities := make([]interface{}, 0, len(g.roots))
	for _, idx := range g.roots {
		entities = append(entities, g.nodes[idx].entity)
	}
	return entities
}

// Hydrate builds the entity of table carried by one row, nil when the row carries none
func Hydrate(table *schema.Table, row Row, prefix string) (interface{}, error) {
	g := NewGraph()
	idx, ok := g.Add(table, row, prefix)
	if !ok {
		return nil, nil
	}
	if err := g.Resolve(); err != nil {
		return nil, err
	}
	return g.Entity(idx), nil
}

// Rows hydrates joined rows, rows sharing an identity are merged into one entity
func Rows(table *schema.Table, rows []Row, prefix string) ([]interface{}, error) {
	g := NewGraph()
	for _, row := range rows {
		g.Add(table, row, prefix)
	}
	if err := g.Resolve(); err != nil {
		return nil, err
	}
	return g.Roots(), nil
}
