package schema

import (
	"bufio"
	"fmt"
	"io"
)

// Dump writes a human readable listing of every table, not meant to be parsed
func (r *Registry) Dump(w io.Writer) error {
	buf := bufio.NewWriter(w)
	buf.WriteString("Schema dump\n\n")

	for _, table := range r.order {
		fmt.Fprintf(buf, "Table: %s", table.Name)
		if table.Extends != nil {
			fmt.Fprintf(buf, " extends %s", table.Extends.Name)
		}
		buf.WriteByte('\n')

		coalition := map[*Field]bool{}
		for _, f := range table.IDFields {
			coalition[f] = true
		}

		for _, field := range table.Fields {
			marker := ""
			if field == table.IDField || coalition[field] {
				marker = "*"
			}

			if ref := field.AssociatedField; ref != nil {
				fmt.Fprintf(buf, "\tField: %s%s -> ", marker, field.InternalName)
				if field.Leading {
					buf.WriteByte('*')
				}
				fmt.Fprintf(buf, "%s.%s", ref.Table.Name, ref.InternalName)
				if field.IsArray {
					buf.WriteString("[]")
				}
				if field.JoinTable != "" {
					fmt.Fprintf(buf, " (join %s)", field.JoinTable)
				}
				buf.WriteByte('\n')
			} else {
				fmt.Fprintf(buf, "\tField: %s%s\n", marker, field.InternalName)
			}
		}

		buf.WriteByte('\n')
	}

	return buf.Flush()
}
