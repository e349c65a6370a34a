package ir

import (
	"fmt"
	"io"
	"strings"
)

// WriteDot renders a function's CFG as Graphviz dot text. Fall-through
// edges follow the Next chain; condition blocks draw their taken and
// fall-through children instead of a Next edge.
func WriteDot(w io.Writer, name string, entry *BasicBlock) error {
	if _, err := fmt.Fprintf(w, "digraph %q {\n", name); err != nil {
		return err
	}
	fmt.Fprintln(w, "  node [shape=record fontname=monospace];")

	id := map[*BasicBlock]int{}
	n := 0
	for b := entry; b != nil; b = b.Next {
		id[b] = n
		n++
	}

	for b := entry; b != nil; b = b.Next {
		var lines []string
		for _, inst := range b.Instrs {
			lines = append(lines, escapeDot(Format(inst)))
		}
		fmt.Fprintf(w, "  n%d [label=\"{%s|%s}\"];\n", id[b], escapeDot(b.Label), strings.Join(lines, "\\l"))
	}

	for b := entry; b != nil; b = b.Next {
		if b.Taken != nil {
			fmt.Fprintf(w, "  n%d -> n%d [label=\"T\"];\n", id[b], id[b.Taken])
		}
		if b.FallThrough != nil {
			fmt.Fprintf(w, "  n%d -> n%d [label=\"F\"];\n", id[b], id[b.FallThrough])
		}
		if b.Taken == nil && b.FallThrough == nil && b.Next != nil {
			fmt.Fprintf(w, "  n%d -> n%d;\n", id[b], id[b.Next])
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

func escapeDot(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "{", "\\{")
	s = strings.ReplaceAll(s, "}", "\\}")
	s = strings.ReplaceAll(s, "<", "\\<")
	s = strings.ReplaceAll(s, ">", "\\>")
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.TrimSpace(s)
}
