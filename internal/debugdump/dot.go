// Package debugdump renders the tagged-entry graph as a Graphviz DOT string
// for external visualization, matching the teacher's framing of debug
// output as a hook for a caller to pipe into `dot`, not something the
// daemon renders itself.
package debugdump

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tagfsd/tagfsd/internal/graph"
)

// RenderDOT renders nodes as a directed graph: solid edges for
// directory-child relationships, dashed edges for tag-to-entry relationships.
func RenderDOT(nodes []graph.DebugNode) string {
	byID := make(map[graph.NodeID]graph.DebugNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var b strings.Builder
	b.WriteString("digraph tagfsd {\n")

	ids := make([]graph.NodeID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := byID[id]
		shape := "box"
		if n.Kind == graph.KindTag {
			shape = "ellipse"
		}
		fmt.Fprintf(&b, "  n%d [label=%q shape=%s];\n", n.ID, n.Name, shape)
	}
	for _, id := range ids {
		n := byID[id]
		switch n.Kind {
		case graph.KindDirectory, graph.KindFile:
			for _, tagID := range n.Tags {
				fmt.Fprintf(&b, "  n%d -> n%d [style=dashed];\n", tagID, n.ID)
			}
		}
	}
	// Directory-child edges: every non-tag node other than root points back
	// to its parent; render parent -> child instead.
	for _, id := range ids {
		n := byID[id]
		if n.Kind == graph.KindTag {
			continue
		}
		if parent, ok := byID[n.Parent]; ok {
			fmt.Fprintf(&b, "  n%d -> n%d;\n", parent.ID, n.ID)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
