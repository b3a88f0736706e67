package formats

import "github.com/arthur-debert/nanocache/types"

// Node is an entity with its visible cached children
type Node struct {
	types.Entity `yaml:",inline"`
	Expanded     bool    `json:"expanded,omitempty" yaml:"expanded,omitempty"`
	Children     []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Nodes returns what a reader of v would see. Trees descend only into open
// nodes; flat collections list every cached entity.
func Nodes(v View) []*Node {
	if v.Kind == types.Flat {
		entities := v.Source.Snapshot()
		out := make([]*Node, 0, len(entities))
		for _, e := range entities {
			out = append(out, &Node{Entity: e})
		}
		return out
	}

	var (
		roots []*Node
		stack []*Node
	)
	v.Source.Walk(func(e types.Entity, depth int) bool {
		n := &Node{Entity: e, Expanded: v.Source.IsExpanded(e.ID)}
		stack = append(stack[:depth], n)
		if depth == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[depth-1]
			parent.Children = append(parent.Children, n)
		}
		return n.Expanded
	})
	return roots
}

// marker is "-" for an open node, "+" for a closed one that may have
// children and blank for a known leaf
func marker(src Source, id string) string {
	switch {
	case src.IsExpanded(id):
		return "-"
	case src.ChildrenLoaded(id) && len(src.Children(id)) == 0:
		return " "
	default:
		return "+"
	}
}
