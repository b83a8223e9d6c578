package gradgraph

// Graphviz DOT export for wired computation graphs.
//
// Rendering the DAG makes wiring mistakes visible: a leaf feeding the wrong
// operator, a regularizer attached to the data instead of the weights, a
// node left dangling. The output is stable (one line per node in
// topological order, then one line per edge), so it also diffs cleanly.
//
//	dot -Tsvg graph.dot -o graph.svg

import (
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes the DAG of all ancestors of output in Graphviz DOT format.
// Each node is labeled with its name and kind; nodes evaluated at least once
// also show their output shape. Edges point from predecessor to consumer,
// the direction data flows in the forward pass.
func WriteDOT(w io.Writer, output Node) error {
	g := NewGraph(output)

	if _, err := fmt.Fprintln(w, "digraph computation {"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "  rankdir=BT;"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "  node [shape=box, fontname=\"monospace\"];"); err != nil {
		return err
	}

	// Stable integer ids in topological order.
	ids := make(map[Node]int, len(g.Nodes()))
	for i, n := range g.Nodes() {
		ids[n] = i

		label := fmt.Sprintf("%s\\n%s", dotEscape(n.Name()), nodeKind(n))
		if out := n.Out(); out != nil {
			label += fmt.Sprintf("\\nshape=%v", out.Shape())
		}

		attrs := ""
		if _, isLeaf := n.(*Leaf); isLeaf {
			attrs = ", style=filled, fillcolor=lightgray"
		}
		if n == output {
			attrs = ", style=filled, fillcolor=lightblue"
		}

		if _, err := fmt.Fprintf(w, "  n%d [label=\"%s\"%s];\n", i, label, attrs); err != nil {
			return err
		}
	}

	for _, n := range g.Nodes() {
		for _, pred := range n.Predecessors() {
			if _, err := fmt.Fprintf(w, "  n%d -> n%d;\n", ids[pred], ids[n]); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

// dotEscape makes a node name safe inside a double-quoted DOT label.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// nodeKind returns a short human-readable kind for a node.
func nodeKind(n Node) string {
	switch n.(type) {
	case *Leaf:
		return "Leaf"
	case *VectorScalarAffine:
		return "VectorScalarAffine"
	case *SquaredL2Distance:
		return "SquaredL2Distance"
	case *L2NormPenalty:
		return "L2NormPenalty"
	case *ElementwiseSum:
		return "ElementwiseSum"
	case *Affine:
		return "Affine"
	case *Tanh:
		return "Tanh"
	default:
		return fmt.Sprintf("%T", n)
	}
}
