package gradgraph

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// This file implements the graph driver: the orchestrator that turns a wired
// set of nodes into gradients.
//
// INTENTION:
// Given a designated scalar output node, one evaluation cycle is:
//
//   1. Forward: run Forward on every ancestor of the output, exactly once,
//      in topological (predecessor-first) order. Each Forward also resets
//      that node's gradient accumulator.
//   2. Seed: set the output's gradient to 1, the derivative of the output
//      with respect to itself. This is why the output must be rank 0: there
//      is no single seed for a non-scalar.
//   3. Backward: run Backward on every node in exact reverse of the forward
//      order. Reverse order guarantees each node has received every
//      consumer's contribution before it propagates to its predecessors.
//
// After a cycle, every node's Grad() is the exact partial derivative of the
// output with respect to that node's Out(), summed over all graph paths.
//
// The topological order is a depth-first post-order over predecessor edges,
// computed once at construction; the wiring is immutable, so the order is
// too. A cycle in the wiring is a caller bug and fails fast during the sort.
//
// Evaluation is single-threaded by design: out/dOut are shared mutable
// per-node state, so two cycles over the same nodes must never overlap.
// Callers wanting parallel evaluation must give each cycle a private copy
// of the node set.
//
// ===========================================================================

import "fmt"

// Graph drives forward/backward evaluation cycles over all ancestors of a
// designated output node. Construct once per wiring with NewGraph; reuse
// across cycles by reassigning Leaf values between Run calls.
//
// Graph is not safe for concurrent use, and two Graphs sharing nodes must
// not run concurrently either.
type Graph struct {
	output Node
	order  []Node // topological: predecessors before successors

	// pending is true when a forward pass has run without a matching
	// backward pass. Backward without a pending forward would seed the
	// output gradient on top of stale accumulators.
	pending bool
}

// NewGraph collects every node reachable from output through predecessor
// links and freezes a topological evaluation order. Panics if the wiring
// contains a cycle.
func NewGraph(output Node) *Graph {
	if output == nil {
		panic("graph: nil output node")
	}

	g := &Graph{output: output}

	// Depth-first post-order: a node is appended only after all of its
	// predecessors, so the resulting slice is a valid forward order.
	const (
		inProgress = 1
		done       = 2
	)
	state := make(map[Node]int)

	var visit func(n Node)
	visit = func(n Node) {
		switch state[n] {
		case done:
			return
		case inProgress:
			panic(fmt.Sprintf("graph: cycle detected through node %q", n.Name()))
		}
		state[n] = inProgress
		for _, pred := range n.Predecessors() {
			visit(pred)
		}
		state[n] = done
		g.order = append(g.order, n)
	}
	visit(output)

	return g
}

// Output returns the designated output node.
func (g *Graph) Output() Node { return g.output }

// Nodes returns the frozen topological order, predecessors first.
// The caller must not modify the returned slice.
func (g *Graph) Nodes() []Node { return g.order }

// Forward runs one forward pass: every node exactly once, predecessors
// first. Returns the output node's value. Each node's gradient accumulator
// is reset as a side effect, so a Forward always begins a fresh cycle.
func (g *Graph) Forward() *Tensor {
	for _, n := range g.order {
		n.Forward()
	}
	g.pending = true
	return g.output.Out()
}

// Backward runs one backward pass: seeds the output's gradient with the
// scalar 1, then visits every node in exact reverse of the forward order.
//
// Panics if Forward has not run this cycle or if the output is not rank 0.
func (g *Graph) Backward() {
	if !g.pending {
		panic(fmt.Sprintf("graph: Backward without a matching Forward (output node %q)", g.output.Name()))
	}
	out := g.output.Out()
	if !out.IsScalar() {
		panic(fmt.Sprintf("graph: output node %q must be scalar to seed gradients, got shape %v",
			g.output.Name(), out.shape))
	}

	// d(out)/d(out) = 1
	g.output.AccumulateGrad(NewScalar(1))

	for i := len(g.order) - 1; i >= 0; i-- {
		g.order[i].Backward()
	}
	g.pending = false
}

// Run performs one full evaluation cycle: Forward then Backward.
// Returns the output value; gradients are read from each node's Grad().
func (g *Graph) Run() *Tensor {
	out := g.Forward()
	g.Backward()
	return out
}
