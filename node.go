package gradgraph

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// This file defines the contract every element of a computation graph
// implements, plus the Leaf node that feeds external data into a graph.
//
// INTENTION:
// A computation graph is a DAG of tensor-valued nodes wired together by
// explicit predecessor references. Evaluation is two strictly ordered passes:
//
//   Forward:  visit nodes predecessor-first, each computes its output from
//             its predecessors' already-computed outputs.
//   Backward: visit nodes successor-first, each distributes the gradient
//             accumulated on its own output to its predecessors via the
//             chain rule.
//
// Each node owns two tensors:
//   - out:  the last forward result.
//   - dOut: the accumulated gradient of the graph's scalar output with
//           respect to out. Reset to zeros (same shape as out) at the start
//           of every forward call, then add-accumulated during backward:
//           a node with several consumers receives one summand from each.
//
// Predecessor references are observation links: a node reads a predecessor's
// Out and adds into its Grad, nothing else. All state is single-threaded;
// the reverse-topological contract sequences every access.
//
// ===========================================================================

import "fmt"

// Node is one unit of a computation graph: it produces one tensor output
// from the outputs of zero or more predecessor nodes.
//
// The calling contract is positional, not defensive:
//   - Forward must not run before every predecessor's Forward has produced
//     a valid Out this cycle.
//   - Backward must not run until every consumer's Backward has finished
//     contributing to this node's Grad.
// The Graph driver enforces both orderings; violating them by calling nodes
// directly is a caller bug.
type Node interface {
	// Name returns the node's debugging name. Names are for error messages
	// and graph dumps only; they carry no semantics.
	Name() string

	// Forward computes this node's output from its predecessors' outputs,
	// resets the gradient accumulator to zeros of the output's shape, and
	// returns the output. Pure in its predecessors' outputs and any fixed
	// construction-time scalars: calling it again within a cycle yields an
	// identical result.
	Forward() *Tensor

	// Backward propagates the gradient accumulated on this node's output to
	// each predecessor: local partial derivative, chain-ruled with Grad,
	// added (never assigned) into the predecessor's accumulator.
	Backward()

	// Predecessors returns the fixed, ordered input nodes. No side effects.
	Predecessors() []Node

	// Out returns the output computed by the most recent Forward.
	// Nil before the first Forward.
	Out() *Tensor

	// Grad returns the gradient accumulator for this node's output.
	// Nil before the first Forward; afterwards always shaped like Out.
	Grad() *Tensor

	// AccumulateGrad adds g into the gradient accumulator.
	// Panics if g's shape differs from Out's.
	AccumulateGrad(g *Tensor)
}

// nodeState holds the name/out/dOut triple shared by every node kind.
// Embed it and set out in Forward via setOut, which also performs the
// per-cycle gradient reset.
type nodeState struct {
	name string
	out  *Tensor
	dOut *Tensor
}

func (s *nodeState) Name() string { return s.name }

func (s *nodeState) Out() *Tensor { return s.out }

func (s *nodeState) Grad() *Tensor { return s.dOut }

// AccumulateGrad adds g into the node's gradient accumulator.
// Panics if Forward has not run this cycle or if shapes differ.
func (s *nodeState) AccumulateGrad(g *Tensor) {
	if s.dOut == nil {
		panic(fmt.Sprintf("graph: node %q: AccumulateGrad before Forward", s.name))
	}
	if !shapeEqual(s.dOut.shape, g.shape) {
		panic(fmt.Sprintf("graph: node %q: gradient shape %v does not match output shape %v",
			s.name, g.shape, s.dOut.shape))
	}
	AddInPlace(s.dOut, g)
}

// setOut installs a freshly computed output and resets the gradient
// accumulator to zeros of the same shape. Every Forward implementation
// funnels through here so the shape invariant (Grad shaped like Out)
// holds immediately after each forward call.
func (s *nodeState) setOut(out *Tensor) *Tensor {
	s.out = out
	s.dOut = ZerosLike(out)
	return s.out
}

// requireOut fetches a predecessor's output, panicking with both node names
// if the predecessor has not run Forward this cycle. Evaluation-order bugs
// surface here instead of as nil dereferences deep in tensor arithmetic.
func requireOut(consumer string, pred Node) *Tensor {
	out := pred.Out()
	if out == nil {
		panic(fmt.Sprintf("graph: node %q: predecessor %q has no output; Forward ran out of dependency order",
			consumer, pred.Name()))
	}
	return out
}

// Leaf is a node with no predecessors holding externally supplied data:
// model parameters or input examples. Assign a value with SetValue before
// each evaluation cycle (or once, for constants).
type Leaf struct {
	nodeState
	value *Tensor
}

// NewLeaf creates a leaf node with no value assigned yet.
func NewLeaf(name string) *Leaf {
	return &Leaf{nodeState: nodeState{name: name}}
}

// NewLeafValue creates a leaf node holding the given value.
func NewLeafValue(name string, value *Tensor) *Leaf {
	l := NewLeaf(name)
	l.SetValue(value)
	return l
}

// SetValue assigns the tensor this leaf feeds into the graph.
// The leaf keeps the reference; the caller must not mutate value while a
// cycle is in flight.
func (l *Leaf) SetValue(value *Tensor) {
	if value == nil {
		panic(fmt.Sprintf("graph: leaf %q: SetValue(nil)", l.name))
	}
	l.value = value
}

// Value returns the currently assigned tensor, or nil.
func (l *Leaf) Value() *Tensor { return l.value }

// Forward publishes the assigned value as the leaf's output.
// Panics if no value has been assigned.
func (l *Leaf) Forward() *Tensor {
	if l.value == nil {
		panic(fmt.Sprintf("graph: leaf %q: Forward before SetValue", l.name))
	}
	return l.setOut(l.value)
}

// Backward is a no-op: a leaf has no predecessors to propagate to.
// Its accumulated Grad is the result callers read after a cycle.
func (l *Leaf) Backward() {}

// Predecessors returns nil: leaves terminate the dependency DAG.
func (l *Leaf) Predecessors() []Node { return nil }
