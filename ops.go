package gradgraph

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// This file implements the differentiable primitive library: one node kind
// per operation, each with a forward formula and the matching backward
// (chain rule) formula.
//
// THE CHAIN RULE:
//
// Given: y = f(x) and a scalar objective L downstream of y
// Backward receives dL/dy accumulated on this node and must add
// dL/dx = dL/dy · dy/dx into each input's accumulator.
//
// Every Backward below follows the same shape: read the upstream gradient
// from Grad(), multiply by the local partial derivative, AccumulateGrad into
// the predecessor. Accumulation (never assignment) is what makes gradients
// correct when a node feeds more than one consumer.
//
// All operands must agree in shape exactly; there is no broadcasting. The
// single scalar that looks like an exception, the L2 penalty coefficient,
// is a fixed construction parameter rather than a node, so no gradient
// flows to it and it never appears in a predecessor list.
//
// ===========================================================================

import (
	"fmt"
	"math"
)

// VectorScalarAffine computes the scalar affine projection of a vector:
//
//	out = dot(x, w) + b
//
// x and w are equal-length vector nodes, b is a scalar node.
//
// Backward:
//
//	d_x += d_out * w
//	d_w += d_out * x
//	d_b += d_out
//
// Derivation: out = Σ_i x[i]*w[i] + b, so ∂out/∂x[i] = w[i],
// ∂out/∂w[i] = x[i], ∂out/∂b = 1.
type VectorScalarAffine struct {
	nodeState
	x, w, b Node
}

// NewVectorScalarAffine wires out = dot(x, w) + b.
func NewVectorScalarAffine(name string, x, w, b Node) *VectorScalarAffine {
	return &VectorScalarAffine{nodeState: nodeState{name: name}, x: x, w: w, b: b}
}

func (n *VectorScalarAffine) Forward() *Tensor {
	x := requireOut(n.name, n.x)
	w := requireOut(n.name, n.w)
	b := requireOut(n.name, n.b)

	if len(x.shape) != 1 || !shapeEqual(x.shape, w.shape) {
		panic(fmt.Sprintf("graph: node %q: expected equal-length vectors, got shapes %v and %v",
			n.name, x.shape, w.shape))
	}
	if !b.IsScalar() {
		panic(fmt.Sprintf("graph: node %q: bias must be scalar, got shape %v", n.name, b.shape))
	}

	return n.setOut(NewScalar(Dot(x, w) + b.Item()))
}

func (n *VectorScalarAffine) Backward() {
	d := n.dOut.Item()

	n.x.AccumulateGrad(Scale(n.w.Out(), d))
	n.w.AccumulateGrad(Scale(n.x.Out(), d))
	n.b.AccumulateGrad(NewScalar(d))
}

func (n *VectorScalarAffine) Predecessors() []Node { return []Node{n.x, n.w, n.b} }

// SquaredL2Distance computes the squared euclidean distance between two
// same-shape nodes:
//
//	out = Σ (a - b)²
//
// The forward pass caches diff = a - b; backward reuses it.
//
// Backward:
//
//	d_a += d_out * 2*diff
//	d_b += -d_out * 2*diff
//
// Derivation: ∂/∂a[i] Σ_j (a[j]-b[j])² = 2*(a[i]-b[i]), and the b term
// picks up the opposite sign.
type SquaredL2Distance struct {
	nodeState
	a, b Node
	diff *Tensor // a - b, cached by Forward for Backward
}

// NewSquaredL2Distance wires out = Σ (a - b)².
func NewSquaredL2Distance(name string, a, b Node) *SquaredL2Distance {
	return &SquaredL2Distance{nodeState: nodeState{name: name}, a: a, b: b}
}

func (n *SquaredL2Distance) Forward() *Tensor {
	a := requireOut(n.name, n.a)
	b := requireOut(n.name, n.b)

	if !shapeEqual(a.shape, b.shape) {
		panic(fmt.Sprintf("graph: node %q: cannot take distance between shapes %v and %v",
			n.name, a.shape, b.shape))
	}

	n.diff = Sub(a, b)

	sum := 0.0
	for _, v := range n.diff.data {
		sum += v * v
	}

	return n.setOut(NewScalar(sum))
}

func (n *SquaredL2Distance) Backward() {
	d := n.dOut.Item()

	grad := Scale(n.diff, 2*d)
	n.a.AccumulateGrad(grad)
	n.b.AccumulateGrad(Scale(n.diff, -2*d))
}

func (n *SquaredL2Distance) Predecessors() []Node { return []Node{n.a, n.b} }

// L2NormPenalty computes a weighted squared norm, the usual L2
// regularization term:
//
//	out = lambda * Σ w²
//
// lambda is a fixed non-negative scalar chosen at construction. It is not a
// node: no gradient flows to it and it is not a predecessor.
//
// Backward:
//
//	d_w += d_out * 2*lambda*w
type L2NormPenalty struct {
	nodeState
	lambda float64
	w      Node
}

// NewL2NormPenalty wires out = lambda * Σ w². Panics if lambda is negative.
func NewL2NormPenalty(name string, lambda float64, w Node) *L2NormPenalty {
	if lambda < 0 {
		panic(fmt.Sprintf("graph: node %q: negative regularization coefficient %g", name, lambda))
	}
	return &L2NormPenalty{nodeState: nodeState{name: name}, lambda: lambda, w: w}
}

func (n *L2NormPenalty) Forward() *Tensor {
	w := requireOut(n.name, n.w)

	sum := 0.0
	for _, v := range w.data {
		sum += v * v
	}

	return n.setOut(NewScalar(n.lambda * sum))
}

func (n *L2NormPenalty) Backward() {
	d := n.dOut.Item()
	n.w.AccumulateGrad(Scale(n.w.Out(), 2*n.lambda*d))
}

func (n *L2NormPenalty) Predecessors() []Node { return []Node{n.w} }

// ElementwiseSum adds two same-shape nodes:
//
//	out = a + b
//
// Backward: addition distributes the upstream gradient unchanged to both
// inputs.
//
//	d_a += d_out
//	d_b += d_out
type ElementwiseSum struct {
	nodeState
	a, b Node
}

// NewElementwiseSum wires out = a + b.
func NewElementwiseSum(name string, a, b Node) *ElementwiseSum {
	return &ElementwiseSum{nodeState: nodeState{name: name}, a: a, b: b}
}

func (n *ElementwiseSum) Forward() *Tensor {
	a := requireOut(n.name, n.a)
	b := requireOut(n.name, n.b)

	if !shapeEqual(a.shape, b.shape) {
		panic(fmt.Sprintf("graph: node %q: cannot sum shapes %v and %v", n.name, a.shape, b.shape))
	}

	return n.setOut(Add(a, b))
}

func (n *ElementwiseSum) Backward() {
	n.a.AccumulateGrad(n.dOut)
	n.b.AccumulateGrad(n.dOut)
}

func (n *ElementwiseSum) Predecessors() []Node { return []Node{n.a, n.b} }

// Affine computes the full affine transform of a vector:
//
//	out = W @ x + b
//
// W is an (M, N) matrix node, x an (N) vector node, b an (M) vector node.
//
// Backward:
//
//	d_W += outer(d_out, x)
//	d_x += W^T @ d_out
//	d_b += d_out
//
// Derivation: out[i] = Σ_j W[i,j]*x[j] + b[i], so ∂out[i]/∂W[i,j] = x[j]
// (the outer product collects these), ∂out[i]/∂x[j] = W[i,j] (summing over
// i gives the transposed product), and ∂out[i]/∂b[i] = 1.
type Affine struct {
	nodeState
	w, x, b Node
}

// NewAffine wires out = W @ x + b.
func NewAffine(name string, w, x, b Node) *Affine {
	return &Affine{nodeState: nodeState{name: name}, w: w, x: x, b: b}
}

func (n *Affine) Forward() *Tensor {
	w := requireOut(n.name, n.w)
	x := requireOut(n.name, n.x)
	b := requireOut(n.name, n.b)

	if len(w.shape) != 2 {
		panic(fmt.Sprintf("graph: node %q: weight must be a matrix, got shape %v", n.name, w.shape))
	}
	if len(x.shape) != 1 || x.shape[0] != w.shape[1] {
		panic(fmt.Sprintf("graph: node %q: expected input shape [%d] for weight %v, got %v",
			n.name, w.shape[1], w.shape, x.shape))
	}
	if len(b.shape) != 1 || b.shape[0] != w.shape[0] {
		panic(fmt.Sprintf("graph: node %q: expected bias shape [%d] for weight %v, got %v",
			n.name, w.shape[0], w.shape, b.shape))
	}

	return n.setOut(Add(MatVec(w, x), b))
}

func (n *Affine) Backward() {
	n.w.AccumulateGrad(Outer(n.dOut, n.x.Out()))
	n.x.AccumulateGrad(MatVecT(n.w.Out(), n.dOut))
	n.b.AccumulateGrad(n.dOut)
}

func (n *Affine) Predecessors() []Node { return []Node{n.w, n.x, n.b} }

// Tanh applies the hyperbolic tangent elementwise:
//
//	out = tanh(a)
//
// Backward:
//
//	d_a += d_out * (1 - tanh(a)²)
//
// Derivation: d/dx tanh(x) = 1 - tanh(x)² = sech²(x). The forward output is
// exactly the tanh values, so Backward reuses out instead of recomputing.
type Tanh struct {
	nodeState
	a Node
}

// NewTanh wires out = tanh(a), elementwise.
func NewTanh(name string, a Node) *Tanh {
	return &Tanh{nodeState: nodeState{name: name}, a: a}
}

func (n *Tanh) Forward() *Tensor {
	a := requireOut(n.name, n.a)

	out := NewTensor(a.shape...)
	for i, v := range a.data {
		out.data[i] = math.Tanh(v)
	}

	return n.setOut(out)
}

func (n *Tanh) Backward() {
	grad := NewTensor(n.out.shape...)
	for i, t := range n.out.data {
		grad.data[i] = n.dOut.data[i] * (1 - t*t)
	}
	n.a.AccumulateGrad(grad)
}

func (n *Tanh) Predecessors() []Node { return []Node{n.a} }
