package gradgraph

import (
	"bytes"
	"strings"
	"testing"
)

// TestDiamondAccumulation verifies that a node feeding two consumers
// receives the sum of both consumers' gradient contributions.
func TestDiamondAccumulation(t *testing.T) {
	// Diamond: v feeds both a penalty and a squared distance, which are
	// summed into the output.
	//
	//        v
	//       / \
	//   Σv²    Σ(v-0)²
	//       \ /
	//       sum
	v := NewLeafValue("v", NewVector(1, 2))
	zero := NewLeafValue("zero", NewVector(0, 0))

	left := NewL2NormPenalty("left", 1, v)
	right := NewSquaredL2Distance("right", v, zero)
	total := NewElementwiseSum("total", left, right)

	g := NewGraph(total)
	out := g.Run()

	// Both branches compute Σv² = 5, so total = 10.
	if v := out.Item(); v != 10 {
		t.Errorf("expected 10, got %f", v)
	}

	// Each branch contributes 2*v; the accumulated gradient is their sum 4*v.
	if v.Grad().At(0) != 4 || v.Grad().At(1) != 8 {
		t.Errorf("expected accumulated grad [4 8], got %v", v.Grad())
	}
}

// TestDiamondSumOfContributions verifies the accumulated gradient equals the
// exact sum of what each consumer contributes when run on its own.
func TestDiamondSumOfContributions(t *testing.T) {
	value := NewVector(0.5, -1.5, 2)
	zeroVal := NewVector(0, 0, 0)

	// Each branch evaluated alone.
	runBranch := func(build func(v Node, zero Node) Node) *Tensor {
		v := NewLeafValue("v", value.Clone())
		zero := NewLeafValue("zero", zeroVal.Clone())
		g := NewGraph(build(v, zero))
		g.Run()
		return v.Grad()
	}
	leftGrad := runBranch(func(v, _ Node) Node { return NewL2NormPenalty("left", 0.25, v) })
	rightGrad := runBranch(func(v, zero Node) Node { return NewSquaredL2Distance("right", v, zero) })

	// Both branches together.
	v := NewLeafValue("v", value.Clone())
	zero := NewLeafValue("zero", zeroVal.Clone())
	total := NewElementwiseSum("total",
		NewL2NormPenalty("left", 0.25, v),
		NewSquaredL2Distance("right", v, zero))
	NewGraph(total).Run()

	for i := 0; i < 3; i++ {
		want := leftGrad.At(i) + rightGrad.At(i)
		if got := v.Grad().At(i); got != want {
			t.Errorf("grad[%d]: expected sum of contributions %f, got %f", i, want, got)
		}
	}
}

// TestIdempotentRerun verifies that running two cycles on unchanged leaves
// yields identical outputs and gradients.
func TestIdempotentRerun(t *testing.T) {
	x := NewLeafValue("x", NewVector(0.3, 0.7))
	w := NewLeafValue("w", NewVector(-1.1, 0.4))
	b := NewLeafValue("b", NewScalar(0.2))
	g := NewGraph(NewVectorScalarAffine("p", x, w, b))

	out1 := g.Run().Item()
	gradX1 := x.Grad().Clone()
	gradW1 := w.Grad().Clone()
	gradB1 := b.Grad().Item()

	out2 := g.Run().Item()

	if out1 != out2 {
		t.Errorf("reruns diverged: %f vs %f", out1, out2)
	}
	for i := 0; i < 2; i++ {
		if x.Grad().At(i) != gradX1.At(i) {
			t.Errorf("x.grad[%d] changed between reruns", i)
		}
		if w.Grad().At(i) != gradW1.At(i) {
			t.Errorf("w.grad[%d] changed between reruns", i)
		}
	}
	if b.Grad().Item() != gradB1 {
		t.Error("b.grad changed between reruns")
	}
}

// TestOrderInvariance verifies that any ordering respecting the dependency
// contract produces identical results: forward with predecessors first,
// backward with successors first.
func TestOrderInvariance(t *testing.T) {
	build := func() (v, zero *Leaf, left, right, total Node) {
		v = NewLeafValue("v", NewVector(1, -2))
		zero = NewLeafValue("zero", NewVector(0, 0))
		left = NewL2NormPenalty("left", 0.5, v)
		right = NewSquaredL2Distance("right", v, zero)
		total = NewElementwiseSum("total", left, right)
		return
	}

	run := func(forward, backward []Node, output Node) float64 {
		for _, n := range forward {
			n.Forward()
		}
		output.AccumulateGrad(NewScalar(1))
		for _, n := range backward {
			n.Backward()
		}
		return output.Out().Item()
	}

	// Order A: v, zero, left, right, total
	v1, z1, l1, r1, t1 := build()
	outA := run(
		[]Node{v1, z1, l1, r1, t1},
		[]Node{t1, r1, l1, z1, v1},
		t1)
	gradA := v1.Grad()

	// Order B: zero first, right before left, mirrored in reverse
	v2, z2, l2, r2, t2 := build()
	outB := run(
		[]Node{z2, v2, r2, l2, t2},
		[]Node{t2, l2, r2, v2, z2},
		t2)
	gradB := v2.Grad()

	if outA != outB {
		t.Errorf("forward order changed output: %f vs %f", outA, outB)
	}
	for i := 0; i < 2; i++ {
		if gradA.At(i) != gradB.At(i) {
			t.Errorf("backward order changed grad[%d]: %f vs %f", i, gradA.At(i), gradB.At(i))
		}
	}
}

// TestTopologicalOrder verifies the driver's frozen order respects
// predecessor-before-successor for every edge.
func TestTopologicalOrder(t *testing.T) {
	w := NewLeafValue("W", NewTensorRand(2, 2))
	x := NewLeafValue("x", NewVector(1, 1))
	b := NewLeafValue("b", NewTensor(2))
	target := NewLeafValue("target", NewVector(0, 0))

	th := NewTanh("th", NewAffine("aff", w, x, b))
	loss := NewSquaredL2Distance("loss", th, target)
	g := NewGraph(loss)

	pos := make(map[Node]int)
	for i, n := range g.Nodes() {
		pos[n] = i
	}

	for _, n := range g.Nodes() {
		for _, pred := range n.Predecessors() {
			if pos[pred] >= pos[n] {
				t.Errorf("node %q scheduled before its predecessor %q", n.Name(), pred.Name())
			}
		}
	}

	if last := g.Nodes()[len(g.Nodes())-1]; last != Node(loss) {
		t.Errorf("output node should be last, got %q", last.Name())
	}
}

// TestBackwardBeforeForwardPanics verifies the pass ordering contract.
func TestBackwardBeforeForwardPanics(t *testing.T) {
	a := NewLeafValue("a", NewScalar(1))
	g := NewGraph(NewL2NormPenalty("p", 1, a))

	defer func() {
		if recover() == nil {
			t.Error("Backward before Forward should panic")
		}
	}()
	g.Backward()
}

// TestDoubleBackwardPanics verifies each backward pass needs its own
// forward pass; reseeding stale accumulators would double gradients.
func TestDoubleBackwardPanics(t *testing.T) {
	a := NewLeafValue("a", NewScalar(2))
	g := NewGraph(NewL2NormPenalty("p", 1, a))

	g.Run()

	defer func() {
		if recover() == nil {
			t.Error("second Backward without a new Forward should panic")
		}
	}()
	g.Backward()
}

// TestNonScalarOutputPanics verifies gradient seeding requires a rank-0
// output.
func TestNonScalarOutputPanics(t *testing.T) {
	a := NewLeafValue("a", NewVector(1, 2))
	b := NewLeafValue("b", NewVector(3, 4))
	g := NewGraph(NewElementwiseSum("s", a, b))

	g.Forward()

	defer func() {
		if recover() == nil {
			t.Error("Backward on a vector output should panic")
		}
	}()
	g.Backward()
}

// loopNode is a deliberately miswired node for cycle detection tests.
type loopNode struct {
	nodeState
	pred Node
}

func (n *loopNode) Forward() *Tensor { return n.setOut(NewScalar(0)) }

func (n *loopNode) Backward() {}

func (n *loopNode) Predecessors() []Node { return []Node{n.pred} }

// TestCycleDetection verifies the driver fails fast on cyclic wiring.
func TestCycleDetection(t *testing.T) {
	a := &loopNode{nodeState: nodeState{name: "a"}}
	b := &loopNode{nodeState: nodeState{name: "b"}}
	a.pred = b
	b.pred = a

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("cyclic wiring should panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "cycle") {
			t.Errorf("panic should mention the cycle, got: %v", r)
		}
	}()
	NewGraph(a)
}

// TestEachNodeRunsOnce verifies one Forward call per node per cycle even
// when a node has multiple consumers.
func TestEachNodeRunsOnce(t *testing.T) {
	v := NewLeafValue("v", NewVector(1, 2))
	left := NewL2NormPenalty("left", 1, v)
	right := NewL2NormPenalty("right", 2, v)
	total := NewElementwiseSum("total", left, right)

	g := NewGraph(total)

	// v reachable along two paths must appear exactly once in the order.
	count := 0
	for _, n := range g.Nodes() {
		if n == Node(v) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("shared node should appear once in the order, got %d", count)
	}
	if len(g.Nodes()) != 4 {
		t.Errorf("expected 4 nodes in order, got %d", len(g.Nodes()))
	}
}

// TestWriteDOT verifies the DOT export lists every node and edge.
func TestWriteDOT(t *testing.T) {
	a := NewLeafValue("a", NewVector(1, 2, 3))
	b := NewLeafValue("b", NewVector(4, 5, 7))
	d := NewSquaredL2Distance("dist", a, b)

	NewGraph(d).Forward()

	var buf bytes.Buffer
	if err := WriteDOT(&buf, d); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	dot := buf.String()

	for _, want := range []string{
		"digraph computation",
		"a\\nLeaf",
		"b\\nLeaf",
		"dist\\nSquaredL2Distance",
		"n0 -> n2", // a feeds dist
		"n1 -> n2", // b feeds dist
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

// TestWriteDOTEscapesNames verifies names with DOT metacharacters produce
// properly escaped labels.
func TestWriteDOTEscapesNames(t *testing.T) {
	a := NewLeafValue(`weights "layer\1"`, NewVector(1, 2))
	p := NewL2NormPenalty("penalty", 1, a)

	var buf bytes.Buffer
	if err := WriteDOT(&buf, p); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	dot := buf.String()

	if !strings.Contains(dot, `weights \"layer\\1\"`) {
		t.Errorf("label not escaped:\n%s", dot)
	}
	if strings.Contains(dot, `"layer\1"`) {
		t.Errorf("raw quotes leaked into label:\n%s", dot)
	}
}

// TestGradientDescentConverges exercises the full contract the way a
// training loop would: reassign leaves, run cycles, apply updates.
func TestGradientDescentConverges(t *testing.T) {
	// Fit w, b in y = dot(x, w) + b to a known linear function.
	w := NewLeafValue("w", NewTensor(2))
	b := NewLeafValue("b", NewScalar(0))
	x := NewLeaf("x")
	y := NewLeaf("y")

	pred := NewVectorScalarAffine("pred", x, w, b)
	loss := NewSquaredL2Distance("loss", pred, y)
	g := NewGraph(loss)

	samples := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, -0.5}, {-1, 2}}
	trueFn := func(x0, x1 float64) float64 { return 2*x0 - 3*x1 + 0.5 }

	const lr = 0.1
	for epoch := 0; epoch < 200; epoch++ {
		for _, s := range samples {
			x.SetValue(NewVector(s[0], s[1]))
			y.SetValue(NewScalar(trueFn(s[0], s[1])))
			g.Run()
			w.Value().AddScaled(w.Grad(), -lr)
			b.Value().AddScaled(b.Grad(), -lr)
		}
	}

	if got := w.Value().At(0); got < 1.9 || got > 2.1 {
		t.Errorf("w[0]: expected ~2, got %f", got)
	}
	if got := w.Value().At(1); got < -3.1 || got > -2.9 {
		t.Errorf("w[1]: expected ~-3, got %f", got)
	}
	if got := b.Value().Item(); got < 0.4 || got > 0.6 {
		t.Errorf("b: expected ~0.5, got %f", got)
	}
}
