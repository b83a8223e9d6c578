package gradgraph

import (
	"fmt"
	"math"
)

// NumericGrad estimates the gradient of the graph's output with respect to
// each entry of leaf's value using central differences:
//
//	df/dx ≈ (f(x+eps) - f(x-eps)) / (2*eps)
//
// The leaf's value is perturbed in place, one entry at a time, and restored
// before returning; a final forward pass leaves every node's out consistent
// with the unperturbed inputs. Runs 2*Size+1 forward passes, so this is a
// diagnostic tool, not something to call in a training loop.
func NumericGrad(g *Graph, leaf *Leaf, eps float64) *Tensor {
	if eps <= 0 {
		panic(fmt.Sprintf("gradcheck: eps must be positive, got %g", eps))
	}
	v := leaf.Value()
	if v == nil {
		panic(fmt.Sprintf("gradcheck: leaf %q has no value", leaf.Name()))
	}

	grad := ZerosLike(v)
	for i := range v.data {
		orig := v.data[i]

		v.data[i] = orig + eps
		plus := g.Forward().Item()

		v.data[i] = orig - eps
		minus := g.Forward().Item()

		v.data[i] = orig
		grad.data[i] = (plus - minus) / (2 * eps)
	}

	// The loop left every node's out reflecting the last perturbed value.
	g.Forward()

	return grad
}

// CheckGradients verifies the analytic gradients of the given leaves against
// central-difference estimates. It runs one full cycle to obtain analytic
// gradients, then perturbs each leaf entry and compares.
//
// An entry fails when the difference exceeds tol both absolutely and
// relative to the larger magnitude; the error names the leaf, the entry,
// and both values. The graph is left in a freshly evaluated state.
func CheckGradients(g *Graph, leaves []*Leaf, eps, tol float64) error {
	g.Run()

	// Snapshot analytic gradients first: the numeric passes below rerun
	// Forward, which resets every accumulator.
	analytic := make([]*Tensor, len(leaves))
	for i, leaf := range leaves {
		analytic[i] = leaf.Grad().Clone()
	}

	var firstErr error
	for i, leaf := range leaves {
		numeric := NumericGrad(g, leaf, eps)
		for j := range numeric.data {
			a, n := analytic[i].data[j], numeric.data[j]
			diff := math.Abs(a - n)
			scale := math.Max(math.Abs(a), math.Abs(n))
			if diff > tol && diff > tol*scale {
				firstErr = fmt.Errorf("gradcheck: leaf %q entry %d: analytic %g vs numeric %g (diff %g)",
					leaf.Name(), j, a, n, diff)
				break
			}
		}
		if firstErr != nil {
			break
		}
	}

	// Leave out/dOut consistent with the unperturbed inputs.
	g.Run()

	return firstErr
}
