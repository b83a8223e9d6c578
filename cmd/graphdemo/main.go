package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gradgraph"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("graphdemo", flag.ContinueOnError)
	var (
		steps   = fs.Int("steps", 2000, "number of gradient descent steps")
		lr      = fs.Float64("lr", 0.02, "learning rate")
		lambda  = fs.Float64("lambda", 1e-4, "L2 regularization coefficient")
		hidden  = fs.Int("hidden", 8, "hidden layer width")
		inputs  = fs.Int("inputs", 2, "input vector length")
		seed    = fs.Int64("seed", 42, "random seed for data and init")
		dotPath = fs.String("dot", "", "write the wired graph in DOT format to this file")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))

	// Parameters: one hidden affine layer with tanh, then a scalar readout.
	w1 := gradgraph.NewLeafValue("W1", gradgraph.NewTensorRand(*hidden, *inputs))
	b1 := gradgraph.NewLeafValue("b1", gradgraph.NewTensor(*hidden))
	w2 := gradgraph.NewLeafValue("w2", gradgraph.NewTensorRand(*hidden))
	b2 := gradgraph.NewLeafValue("b2", gradgraph.NewScalar(0))

	// Per-example inputs, reassigned every step.
	x := gradgraph.NewLeaf("x")
	y := gradgraph.NewLeaf("y")

	// prediction = w2 . tanh(W1 x + b1) + b2
	// loss       = (prediction - y)^2 + lambda*(|W1|^2 + |w2|^2)
	h := gradgraph.NewTanh("hidden", gradgraph.NewAffine("layer1", w1, x, b1))
	pred := gradgraph.NewVectorScalarAffine("prediction", h, w2, b2)
	dataLoss := gradgraph.NewSquaredL2Distance("data_loss", pred, y)
	penalty := gradgraph.NewElementwiseSum("penalty",
		gradgraph.NewL2NormPenalty("penalty_W1", *lambda, w1),
		gradgraph.NewL2NormPenalty("penalty_w2", *lambda, w2))
	loss := gradgraph.NewElementwiseSum("loss", dataLoss, penalty)

	graph := gradgraph.NewGraph(loss)
	params := []*gradgraph.Leaf{w1, b1, w2, b2}

	// Synthetic target: a fixed smooth function of the inputs.
	target := func(xs []float64) float64 {
		sum := 0.0
		for i, v := range xs {
			sum += v * float64(i+1) * 0.7
		}
		return math.Sin(sum)
	}

	running := 0.0
	for step := 1; step <= *steps; step++ {
		xs := make([]float64, *inputs)
		for i := range xs {
			xs[i] = rng.Float64()*2 - 1
		}
		x.SetValue(gradgraph.NewVector(xs...))
		y.SetValue(gradgraph.NewScalar(target(xs)))

		out := graph.Run()
		running += out.Item()

		for _, p := range params {
			p.Value().AddScaled(p.Grad(), -*lr)
		}

		if step%200 == 0 {
			fmt.Printf("step %5d  avg loss %.6f\n", step, running/200)
			running = 0
		}
	}

	if *dotPath != "" {
		f, err := os.Create(*dotPath)
		if err != nil {
			return fmt.Errorf("writing DOT file: %w", err)
		}
		defer f.Close()
		if err := gradgraph.WriteDOT(f, loss); err != nil {
			return fmt.Errorf("writing DOT file: %w", err)
		}
		fmt.Printf("wrote graph to %s\n", *dotPath)
	}

	return nil
}
