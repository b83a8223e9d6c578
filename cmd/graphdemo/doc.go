// Package main provides a demo program that wires every operator node kind
// into a small regularized regression graph and trains it with plain
// gradient descent on synthetic data. It exists to show the full library
// contract end to end: build the graph once, reassign leaf values per
// example, run forward/backward cycles, read gradients, update parameters.
package main
