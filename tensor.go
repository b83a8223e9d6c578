package gradgraph

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
)

var (
	// ErrShapeMismatch indicates incompatible tensor shapes for an operation.
	ErrShapeMismatch = errors.New("tensor: shape mismatch")

	// ErrInvalidShape indicates an invalid tensor shape.
	ErrInvalidShape = errors.New("tensor: invalid shape")

	// ErrInvalidIndex indicates an out-of-bounds index access.
	ErrInvalidIndex = errors.New("tensor: invalid index")
)

// Tensor represents a multi-dimensional array of float64 values.
// It stores data in row-major (C-contiguous) order.
//
// A rank-0 tensor (empty shape) holds a single scalar. Scalars matter here
// because the gradient seed of a computation graph is defined only for a
// 0-dimensional output.
//
// Tensor is not safe for concurrent use. Synchronization must be
// handled by the caller if needed.
type Tensor struct {
	data  []float64 // Flat array storing all elements
	shape []int     // Dimensions; empty for a scalar
}

// NewTensor creates a tensor with the given shape, initialized to zero.
// No arguments creates a rank-0 scalar tensor. Panics if any dimension is
// non-positive.
//
// Shape errors are programmer bugs, not runtime conditions that should be
// handled gracefully, so they panic.
func NewTensor(shape ...int) *Tensor {
	size := 1
	for i, dim := range shape {
		if dim <= 0 {
			panic(fmt.Sprintf("tensor: shape[%d] must be positive, got %d", i, dim))
		}
		size *= dim
	}

	// Copy shape slice to prevent external mutation
	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		data:  make([]float64, size),
		shape: shapeCopy,
	}
}

// NewScalar creates a rank-0 tensor holding v.
func NewScalar(v float64) *Tensor {
	t := NewTensor()
	t.data[0] = v
	return t
}

// NewVector creates a rank-1 tensor from the given values.
func NewVector(vals ...float64) *Tensor {
	if len(vals) == 0 {
		panic("tensor: vector must have at least one element")
	}
	t := NewTensor(len(vals))
	copy(t.data, vals)
	return t
}

// NewMatrix creates a rank-2 tensor from values in row-major order.
// Panics if len(vals) != rows*cols.
func NewMatrix(rows, cols int, vals ...float64) *Tensor {
	t := NewTensor(rows, cols)
	if len(vals) != rows*cols {
		panic(fmt.Sprintf("tensor: matrix %dx%d needs %d values, got %d", rows, cols, rows*cols, len(vals)))
	}
	copy(t.data, vals)
	return t
}

// NewTensorRand creates a tensor with values from a normal distribution.
// Uses Box-Muller transform for sampling with standard deviation 0.02,
// the usual small random initialization for parameters.
func NewTensorRand(shape ...int) *Tensor {
	t := NewTensor(shape...)

	// Box-Muller transform for normal distribution
	for i := 0; i < len(t.data); i += 2 {
		u1, u2 := rand.Float64(), rand.Float64()
		mag := 0.02 * math.Sqrt(-2*math.Log(u1))
		t.data[i] = mag * math.Cos(2*math.Pi*u2)
		if i+1 < len(t.data) {
			t.data[i+1] = mag * math.Sin(2*math.Pi*u2)
		}
	}

	return t
}

// ZerosLike creates a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return NewTensor(t.shape...)
}

// Shape returns a copy of the tensor's shape.
// The returned slice can be safely modified without affecting the tensor.
func (t *Tensor) Shape() []int {
	shape := make([]int, len(t.shape))
	copy(shape, t.shape)
	return shape
}

// Dims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return len(t.data)
}

// IsScalar reports whether the tensor is rank 0.
func (t *Tensor) IsScalar() bool {
	return len(t.shape) == 0
}

// At returns the element at the given indices.
// Panics if indices are invalid - this is a programmer error.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.flatIndex(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are invalid.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.flatIndex(indices)] = value
}

// Item returns the value of a rank-0 tensor.
// Panics if the tensor is not a scalar.
func (t *Tensor) Item() float64 {
	if !t.IsScalar() {
		panic(fmt.Sprintf("tensor: Item requires rank-0 tensor, got shape %v", t.shape))
	}
	return t.data[0]
}

// SetItem sets the value of a rank-0 tensor.
// Panics if the tensor is not a scalar.
func (t *Tensor) SetItem(v float64) {
	if !t.IsScalar() {
		panic(fmt.Sprintf("tensor: SetItem requires rank-0 tensor, got shape %v", t.shape))
	}
	t.data[0] = v
}

// flatIndex converts multi-dimensional indices to a flat index.
// Panics on invalid indices.
func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor: expected %d indices, got %d", len(t.shape), len(indices)))
	}

	idx := 0
	stride := 1

	// Row-major order
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index[%d]=%d out of bounds [0,%d)", i, indices[i], t.shape[i]))
		}
		idx += indices[i] * stride
		stride *= t.shape[i]
	}

	return idx
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	clone := NewTensor(t.shape...)
	copy(clone.data, t.data)
	return clone
}

// String returns a string representation of the tensor for debugging.
// Scalars and small vectors print their values; larger tensors print
// shape and size only.
func (t *Tensor) String() string {
	if t.IsScalar() {
		return fmt.Sprintf("Tensor(%g)", t.data[0])
	}
	if len(t.shape) == 1 && len(t.data) <= 8 {
		parts := make([]string, len(t.data))
		for i, v := range t.data {
			parts[i] = fmt.Sprintf("%g", v)
		}
		return fmt.Sprintf("Tensor([%s])", strings.Join(parts, " "))
	}
	return fmt.Sprintf("Tensor(shape=%v, size=%d)", t.shape, len(t.data))
}

// ===========================================================================
// OPERATIONS
// ===========================================================================
//
// The capability set the graph layer needs: elementwise add/subtract/multiply,
// scalar broadcast, dot product, matrix-vector product (plain and transposed),
// outer product, and in-place accumulation. Every operation requires exact
// shape agreement; there is no implicit broadcasting.

// Add performs element-wise addition: out = a + b.
// Panics if shapes don't match.
func Add(a, b *Tensor) *Tensor {
	if !shapeEqual(a.shape, b.shape) {
		panic(fmt.Sprintf("tensor: cannot add shapes %v and %v", a.shape, b.shape))
	}

	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}

	return out
}

// Sub performs element-wise subtraction: out = a - b.
// Panics if shapes don't match.
func Sub(a, b *Tensor) *Tensor {
	if !shapeEqual(a.shape, b.shape) {
		panic(fmt.Sprintf("tensor: cannot subtract shapes %v and %v", a.shape, b.shape))
	}

	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] - b.data[i]
	}

	return out
}

// Mul performs element-wise multiplication: out = a * b (Hadamard product).
// Panics if shapes don't match.
func Mul(a, b *Tensor) *Tensor {
	if !shapeEqual(a.shape, b.shape) {
		panic(fmt.Sprintf("tensor: cannot multiply shapes %v and %v", a.shape, b.shape))
	}

	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * b.data[i]
	}

	return out
}

// Scale multiplies all elements by a scalar: out = a * scalar.
func Scale(a *Tensor, scalar float64) *Tensor {
	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * scalar
	}
	return out
}

// Dot computes the inner product of two equal-length vectors.
// Panics if either argument is not rank 1 or the lengths differ.
func Dot(a, b *Tensor) float64 {
	if len(a.shape) != 1 || len(b.shape) != 1 {
		panic(fmt.Sprintf("tensor: Dot requires two vectors, got shapes %v and %v", a.shape, b.shape))
	}
	if a.shape[0] != b.shape[0] {
		panic(fmt.Sprintf("tensor: Dot length mismatch: %d vs %d", a.shape[0], b.shape[0]))
	}

	sum := 0.0
	for i := range a.data {
		sum += a.data[i] * b.data[i]
	}
	return sum
}

// MatVec computes the matrix-vector product: out = W @ x.
// W must be (M, N), x must be (N), result is (M).
func MatVec(w, x *Tensor) *Tensor {
	if len(w.shape) != 2 {
		panic(fmt.Sprintf("tensor: MatVec requires 2D matrix, got shape %v", w.shape))
	}
	if len(x.shape) != 1 || x.shape[0] != w.shape[1] {
		panic(fmt.Sprintf("tensor: MatVec shape mismatch: %v @ %v", w.shape, x.shape))
	}

	m, n := w.shape[0], w.shape[1]
	out := NewTensor(m)
	for i := 0; i < m; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += w.data[i*n+j] * x.data[j]
		}
		out.data[i] = sum
	}

	return out
}

// MatVecT computes the transposed matrix-vector product: out = W^T @ d.
// W must be (M, N), d must be (M), result is (N).
//
// Implemented without materializing the transpose; the backward pass of an
// affine transform calls this once per cycle.
func MatVecT(w, d *Tensor) *Tensor {
	if len(w.shape) != 2 {
		panic(fmt.Sprintf("tensor: MatVecT requires 2D matrix, got shape %v", w.shape))
	}
	if len(d.shape) != 1 || d.shape[0] != w.shape[0] {
		panic(fmt.Sprintf("tensor: MatVecT shape mismatch: %v^T @ %v", w.shape, d.shape))
	}

	m, n := w.shape[0], w.shape[1]
	out := NewTensor(n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.data[j] += w.data[i*n+j] * d.data[i]
		}
	}

	return out
}

// Outer computes the outer product of two vectors: out[i,j] = a[i] * b[j].
// a must be (M), b must be (N), result is (M, N).
func Outer(a, b *Tensor) *Tensor {
	if len(a.shape) != 1 || len(b.shape) != 1 {
		panic(fmt.Sprintf("tensor: Outer requires two vectors, got shapes %v and %v", a.shape, b.shape))
	}

	m, n := a.shape[0], b.shape[0]
	out := NewTensor(m, n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.data[i*n+j] = a.data[i] * b.data[j]
		}
	}

	return out
}

// AddScaled adds scalar*src into dst element-wise: dst += scalar * src.
// Panics if shapes don't match. This is the primitive a gradient-descent
// caller needs to apply updates without reallocating.
func (t *Tensor) AddScaled(src *Tensor, scalar float64) {
	if !shapeEqual(t.shape, src.shape) {
		panic(fmt.Sprintf("tensor: cannot add shape %v into %v", src.shape, t.shape))
	}

	for i := range t.data {
		t.data[i] += scalar * src.data[i]
	}
}

// AddInPlace adds src into dst element-wise: dst += src.
// Panics if shapes don't match. This is the accumulation primitive the
// backward pass uses; it never overwrites.
func AddInPlace(dst, src *Tensor) {
	if !shapeEqual(dst.shape, src.shape) {
		panic(fmt.Sprintf("tensor: cannot accumulate shape %v into %v", src.shape, dst.shape))
	}

	for i := range dst.data {
		dst.data[i] += src.data[i]
	}
}

// ===========================================================================
// HELPERS
// ===========================================================================

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
