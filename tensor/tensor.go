// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tensor implements the dense n-dimensional arrays exchanged
// between layers. Values are stored as float64 regardless of the dtype
// tag; the tag records the semantic element type (token ids are Int32).
// Two-dimensional kernels are delegated to gonum.
package tensor

import (
	"fmt"

	"github.com/strataml/strata/shapes"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense array with a shape and a dtype tag.
type Tensor struct {
	shape []int
	dtype shapes.Dtype
	data  []float64
}

// New returns a zero-filled tensor with the given dimensions and dtype.
func New(dims []int, dtype shapes.Dtype) *Tensor {
	size := 1
	for _, d := range dims {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension %d in %v", d, dims))
		}
		size *= d
	}
	shape := make([]int, len(dims))
	copy(shape, dims)
	return &Tensor{shape: shape, dtype: dtype, data: make([]float64, size)}
}

// Zeros returns a zero-filled Float64 tensor.
func Zeros(dims ...int) *Tensor { return New(dims, shapes.Float64) }

// Placeholder returns a zero-valued tensor matching the descriptor.
// It is the stand-in used for signature-only evaluation.
func Placeholder(sd shapes.ShapeDtype) *Tensor {
	return New(sd.Shape(), sd.Dtype())
}

// FromSlice returns a 1-D Float64 tensor holding a copy of values.
func FromSlice(values []float64) *Tensor {
	t := New([]int{len(values)}, shapes.Float64)
	copy(t.data, values)
	return t
}

// FromValues returns a tensor with the given dimensions holding a copy
// of values, which must have exactly the implied number of elements.
func FromValues(dims []int, values []float64) *Tensor {
	t := New(dims, shapes.Float64)
	if len(values) != len(t.data) {
		panic(fmt.Sprintf("tensor: %d values for shape %v", len(values), dims))
	}
	copy(t.data, values)
	return t
}

// FromInts returns an Int32-tagged tensor holding the given token ids.
func FromInts(dims []int, values []int) *Tensor {
	t := New(dims, shapes.Int32)
	if len(values) != len(t.data) {
		panic(fmt.Sprintf("tensor: %d values for shape %v", len(values), dims))
	}
	for i, v := range values {
		t.data[i] = float64(v)
	}
	return t
}

// Scalar returns a 0-D tensor holding v.
func Scalar(v float64) *Tensor {
	t := New(nil, shapes.Float64)
	t.data = []float64{v}
	return t
}

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int {
	out := make([]int, len(t.shape))
	copy(out, t.shape)
	return out
}

// NDim returns the number of dimensions.
func (t *Tensor) NDim() int { return len(t.shape) }

// Dim returns the i-th dimension.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Size returns the number of elements.
func (t *Tensor) Size() int { return len(t.data) }

// Dtype returns the element-type tag.
func (t *Tensor) Dtype() shapes.Dtype { return t.dtype }

// Data returns the live backing slice in row-major order.
func (t *Tensor) Data() []float64 { return t.data }

// At returns the element at the given row-major flat index.
func (t *Tensor) At(i int) float64 { return t.data[i] }

// Int returns the element at flat index i truncated to int, for
// Int32-tagged tensors holding token ids.
func (t *Tensor) Int(i int) int { return int(t.data[i]) }

// SignatureOf returns the shape/dtype descriptor of t.
func (t *Tensor) SignatureOf() shapes.ShapeDtype {
	return shapes.New(t.shape, t.dtype)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape, t.dtype)
	copy(c.data, t.data)
	return c
}

// Reshape returns a view-copy of t with new dimensions of equal size.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	c := New(dims, t.dtype)
	if len(c.data) != len(t.data) {
		panic(fmt.Sprintf("tensor: reshape %v to %v", t.shape, dims))
	}
	copy(c.data, t.data)
	return c
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v %s", t.shape, t.dtype)
}

func sameShape(a, b *Tensor) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

func elementwise(a, b *Tensor, op func(x, y float64) float64) *Tensor {
	if !sameShape(a, b) {
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", a.shape, b.shape))
	}
	out := New(a.shape, shapes.Float64)
	for i := range a.data {
		out.data[i] = op(a.data[i], b.data[i])
	}
	return out
}

// Add returns a + b. Shapes must match, except that a 1-D b whose
// length equals a's last dimension is broadcast over leading axes.
func Add(a, b *Tensor) *Tensor {
	if len(b.shape) == 1 && len(a.shape) >= 1 && b.shape[0] == a.shape[len(a.shape)-1] && !sameShape(a, b) {
		out := a.Clone()
		out.dtype = shapes.Float64
		n := b.shape[0]
		for i := range out.data {
			out.data[i] += b.data[i%n]
		}
		return out
	}
	return elementwise(a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor {
	return elementwise(a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns the elementwise product a * b.
func Mul(a, b *Tensor) *Tensor {
	return elementwise(a, b, func(x, y float64) float64 { return x * y })
}

// Maximum returns the elementwise maximum of a and b.
func Maximum(a, b *Tensor) *Tensor {
	return elementwise(a, b, func(x, y float64) float64 {
		if x > y {
			return x
		}
		return y
	})
}

// Scale returns t * s.
func Scale(t *Tensor, s float64) *Tensor {
	out := t.Clone()
	out.dtype = shapes.Float64
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Sum returns the sum of all elements.
func Sum(t *Tensor) float64 {
	var s float64
	for _, v := range t.data {
		s += v
	}
	return s
}

// Mean returns the mean of all elements.
func Mean(t *Tensor) float64 {
	if len(t.data) == 0 {
		return 0
	}
	return Sum(t) / float64(len(t.data))
}

// MatMul multiplies the last two axes of a by the 2-D matrix b, or by
// the last two axes of b when the leading axes of a and b agree.
// Leading axes of a are treated as batch dimensions.
func MatMul(a, b *Tensor) *Tensor {
	if len(a.shape) < 2 || len(b.shape) < 2 {
		panic(fmt.Sprintf("tensor: matmul needs >=2-D operands, got %v x %v", a.shape, b.shape))
	}
	am, ak := a.shape[len(a.shape)-2], a.shape[len(a.shape)-1]
	bk, bn := b.shape[len(b.shape)-2], b.shape[len(b.shape)-1]
	if ak != bk {
		panic(fmt.Sprintf("tensor: matmul inner dims %v x %v", a.shape, b.shape))
	}
	batch := 1
	for _, d := range a.shape[:len(a.shape)-2] {
		batch *= d
	}
	bBatched := len(b.shape) > 2
	if bBatched {
		bb := 1
		for _, d := range b.shape[:len(b.shape)-2] {
			bb *= d
		}
		if bb != batch {
			panic(fmt.Sprintf("tensor: matmul batch dims %v x %v", a.shape, b.shape))
		}
	}

	outShape := append(a.Shape()[:len(a.shape)-2], am, bn)
	out := New(outShape, shapes.Float64)
	for i := 0; i < batch; i++ {
		ai := a.data[i*am*ak : (i+1)*am*ak]
		bi := b.data
		if bBatched {
			bi = b.data[i*bk*bn : (i+1)*bk*bn]
		}
		oi := out.data[i*am*bn : (i+1)*am*bn]
		var dst mat.Dense
		dst.Mul(mat.NewDense(am, ak, ai), mat.NewDense(bk, bn, bi))
		copy(oi, dst.RawMatrix().Data)
	}
	return out
}

// Transpose swaps the last two axes.
func Transpose(t *Tensor) *Tensor {
	if len(t.shape) < 2 {
		panic(fmt.Sprintf("tensor: transpose needs >=2-D, got %v", t.shape))
	}
	m, n := t.shape[len(t.shape)-2], t.shape[len(t.shape)-1]
	batch := len(t.data) / (m * n)
	outShape := t.Shape()
	outShape[len(outShape)-2], outShape[len(outShape)-1] = n, m
	out := New(outShape, t.dtype)
	for b := 0; b < batch; b++ {
		src := t.data[b*m*n:]
		dst := out.data[b*m*n:]
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				dst[j*m+i] = src[i*n+j]
			}
		}
	}
	return out
}

// Concat concatenates a and b along the given axis.
func Concat(axis int, a, b *Tensor) *Tensor {
	if len(a.shape) != len(b.shape) {
		panic(fmt.Sprintf("tensor: concat rank mismatch %v vs %v", a.shape, b.shape))
	}
	if axis < 0 || axis >= len(a.shape) {
		panic(fmt.Sprintf("tensor: concat axis %d out of range for %v", axis, a.shape))
	}
	for i := range a.shape {
		if i != axis && a.shape[i] != b.shape[i] {
			panic(fmt.Sprintf("tensor: concat shape mismatch %v vs %v on axis %d", a.shape, b.shape, axis))
		}
	}
	outShape := a.Shape()
	outShape[axis] += b.shape[axis]
	out := New(outShape, a.dtype)

	inner := 1
	for i := axis + 1; i < len(a.shape); i++ {
		inner *= a.shape[i]
	}
	outer := 1
	for i := 0; i < axis; i++ {
		outer *= a.shape[i]
	}
	aChunk := a.shape[axis] * inner
	bChunk := b.shape[axis] * inner
	for o := 0; o < outer; o++ {
		copy(out.data[o*(aChunk+bChunk):], a.data[o*aChunk:(o+1)*aChunk])
		copy(out.data[o*(aChunk+bChunk)+aChunk:], b.data[o*bChunk:(o+1)*bChunk])
	}
	return out
}

// EqualApprox reports whether a and b have the same shape and all
// elements within tol of each other.
func EqualApprox(a, b *Tensor, tol float64) bool {
	if !sameShape(a, b) {
		return false
	}
	for i := range a.data {
		d := a.data[i] - b.data[i]
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}
