// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/strataml/strata/shapes"
)

func TestConstructors(t *testing.T) {
	z := Zeros(2, 3)
	assert.Equal(t, []int{2, 3}, z.Shape())
	assert.Equal(t, 6, z.Size())
	assert.Equal(t, shapes.Float64, z.Dtype())

	ids := FromInts([]int{2}, []int{3, 7})
	assert.Equal(t, shapes.Int32, ids.Dtype())
	assert.Equal(t, 7, ids.Int(1))

	s := Scalar(2.5)
	assert.Equal(t, 0, s.NDim())
	assert.Equal(t, 2.5, s.At(0))

	assert.Panics(t, func() { FromValues([]int{2, 2}, []float64{1, 2, 3}) })
}

func TestCloneIsDeep(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3})
	b := a.Clone()
	b.Data()[0] = 99
	assert.Equal(t, 1.0, a.At(0))
}

func TestReshape(t *testing.T) {
	a := FromValues([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	b := a.Reshape(3, 2)
	assert.Equal(t, []int{3, 2}, b.Shape())
	assert.Equal(t, a.Data(), b.Data())
	assert.Panics(t, func() { a.Reshape(4, 2) })
}

func TestAddBroadcastsLastAxis(t *testing.T) {
	a := FromValues([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	bias := FromSlice([]float64{10, 20, 30})
	out := Add(a, bias)
	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, out.Data())
}

func TestAddShapeMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { Add(Zeros(2, 3), Zeros(3, 2)) })
}

func TestElementwiseOps(t *testing.T) {
	a := FromSlice([]float64{1, 5, 3})
	b := FromSlice([]float64{4, 2, 3})
	assert.Equal(t, []float64{-3, 3, 0}, Sub(a, b).Data())
	assert.Equal(t, []float64{4, 10, 9}, Mul(a, b).Data())
	assert.Equal(t, []float64{4, 5, 3}, Maximum(a, b).Data())
	assert.Equal(t, []float64{2, 10, 6}, Scale(a, 2).Data())
}

func TestSumAndMean(t *testing.T) {
	a := FromValues([]int{2, 2}, []float64{1, 2, 3, 4})
	assert.Equal(t, 10.0, Sum(a))
	assert.Equal(t, 2.5, Mean(a))
}

func TestMatMul2D(t *testing.T) {
	a := FromValues([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	b := FromValues([]int{3, 2}, []float64{7, 8, 9, 10, 11, 12})
	out := MatMul(a, b)
	assert.Equal(t, []int{2, 2}, out.Shape())
	assert.Equal(t, []float64{58, 64, 139, 154}, out.Data())
}

func TestMatMulBatched(t *testing.T) {
	// A [2, 2, 2] batch against a shared [2, 2] matrix.
	a := FromValues([]int{2, 2, 2}, []float64{
		1, 0,
		0, 1,
		2, 0,
		0, 2,
	})
	b := FromValues([]int{2, 2}, []float64{1, 2, 3, 4})
	out := MatMul(a, b)
	assert.Equal(t, []int{2, 2, 2}, out.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 2, 4, 6, 8}, out.Data())

	// Batched on both sides.
	out = MatMul(a, a)
	assert.Equal(t, []float64{1, 0, 0, 1, 4, 0, 0, 4}, out.Data())
}

func TestMatMulInnerMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { MatMul(Zeros(2, 3), Zeros(2, 3)) })
}

func TestTranspose(t *testing.T) {
	a := FromValues([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	out := Transpose(a)
	assert.Equal(t, []int{3, 2}, out.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, out.Data())

	batched := FromValues([]int{2, 1, 2}, []float64{1, 2, 3, 4})
	out = Transpose(batched)
	assert.Equal(t, []int{2, 2, 1}, out.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4}, out.Data())
}

func TestConcat(t *testing.T) {
	a := FromValues([]int{1, 2, 2}, []float64{1, 2, 3, 4})
	b := FromValues([]int{1, 1, 2}, []float64{5, 6})
	out := Concat(1, a, b)
	assert.Equal(t, []int{1, 3, 2}, out.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, out.Data())
}

func TestConcatFromEmpty(t *testing.T) {
	// Growing a zero-length cache axis, the first decoding step.
	cache := Zeros(2, 0, 3)
	step := FromValues([]int{2, 1, 3}, []float64{1, 2, 3, 4, 5, 6})
	out := Concat(1, cache, step)
	assert.Equal(t, []int{2, 1, 3}, out.Shape())
	assert.Equal(t, step.Data(), out.Data())
}

func TestConcatMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { Concat(0, Zeros(2, 3), Zeros(2, 4)) })
	assert.Panics(t, func() { Concat(2, Zeros(2, 3), Zeros(2, 3)) })
}

func TestEqualApprox(t *testing.T) {
	a := FromSlice([]float64{1, 2})
	b := FromSlice([]float64{1, 2.0001})
	assert.True(t, EqualApprox(a, b, 1e-3))
	assert.False(t, EqualApprox(a, b, 1e-6))
	assert.False(t, EqualApprox(a, Zeros(2, 1), 1))
}

func TestSoftmaxLast(t *testing.T) {
	x := FromValues([]int{2, 3}, []float64{1, 1, 1, 0, 0, 1000})
	out := SoftmaxLast(x)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 1.0/3, out.At(i), 1e-12)
	}
	// Large logits stay finite.
	assert.InDelta(t, 1, out.At(5), 1e-12)
	assert.InDelta(t, 0, out.At(3), 1e-12)
}

func TestLogSoftmaxLast(t *testing.T) {
	x := FromValues([]int{1, 4}, []float64{0.5, -1, 2, 0})
	out := LogSoftmaxLast(x)
	var total float64
	for i := 0; i < 4; i++ {
		total += math.Exp(out.At(i))
	}
	assert.InDelta(t, 1, total, 1e-12)
}

func TestSoftmaxWithInfMask(t *testing.T) {
	// Masked positions get exactly zero probability.
	x := FromValues([]int{1, 3}, []float64{1, math.Inf(-1), 2})
	out := SoftmaxLast(x)
	assert.Equal(t, 0.0, out.At(1))
	assert.InDelta(t, 1, out.At(0)+out.At(2), 1e-12)
}
