// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strataml/strata/shapes"
	"github.com/strataml/strata/tensor"
)

func TestSerialShapeThreading(t *testing.T) {
	model := NewSerial(NewDense(8), NewRelu(), NewDense(2))
	shape, err := CheckShapeAgreement(model, shapes.SignatureOf(shapes.Of(3, 5)))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, shape)
}

func TestSerialEmptyIsIdentity(t *testing.T) {
	model := NewSerial()
	_, _, err := model.Init(shapes.SignatureOf(shapes.Of(2, 3)))
	require.NoError(t, err)

	x := tensor.FromValues([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	out, err := model.Call([]*tensor.Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, x.Data(), out[0].Data())
}

func TestSerialCompositeOwnsNoWeights(t *testing.T) {
	model := NewSerial(NewDense(4))
	w, s, err := model.Init(shapes.SignatureOf(shapes.Of(2, 3)))
	require.NoError(t, err)
	assert.Empty(t, w)
	assert.Empty(t, s)
	// The sublayer owns its own containers.
	assert.Len(t, model.Sublayers()[0].Weights(), 2)
}

func TestSerialDeterministic(t *testing.T) {
	sig := shapes.SignatureOf(shapes.Of(2, 3))
	build := func() *Serial { return NewSerial(NewDense(4), NewRelu(), NewDense(3)) }

	m1 := build()
	m2 := build()
	_, _, err := m1.Init(sig)
	require.NoError(t, err)
	_, _, err = m2.Init(sig)
	require.NoError(t, err)

	x := tensor.FromValues([]int{2, 3}, []float64{0.1, -0.2, 0.3, 0.4, -0.5, 0.6})
	out1, err := m1.Call([]*tensor.Tensor{x})
	require.NoError(t, err)
	out2, err := m2.Call([]*tensor.Tensor{x})
	require.NoError(t, err)
	assert.True(t, tensor.EqualApprox(out1[0], out2[0], 0))

	m3 := build()
	_, _, err = m3.Init(sig, WithSeed(99))
	require.NoError(t, err)
	out3, err := m3.Call([]*tensor.Tensor{x})
	require.NoError(t, err)
	assert.False(t, tensor.EqualApprox(out1[0], out3[0], 1e-12))
}

func TestSerialSublayersDrawDistinctKeys(t *testing.T) {
	// Two Dense sublayers of the same shape must not share weights.
	model := NewSerial(NewDense(3), NewDense(3))
	_, _, err := model.Init(shapes.SignatureOf(shapes.Of(2, 3)))
	require.NoError(t, err)

	w1 := model.Sublayers()[0].Weights()
	w2 := model.Sublayers()[1].Weights()
	assert.False(t, tensor.EqualApprox(w1[0], w2[0], 1e-12))
}

func TestSerialArityMismatch(t *testing.T) {
	twoIn := MustFn("Add2", func(x, y *tensor.Tensor) *tensor.Tensor {
		return tensor.Add(x, y)
	})
	model := NewSerial(NewDense(4), twoIn)
	_, _, err := model.Init(shapes.SignatureOf(shapes.Of(2, 3)))
	require.Error(t, err)

	var layerErr *LayerError
	assert.ErrorAs(t, err, &layerErr)
}

func TestSerialOutputSignaturePreservesWeights(t *testing.T) {
	model := NewSerial(NewDense(4))
	_, _, err := model.Init(shapes.SignatureOf(shapes.Of(2, 3)))
	require.NoError(t, err)
	before := model.Sublayers()[0].Weights()[0]

	out, err := model.OutputSignature(shapes.SignatureOf(shapes.Of(2, 3)))
	require.NoError(t, err)
	assert.True(t, out.Equal(shapes.SignatureOf(shapes.Of(2, 4))))

	after := model.Sublayers()[0].Weights()[0]
	assert.Same(t, before, after)
}

func TestResidual(t *testing.T) {
	double := NewPure(func(in []*tensor.Tensor) []*tensor.Tensor {
		return []*tensor.Tensor{tensor.Scale(in[0], 2)}
	})
	layer := NewResidual(double)
	_, _, err := layer.Init(shapes.SignatureOf(shapes.Of(3)))
	require.NoError(t, err)

	x := tensor.FromSlice([]float64{1, 2, 3})
	out, err := layer.Call([]*tensor.Tensor{x})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6, 9}, out[0].Data())
}

func TestResidualShape(t *testing.T) {
	layer := NewResidual(NewLayerNorm(), NewDense(5))
	shape, err := CheckShapeAgreement(layer, shapes.SignatureOf(shapes.Of(2, 5)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, shape)
}
