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

func TestPositionalEncodingShape(t *testing.T) {
	layer := NewPositionalEncoding(16, Eval)
	shape, err := CheckShapeAgreement(layer, shapes.SignatureOf(shapes.Of(2, 5, 8)))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 8}, shape)
}

func TestPositionalEncodingAddsTable(t *testing.T) {
	layer := NewPositionalEncoding(16, Eval)
	w, _, err := layer.Init(shapes.SignatureOf(shapes.Of(1, 3, 4)))
	require.NoError(t, err)
	table := w[0]

	out, err := layer.Call([]*tensor.Tensor{tensor.Zeros(1, 3, 4)})
	require.NoError(t, err)
	for pos := 0; pos < 3; pos++ {
		for i := 0; i < 4; i++ {
			assert.Equal(t, table.At(pos*4+i), out[0].At(pos*4+i))
		}
	}
	// Position 0 encodes sin(0)=0 and cos(0)=1 alternating.
	assert.Equal(t, 0.0, out[0].At(0))
	assert.Equal(t, 1.0, out[0].At(1))
}

func TestPositionalEncodingPredictMatchesEval(t *testing.T) {
	slow := NewPositionalEncoding(16, Eval)
	_, _, err := slow.Init(shapes.SignatureOf(shapes.Of(1, 4, 4)))
	require.NoError(t, err)
	fast := NewPositionalEncoding(16, Predict)
	_, s, err := fast.Init(shapes.SignatureOf(shapes.Of(1, 1, 4)))
	require.NoError(t, err)
	require.Len(t, s, 1)
	assert.Equal(t, 0.0, s[0].At(0))

	outSlow, err := slow.Call([]*tensor.Tensor{tensor.Zeros(1, 4, 4)})
	require.NoError(t, err)

	for step := 0; step < 4; step++ {
		outFast, err := fast.Call([]*tensor.Tensor{tensor.Zeros(1, 1, 4)})
		require.NoError(t, err)
		assert.Equal(t, float64(step+1), fast.State()[0].At(0))
		for i := 0; i < 4; i++ {
			assert.Equal(t, outSlow[0].At(step*4+i), outFast[0].At(i))
		}
	}
}

func TestPositionalEncodingMaxLenExceeded(t *testing.T) {
	layer := NewPositionalEncoding(3, Eval)
	_, _, err := layer.Init(shapes.SignatureOf(shapes.Of(1, 5, 4)))
	require.NoError(t, err)

	_, err = layer.Call([]*tensor.Tensor{tensor.Zeros(1, 5, 4)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum length")
}
