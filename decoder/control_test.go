// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strataml/strata/tensor"
)

func TestOutputDiversityControlValidation(t *testing.T) {
	_, err := OutputDiversityControl(-0.1, 0, 1)
	require.Error(t, err)
	_, err = OutputDiversityControl(1.5, 0, 1)
	require.Error(t, err)
	_, err = OutputDiversityControl(1, -1, 1)
	require.Error(t, err)
	_, err = OutputDiversityControl(1, 0, 1.5)
	require.Error(t, err)

	_, err = OutputDiversityControl(1, 0, 1)
	require.NoError(t, err)
}

func TestOutputDiversityControlNoOpKeepsScores(t *testing.T) {
	control, err := OutputDiversityControl(1, 0, 1)
	require.NoError(t, err)
	scores := tensor.FromSlice([]float64{1, 2, 3})
	out, err := control(scores)
	require.NoError(t, err)
	assert.Equal(t, scores.Data(), out.Data())
}

func TestTemperature(t *testing.T) {
	f := TemperatureFunc(0.5)
	out, err := f(tensor.FromSlice([]float64{1, -2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -4, 6}, out.Data())
}

func TestTopK(t *testing.T) {
	f := TopKFunc(2, math.Inf(-1))
	scores := tensor.FromSlice([]float64{0.1, 0.9, 0.5, 0.3})
	out, err := f(scores)
	require.NoError(t, err)
	assert.Equal(t, math.Inf(-1), out.At(0))
	assert.Equal(t, 0.9, out.At(1))
	assert.Equal(t, 0.5, out.At(2))
	assert.Equal(t, math.Inf(-1), out.At(3))
	// The input is not mutated.
	assert.Equal(t, 0.1, scores.At(0))
}

func TestTopKLargerThanVocab(t *testing.T) {
	f := TopKFunc(10, math.Inf(-1))
	out, err := f(tensor.FromSlice([]float64{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, out.Data())
}

func TestTopPKeepsHead(t *testing.T) {
	// One dominant score: top-p with a small bound keeps it and filters
	// the tail.
	f := TopPFunc(0.5, math.Inf(-1))
	out, err := f(tensor.FromSlice([]float64{10, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 10.0, out.At(0))
	for i := 1; i < 4; i++ {
		assert.Equal(t, math.Inf(-1), out.At(i))
	}
}

func TestTopPAlwaysKeepsBest(t *testing.T) {
	// Even with an extreme bound the highest score survives.
	f := TopPFunc(0.01, math.Inf(-1))
	out, err := f(tensor.FromSlice([]float64{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.At(2))
	assert.Equal(t, math.Inf(-1), out.At(0))
	assert.Equal(t, math.Inf(-1), out.At(1))
}

func TestTopPOneKeepsAll(t *testing.T) {
	control, err := OutputDiversityControl(1, 0, 0.99)
	require.NoError(t, err)
	// Uniform scores: cumulative probability hits the bound only at the
	// very end, so nearly all candidates survive.
	out, err := control(tensor.FromSlice([]float64{1, 1, 1, 1}))
	require.NoError(t, err)
	var kept int
	for _, v := range out.Data() {
		if !math.IsInf(v, -1) {
			kept++
		}
	}
	assert.Equal(t, 4, kept)
}
