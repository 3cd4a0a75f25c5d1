// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strataml/strata/random"
	"github.com/strataml/strata/tensor"
)

func TestGreedyDecoding(t *testing.T) {
	pick := GreedyDecoding()
	scores := tensor.FromSlice([]float64{0.1, 2.5, -1, 2.4})
	id, p, err := pick(scores, random.NewKey(0))
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Greater(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestGreedyDecodingIgnoresKey(t *testing.T) {
	pick := GreedyDecoding()
	scores := tensor.FromSlice([]float64{1, 2, 3})
	id1, _, err := pick(scores, random.NewKey(0))
	require.NoError(t, err)
	id2, _, err := pick(scores, random.NewKey(99))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestMultinomialSamplingDeterministicPerKey(t *testing.T) {
	pick := MultinomialSampling()
	scores := tensor.FromSlice([]float64{1, 1.5, 0.5, 2})

	id1, _, err := pick(scores, random.NewKey(7))
	require.NoError(t, err)
	id2, _, err := pick(scores, random.NewKey(7))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestMultinomialSamplingSkipsFiltered(t *testing.T) {
	pick := MultinomialSampling()
	// Only index 2 has non-zero probability.
	scores := tensor.FromSlice([]float64{math.Inf(-1), math.Inf(-1), 5, math.Inf(-1)})
	for seed := uint64(0); seed < 20; seed++ {
		id, p, err := pick(scores, random.NewKey(seed))
		require.NoError(t, err)
		assert.Equal(t, 2, id)
		assert.InDelta(t, 1, p, 1e-12)
	}
}

func TestOutputSelection(t *testing.T) {
	scores := tensor.FromSlice([]float64{math.Inf(-1), 3, math.Inf(-1)})
	greedy := OutputSelection(false)
	id, _, err := greedy(scores, random.NewKey(0))
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	sampling := OutputSelection(true)
	id, _, err = sampling(scores, random.NewKey(0))
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}
