// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strataml/strata/layers"
	"github.com/strataml/strata/shapes"
	"github.com/strataml/strata/tensor"
)

func testConfig(mode layers.Mode) Config {
	return Config{
		VocabSize: 16,
		DModel:    4,
		DFF:       8,
		NLayers:   2,
		NHeads:    2,
		MaxLen:    64,
		Mode:      mode,
	}
}

func TestTransformerLMShape(t *testing.T) {
	model, err := TransformerLM(testConfig(layers.Eval))
	require.NoError(t, err)

	sig := shapes.SignatureOf(shapes.New([]int{3, 5}, shapes.Int32))
	shape, err := layers.CheckShapeAgreement(model, sig)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 16}, shape)
}

func TestTransformerLMProducesLogProbs(t *testing.T) {
	model, err := TransformerLM(testConfig(layers.Eval))
	require.NoError(t, err)
	_, _, err = model.Init(shapes.SignatureOf(shapes.New([]int{2, 4}, shapes.Int32)))
	require.NoError(t, err)

	tokens := tensor.FromInts([]int{2, 4}, []int{1, 5, 2, 9, 3, 3, 7, 0})
	out, err := model.Call([]*tensor.Tensor{tokens})
	require.NoError(t, err)

	// Every position's distribution exponentiates to one.
	data := out[0].Data()
	for off := 0; off < len(data); off += 16 {
		var total float64
		for i := 0; i < 16; i++ {
			total += math.Exp(data[off+i])
		}
		assert.InDelta(t, 1, total, 1e-9)
	}
}

func TestTransformerLMDeterministic(t *testing.T) {
	sig := shapes.SignatureOf(shapes.New([]int{1, 3}, shapes.Int32))
	tokens := tensor.FromInts([]int{1, 3}, []int{4, 8, 15})

	run := func(seed uint64) *tensor.Tensor {
		model, err := TransformerLM(testConfig(layers.Eval))
		require.NoError(t, err)
		_, _, err = model.Init(sig, layers.WithSeed(seed))
		require.NoError(t, err)
		out, err := model.Call([]*tensor.Tensor{tokens})
		require.NoError(t, err)
		return out[0]
	}

	assert.True(t, tensor.EqualApprox(run(0), run(0), 0))
	assert.False(t, tensor.EqualApprox(run(0), run(1), 1e-12))
}

func TestTransformerLMInvalidConfig(t *testing.T) {
	cfg := testConfig(layers.Eval)
	cfg.NHeads = 3 // does not divide d_model
	_, err := TransformerLM(cfg)
	require.Error(t, err)

	cfg = testConfig(layers.Eval)
	cfg.VocabSize = 0
	_, err = TransformerLM(cfg)
	require.Error(t, err)
}

// TestFastInferenceMatchesSlow drives an Eval-mode model over a growing
// buffer and a Predict-mode model one token at a time, checking that
// the cached incremental path reproduces full recomputation.
func TestFastInferenceMatchesSlow(t *testing.T) {
	const (
		batch  = 2
		length = 5
		vocab  = 16
	)

	slow, err := TransformerLM(testConfig(layers.Eval))
	require.NoError(t, err)
	_, _, err = slow.Init(shapes.SignatureOf(shapes.New([]int{batch, length}, shapes.Int32)))
	require.NoError(t, err)

	fast, err := TransformerLM(testConfig(layers.Predict))
	require.NoError(t, err)
	_, _, err = fast.Init(shapes.SignatureOf(shapes.New([]int{batch, 1}, shapes.Int32)))
	require.NoError(t, err)

	buf := tensor.FromInts([]int{batch, length}, make([]int, batch*length))
	next := tensor.FromInts([]int{batch, 1}, make([]int, batch))

	for step := 0; step < length; step++ {
		outSlow, err := slow.Call([]*tensor.Tensor{buf})
		require.NoError(t, err)
		outFast, err := fast.Call([]*tensor.Tensor{next})
		require.NoError(t, err)
		require.Equal(t, []int{batch, 1, vocab}, outFast[0].Shape())

		for b := 0; b < batch; b++ {
			for i := 0; i < vocab; i++ {
				want := outSlow[0].At((b*length+step)*vocab + i)
				got := outFast[0].At(b*vocab + i)
				assert.InDelta(t, want, got, 1e-5, "step %d batch %d vocab %d", step, b, i)
			}
		}

		// Pick the next symbols and append them to the slow buffer; the
		// fast model consumes them on the following step.
		for b := 0; b < batch; b++ {
			tok := (step*3 + b*5 + 1) % vocab
			next.Data()[b] = float64(tok)
			buf.Data()[b*length+step] = float64(tok)
		}
	}
}

func transformerTestConfig() TransformerConfig {
	return TransformerConfig{
		InputVocabSize: 16,
		DModel:         4,
		DFF:            8,
		NHeads:         2,
		MaxLen:         64,
		NEncoderLayers: 2,
		NDecoderLayers: 2,
		Mode:           layers.Eval,
	}
}

func TestTransformerSharedVocab(t *testing.T) {
	model, err := NewTransformer(transformerTestConfig())
	require.NoError(t, err)

	sig := shapes.SignatureOf(
		shapes.New([]int{3, 5}, shapes.Int32),
		shapes.New([]int{3, 5}, shapes.Int32),
	)
	shape, err := layers.CheckShapeAgreement(model, sig)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 16}, shape)
}

func TestTransformerSeparateVocabAndLengths(t *testing.T) {
	cfg := transformerTestConfig()
	cfg.OutputVocabSize = 50
	model, err := NewTransformer(cfg)
	require.NoError(t, err)

	src := shapes.New([]int{3, 7}, shapes.Int32)
	tgt := shapes.New([]int{3, 5}, shapes.Int32)
	sig := shapes.SignatureOf(src, tgt)
	_, _, err = model.Init(sig)
	require.NoError(t, err)

	out, err := model.OutputSignature(sig)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Equal(shapes.Of(3, 5, 50)))
	assert.True(t, out[1].Equal(tgt))
}

func TestTransformerForward(t *testing.T) {
	model, err := NewTransformer(transformerTestConfig())
	require.NoError(t, err)

	sig := shapes.SignatureOf(
		shapes.New([]int{2, 3}, shapes.Int32),
		shapes.New([]int{2, 4}, shapes.Int32),
	)
	_, _, err = model.Init(sig)
	require.NoError(t, err)

	src := tensor.FromInts([]int{2, 3}, []int{1, 2, 3, 4, 5, 6})
	tgt := tensor.FromInts([]int{2, 4}, []int{7, 8, 9, 10, 11, 12, 13, 14})
	out, err := model.Call([]*tensor.Tensor{src, tgt})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []int{2, 4, 16}, out[0].Shape())
	// The target tokens pass through unchanged.
	assert.Equal(t, tgt.Data(), out[1].Data())
}
