// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package models builds Transformer models by composing the layer
// contract. TransformerLM is a decoder-only language model supporting
// both full-recompute and incremental cached execution; Transformer is
// the encoder-decoder variant.
package models

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/strataml/strata/layers"
	"github.com/strataml/strata/random"
	"github.com/strataml/strata/shapes"
	"github.com/strataml/strata/tensor"
)

// TransformerLM composes a decoder-only Transformer language model:
// shift-right, token embedding, positional encoding, NLayers decoder
// blocks, a final normalization, and the projection to vocabulary
// log-probabilities. In Predict mode the attention and positional
// layers carry cached state, and feeding one token per call matches
// full recomputation position by position.
func TransformerLM(c Config) (*layers.Serial, error) {
	cfg := c.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transformer lm config: %w", err)
	}
	log.Debug().
		Int("n_layers", cfg.NLayers).
		Int("d_model", cfg.DModel).
		Int("vocab_size", cfg.VocabSize).
		Str("mode", string(cfg.Mode)).
		Msg("building transformer lm")

	stack := []layers.Layer{
		layers.NewShiftRight(cfg.Mode),
		layers.NewEmbedding(cfg.VocabSize, cfg.DModel),
		layers.NewDropout(cfg.Dropout, cfg.Mode),
		layers.NewPositionalEncoding(cfg.MaxLen, cfg.Mode),
	}
	for i := 0; i < cfg.NLayers; i++ {
		stack = append(stack, decoderBlock(cfg))
	}
	stack = append(stack,
		layers.NewLayerNorm(),
		layers.NewDense(cfg.VocabSize),
		layers.NewLogSoftmax(),
	)
	return layers.NewSerial(stack...), nil
}

// decoderBlock is one causal self-attention + feed-forward unit with
// pre-normalization and residual connections.
func decoderBlock(cfg Config) layers.Layer {
	return layers.NewSerial(
		layers.NewResidual(
			layers.NewLayerNorm(),
			layers.NewCausalAttention(cfg.NHeads, cfg.Mode),
			layers.NewDropout(cfg.Dropout, cfg.Mode),
		),
		layers.NewResidual(
			layers.NewLayerNorm(),
			layers.NewDense(cfg.DFF),
			layers.NewRelu(),
			layers.NewDense(cfg.DModel),
			layers.NewDropout(cfg.Dropout, cfg.Mode),
		),
	)
}

// encoderBlock is one unmasked self-attention + feed-forward unit.
func encoderBlock(cfg Config) layers.Layer {
	return layers.NewSerial(
		layers.NewResidual(
			layers.NewLayerNorm(),
			layers.NewSelfAttention(cfg.NHeads),
			layers.NewDropout(cfg.Dropout, cfg.Mode),
		),
		layers.NewResidual(
			layers.NewLayerNorm(),
			layers.NewDense(cfg.DFF),
			layers.NewRelu(),
			layers.NewDense(cfg.DModel),
			layers.NewDropout(cfg.Dropout, cfg.Mode),
		),
	)
}

// TransformerConfig describes an encoder-decoder Transformer.
type TransformerConfig struct {
	// InputVocabSize is the source vocabulary size.
	InputVocabSize int `json:"input_vocab_size"`
	// OutputVocabSize is the target vocabulary size; zero means shared
	// with the source.
	OutputVocabSize int `json:"output_vocab_size"`
	// DModel, DFF, NHeads, MaxLen, Dropout as in Config.
	DModel  int     `json:"d_model"`
	DFF     int     `json:"d_ff"`
	NHeads  int     `json:"n_heads"`
	MaxLen  int     `json:"max_len"`
	Dropout float64 `json:"dropout"`
	// NEncoderLayers and NDecoderLayers are the stack depths.
	NEncoderLayers int `json:"n_encoder_layers"`
	NDecoderLayers int `json:"n_decoder_layers"`
	// Mode is train or eval; the encoder-decoder model has no
	// incremental path.
	Mode layers.Mode `json:"mode"`
}

// Transformer is an encoder-decoder model. It takes (source tokens,
// target tokens) and produces (target log-probabilities, target
// tokens).
type Transformer struct {
	layers.Module

	srcEmbed  *layers.Serial
	encoder   *layers.Serial
	tgtEmbed  *layers.Serial
	decBlocks []*crossBlock
	head      *layers.Serial
}

// NewTransformer builds an encoder-decoder Transformer.
func NewTransformer(c TransformerConfig) (*Transformer, error) {
	if c.OutputVocabSize == 0 {
		c.OutputVocabSize = c.InputVocabSize
	}
	if c.MaxLen == 0 {
		c.MaxLen = 2048
	}
	if c.Mode == "" {
		c.Mode = layers.Train
	}
	lmCfg := Config{
		VocabSize: c.InputVocabSize,
		DModel:    c.DModel,
		DFF:       c.DFF,
		NLayers:   1,
		NHeads:    c.NHeads,
		MaxLen:    c.MaxLen,
		Dropout:   c.Dropout,
		Mode:      c.Mode,
	}
	if err := lmCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transformer config: %w", err)
	}
	log.Debug().
		Int("n_encoder_layers", c.NEncoderLayers).
		Int("n_decoder_layers", c.NDecoderLayers).
		Int("d_model", c.DModel).
		Msg("building transformer")

	encStack := make([]layers.Layer, 0, c.NEncoderLayers+1)
	for i := 0; i < c.NEncoderLayers; i++ {
		encStack = append(encStack, encoderBlock(lmCfg))
	}
	encStack = append(encStack, layers.NewLayerNorm())

	decBlocks := make([]*crossBlock, c.NDecoderLayers)
	for i := range decBlocks {
		decBlocks[i] = newCrossBlock(lmCfg)
	}

	t := &Transformer{
		srcEmbed: layers.NewSerial(
			layers.NewEmbedding(c.InputVocabSize, c.DModel),
			layers.NewDropout(c.Dropout, c.Mode),
			layers.NewPositionalEncoding(c.MaxLen, c.Mode),
		),
		encoder: layers.NewSerial(encStack...),
		tgtEmbed: layers.NewSerial(
			layers.NewShiftRight(c.Mode),
			layers.NewEmbedding(c.OutputVocabSize, c.DModel),
			layers.NewDropout(c.Dropout, c.Mode),
			layers.NewPositionalEncoding(c.MaxLen, c.Mode),
		),
		decBlocks: decBlocks,
		head: layers.NewSerial(
			layers.NewLayerNorm(),
			layers.NewDense(c.OutputVocabSize),
			layers.NewLogSoftmax(),
		),
	}
	t.Module = layers.New(t, layers.WithName("Transformer"), layers.WithNIn(2), layers.WithNOut(2))
	return t, nil
}

// NewWeightsAndState initializes the encoder and decoder towers,
// threading the source signature through the encoder and the target
// signature through the decoder blocks alongside the encoder output.
func (t *Transformer) NewWeightsAndState(sig shapes.Signature) (layers.Weights, layers.State, error) {
	if len(sig) != 2 {
		return nil, nil, fmt.Errorf("transformer needs (source, target) inputs, got %s", sig)
	}
	keys, err := t.NewRNGs(4 + len(t.decBlocks))
	if err != nil {
		return nil, nil, err
	}
	srcSig := shapes.SignatureOf(sig[0])
	tgtSig := shapes.SignatureOf(sig[1])

	encSig, err := initThreaded(t.srcEmbed, srcSig, keys[0])
	if err != nil {
		return nil, nil, err
	}
	encSig, err = initThreaded(t.encoder, encSig, keys[1])
	if err != nil {
		return nil, nil, err
	}
	decSig, err := initThreaded(t.tgtEmbed, tgtSig, keys[2])
	if err != nil {
		return nil, nil, err
	}
	for i, b := range t.decBlocks {
		cur := shapes.SignatureOf(decSig[0], encSig[0])
		out, err := initThreaded(b, cur, keys[3+i])
		if err != nil {
			return nil, nil, err
		}
		decSig = shapes.SignatureOf(out[0])
	}
	if _, err := initThreaded(t.head, decSig, keys[3+len(t.decBlocks)]); err != nil {
		return nil, nil, err
	}
	return layers.EmptyWeights, layers.EmptyState, nil
}

func initThreaded(l layers.Layer, sig shapes.Signature, key random.Key) (shapes.Signature, error) {
	if _, _, err := l.Init(sig, layers.WithInitKey(key)); err != nil {
		return nil, err
	}
	return l.OutputSignature(sig)
}

func (t *Transformer) ForwardWithState(in []*tensor.Tensor, w layers.Weights, s layers.State, rng random.Key) ([]*tensor.Tensor, layers.State, error) {
	keys := rng.Split(4 + len(t.decBlocks))
	src, tgt := in[0], in[1]

	enc, err := t.srcEmbed.Call([]*tensor.Tensor{src}, layers.WithRNG(keys[0]))
	if err != nil {
		return nil, nil, err
	}
	enc, err = t.encoder.Call(enc, layers.WithRNG(keys[1]))
	if err != nil {
		return nil, nil, err
	}
	dec, err := t.tgtEmbed.Call([]*tensor.Tensor{tgt}, layers.WithRNG(keys[2]))
	if err != nil {
		return nil, nil, err
	}
	x := dec[0]
	for i, b := range t.decBlocks {
		out, err := b.Call([]*tensor.Tensor{x, enc[0]}, layers.WithRNG(keys[3+i]))
		if err != nil {
			return nil, nil, err
		}
		x = out[0]
	}
	logits, err := t.head.Call([]*tensor.Tensor{x}, layers.WithRNG(keys[3+len(t.decBlocks)]))
	if err != nil {
		return nil, nil, err
	}
	return []*tensor.Tensor{logits[0], tgt}, s, nil
}

func (t *Transformer) OutputSignature(sig shapes.Signature) (shapes.Signature, error) {
	if len(sig) != 2 {
		return nil, fmt.Errorf("transformer needs (source, target) inputs, got %s", sig)
	}
	encSig, err := t.srcEmbed.OutputSignature(shapes.SignatureOf(sig[0]))
	if err != nil {
		return nil, err
	}
	encSig, err = t.encoder.OutputSignature(encSig)
	if err != nil {
		return nil, err
	}
	decSig, err := t.tgtEmbed.OutputSignature(shapes.SignatureOf(sig[1]))
	if err != nil {
		return nil, err
	}
	for _, b := range t.decBlocks {
		out, err := b.OutputSignature(shapes.SignatureOf(decSig[0], encSig[0]))
		if err != nil {
			return nil, err
		}
		decSig = shapes.SignatureOf(out[0])
	}
	headSig, err := t.head.OutputSignature(decSig)
	if err != nil {
		return nil, err
	}
	return shapes.SignatureOf(headSig[0], sig[1]), nil
}

// crossBlock is one decoder unit of the encoder-decoder model: causal
// self-attention, encoder-decoder attention, and a feed-forward block,
// each with pre-normalization and a residual connection.
type crossBlock struct {
	layers.Module

	selfAttn *layers.Residual
	norm     *layers.LayerNorm
	cross    *layers.CrossAttention
	ff       *layers.Residual
}

func newCrossBlock(cfg Config) *crossBlock {
	b := &crossBlock{
		selfAttn: layers.NewResidual(
			layers.NewLayerNorm(),
			layers.NewCausalAttention(cfg.NHeads, cfg.Mode),
			layers.NewDropout(cfg.Dropout, cfg.Mode),
		),
		norm:  layers.NewLayerNorm(),
		cross: layers.NewCrossAttention(cfg.NHeads),
		ff: layers.NewResidual(
			layers.NewLayerNorm(),
			layers.NewDense(cfg.DFF),
			layers.NewRelu(),
			layers.NewDense(cfg.DModel),
			layers.NewDropout(cfg.Dropout, cfg.Mode),
		),
	}
	b.Module = layers.New(b, layers.WithName("CrossBlock"), layers.WithNIn(2), layers.WithNOut(1))
	return b
}

func (b *crossBlock) NewWeightsAndState(sig shapes.Signature) (layers.Weights, layers.State, error) {
	if len(sig) != 2 {
		return nil, nil, fmt.Errorf("cross block needs (x, memory) inputs, got %s", sig)
	}
	keys, err := b.NewRNGs(4)
	if err != nil {
		return nil, nil, err
	}
	xSig := shapes.SignatureOf(sig[0])
	if _, _, err := b.selfAttn.Init(xSig, layers.WithInitKey(keys[0])); err != nil {
		return nil, nil, err
	}
	if _, _, err := b.norm.Init(xSig, layers.WithInitKey(keys[1])); err != nil {
		return nil, nil, err
	}
	if _, _, err := b.cross.Init(sig, layers.WithInitKey(keys[2])); err != nil {
		return nil, nil, err
	}
	if _, _, err := b.ff.Init(xSig, layers.WithInitKey(keys[3])); err != nil {
		return nil, nil, err
	}
	return layers.EmptyWeights, layers.EmptyState, nil
}

func (b *crossBlock) ForwardWithState(in []*tensor.Tensor, w layers.Weights, s layers.State, rng random.Key) ([]*tensor.Tensor, layers.State, error) {
	keys := rng.Split(4)
	x, mem := in[0], in[1]

	out, err := b.selfAttn.Call([]*tensor.Tensor{x}, layers.WithRNG(keys[0]))
	if err != nil {
		return nil, nil, err
	}
	x = out[0]

	normed, err := b.norm.Call([]*tensor.Tensor{x}, layers.WithRNG(keys[1]))
	if err != nil {
		return nil, nil, err
	}
	attended, err := b.cross.Call([]*tensor.Tensor{normed[0], mem}, layers.WithRNG(keys[2]))
	if err != nil {
		return nil, nil, err
	}
	x = tensor.Add(x, attended[0])

	out, err = b.ff.Call([]*tensor.Tensor{x}, layers.WithRNG(keys[3]))
	if err != nil {
		return nil, nil, err
	}
	return out, s, nil
}

func (b *crossBlock) OutputSignature(sig shapes.Signature) (shapes.Signature, error) {
	if len(sig) != 2 {
		return nil, fmt.Errorf("cross block needs (x, memory) inputs, got %s", sig)
	}
	return shapes.SignatureOf(sig[0]), nil
}
