// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package strata composes the layer framework into a ready-to-use
// incremental language model: it builds a predict-mode Transformer
// from a configuration and streams generated tokens.
package strata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/strataml/strata/decoder"
	"github.com/strataml/strata/layers"
	"github.com/strataml/strata/models"
	"github.com/strataml/strata/shapes"
)

// LM is a language model ready for incremental generation.
type LM struct {
	Model  *layers.Serial
	Config models.Config

	seed uint64
}

// NewLM builds and initializes a predict-mode Transformer language
// model. The seed determines the weights; equal seeds give equal
// models.
func NewLM(cfg models.Config, seed uint64) (*LM, error) {
	cfg.Mode = layers.Predict
	model, err := models.TransformerLM(cfg)
	if err != nil {
		return nil, err
	}
	lm := &LM{Model: model, Config: cfg, seed: seed}
	if err := lm.reset(); err != nil {
		return nil, err
	}
	return lm, nil
}

// reset rebuilds weights and empties the incremental caches. Equal
// seeds make this reproducible, so resetting between generations is
// cheap and safe.
func (l *LM) reset() error {
	sig := shapes.SignatureOf(shapes.New([]int{1, 1}, shapes.Int32))
	if _, _, err := l.Model.Init(sig, layers.WithSeed(l.seed)); err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	return nil
}

// Generate produces a continuation of the prompt, streaming each step
// to out. The channel is closed when generation completes. Sampling
// randomness is governed by sampleSeed.
func (l *LM) Generate(ctx context.Context, prompt []int, opts decoder.DecodingOptions, sampleSeed uint64, out chan<- decoder.StepResult) (*decoder.Result, error) {
	defer close(out)

	if err := l.reset(); err != nil {
		return nil, err
	}
	d, err := decoder.New(l.Model, opts)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("prompt_tokens", len(prompt)).Msg("generating")
	result, err := d.Decode(ctx, prompt, sampleSeed, func(step decoder.StepResult) {
		select {
		case out <- step:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Int("generated_tokens", len(result.Sequence)).Float64("score", result.Score).Msg("done")
	return result, nil
}
