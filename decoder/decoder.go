// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package decoder generates token sequences from a predict-mode
// language model, driving one incremental model call per emitted
// token.
package decoder

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/rs/zerolog/log"
	"github.com/strataml/strata/layers"
	"github.com/strataml/strata/random"
	"github.com/strataml/strata/tensor"
)

// DecodingOptions contains the options for conditional text generation.
type DecodingOptions struct {
	// MaxLen is the maximum number of tokens to generate.
	MaxLen int `json:"max_len" yaml:"max_len"`
	// MinLen is the minimum number of tokens to generate.
	MinLen int `json:"min_len" yaml:"min_len"`
	// StopSequencesIDs lists token sequences that stop generation.
	StopSequencesIDs [][]int `json:"stop_sequences_ids" yaml:"stop_sequences_ids"`
	// EndTokenID is the end-of-sequence token (default: 0).
	EndTokenID int `json:"end_token_id" yaml:"end_token_id"`
	// Temp controls the randomness of the generated text.
	Temp float64 `json:"temp" yaml:"temp"`
	// TopK is the number of candidates considered when sampling.
	TopK int `json:"top_k" yaml:"top_k"`
	// TopP is the cumulative probability bound on candidates.
	TopP float64 `json:"top_p" yaml:"top_p"`
	// UseSampling selects multinomial sampling over greedy decoding.
	UseSampling bool `json:"use_sampling" yaml:"use_sampling"`
	// BadWordsIDs lists token sequences that are not allowed to be generated.
	BadWordsIDs [][]int `json:"bad_words_ids" yaml:"bad_words_ids"`
	// EndThreshold is the minimum probability that the end token must
	// achieve to stop the generation process, regardless of other
	// higher-scored tokens. Zero disables the check.
	EndThreshold float64 `json:"end_threshold" yaml:"end_threshold"`
}

// StepResult is the outcome of a single decoding step.
type StepResult struct {
	// TokenID is the token emitted at this step.
	TokenID int
	// SumNegLogProbs is the running score up to this step.
	SumNegLogProbs float64
}

// Result is a completed generation.
type Result struct {
	// Sequence is the list of generated token ids.
	Sequence []int
	// Score is the sum of negative log probabilities of the tokens.
	Score float64
}

// Decoder drives a predict-mode model one token at a time.
type Decoder struct {
	model              layers.Layer
	applyOutputControl OutputDiversityControlFunc
	applySelection     OutputSelectionFunc
	opts               DecodingOptions
}

// New returns a decoder over a predict-mode language model.
func New(model layers.Layer, opts DecodingOptions) (*Decoder, error) {
	control, err := OutputDiversityControl(opts.Temp, opts.TopK, opts.TopP)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		model:              model,
		applyOutputControl: control,
		applySelection:     OutputSelection(opts.UseSampling),
		opts:               opts,
	}, nil
}

// Decode feeds the prompt through the model one token at a time, then
// generates until a stop condition fires. The seed makes sampling
// reproducible. onStep, if non-nil, observes every emitted token.
func (d *Decoder) Decode(ctx context.Context, prompt []int, seed uint64, onStep func(StepResult)) (*Result, error) {
	if len(prompt) == 0 {
		return nil, fmt.Errorf("invalid input: at least one prompt token is required")
	}

	logits, err := d.prefill(prompt)
	if err != nil {
		return nil, err
	}
	stream := random.NewStream(random.NewKey(seed))

	var sequence []int
	var sumNegLogProbs float64

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			scores := d.suppressBadWords(d.adjustLogits(logits, len(sequence)), sequence)
			candidates, err := d.applyOutputControl(scores)
			if err != nil {
				return nil, err
			}
			tokenID, score, err := d.applySelection(candidates, stream.Next())
			if err != nil {
				return nil, err
			}
			if p, forced := d.endTokenOverThreshold(scores); forced && tokenID != d.opts.EndTokenID {
				log.Trace().Msgf("End token probability %f over threshold (%f)", p, d.opts.EndThreshold)
				tokenID, score = d.opts.EndTokenID, p
			}
			sequence = append(sequence, tokenID)
			sumNegLogProbs += -math.Log(score)
			if onStep != nil {
				onStep(StepResult{TokenID: tokenID, SumNegLogProbs: sumNegLogProbs})
			}

			if d.checkStopConditions(sequence) {
				break Loop
			}
			logits, err = d.step(tokenID)
			if err != nil {
				return nil, err
			}
		}
	}

	return &Result{
		Sequence: d.removeEndTokenID(sequence),
		Score:    sumNegLogProbs,
	}, nil
}

// prefill consumes the prompt one token per incremental call and
// returns the logits after the last prompt token.
func (d *Decoder) prefill(prompt []int) (*tensor.Tensor, error) {
	var logits *tensor.Tensor
	for _, tokenID := range prompt {
		var err error
		logits, err = d.step(tokenID)
		if err != nil {
			return nil, err
		}
	}
	return logits, nil
}

// step runs one incremental model call and returns the vocabulary
// scores for the next position.
func (d *Decoder) step(tokenID int) (*tensor.Tensor, error) {
	in := tensor.FromInts([]int{1, 1}, []int{tokenID})
	out, err := d.model.Call([]*tensor.Tensor{in})
	if err != nil {
		return nil, fmt.Errorf("incremental model call failed: %w", err)
	}
	vocab := out[0].Dim(out[0].NDim() - 1)
	return tensor.FromSlice(out[0].Data()[:vocab]), nil
}

// adjustLogits suppresses the end token while the sequence is shorter
// than the configured minimum.
func (d *Decoder) adjustLogits(logits *tensor.Tensor, sequenceLength int) *tensor.Tensor {
	if sequenceLength >= d.opts.MinLen {
		return logits
	}
	out := logits.Clone()
	out.Data()[d.opts.EndTokenID] = math.Inf(-1)
	return out
}

// suppressBadWords filters every token that would complete a banned
// word sequence at the current position.
func (d *Decoder) suppressBadWords(logits *tensor.Tensor, sequence []int) *tensor.Tensor {
	var out *tensor.Tensor
	for _, badWord := range d.opts.BadWordsIDs {
		if len(badWord) == 0 {
			continue
		}
		if !hasSuffix(sequence, badWord[:len(badWord)-1]) {
			continue
		}
		if out == nil {
			out = logits.Clone()
		}
		out.Data()[badWord[len(badWord)-1]] = math.Inf(-1)
	}
	if out == nil {
		return logits
	}
	return out
}

// endTokenOverThreshold reports whether the end token's probability
// clears the configured threshold.
func (d *Decoder) endTokenOverThreshold(scores *tensor.Tensor) (float64, bool) {
	if d.opts.EndThreshold <= 0 {
		return 0, false
	}
	p := tensor.SoftmaxLast(scores).At(d.opts.EndTokenID)
	return p, p >= d.opts.EndThreshold
}

// removeEndTokenID strips a trailing end token, if present.
func (d *Decoder) removeEndTokenID(sequence []int) []int {
	if len(sequence) == 0 {
		return sequence
	}
	if sequence[len(sequence)-1] == d.opts.EndTokenID {
		return sequence[:len(sequence)-1]
	}
	return sequence
}

func (d *Decoder) checkStopConditions(sequence []int) bool {
	if len(sequence) >= d.opts.MaxLen {
		log.Trace().Msgf("Reached max length (%d)", d.opts.MaxLen)
		return true
	}
	last := sequence[len(sequence)-1]
	if last == d.opts.EndTokenID {
		log.Trace().Msgf("Reached end token (%d)", d.opts.EndTokenID)
		return true
	}
	if len(sequence) >= d.opts.MinLen && hasStopSequence(sequence, d.opts.StopSequencesIDs) {
		log.Trace().Msgf("Reached stop sequence (%v)", d.opts.StopSequencesIDs)
		return true
	}
	return false
}

func hasStopSequence(sequence []int, stopSequences [][]int) bool {
	for _, stopSeq := range stopSequences {
		if len(stopSeq) > 0 && hasSuffix(sequence, stopSeq) {
			return true
		}
	}
	return false
}

func hasSuffix(sequence, suffix []int) bool {
	if len(suffix) == 0 {
		return true
	}
	if len(sequence) < len(suffix) {
		return false
	}
	return reflect.DeepEqual(suffix, sequence[len(sequence)-len(suffix):])
}
