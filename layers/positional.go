// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"fmt"
	"math"

	"github.com/strataml/strata/random"
	"github.com/strataml/strata/shapes"
	"github.com/strataml/strata/tensor"
)

// PositionalEncoding adds fixed sinusoidal position vectors to a
// [batch, length, d_model] input. In Predict mode it carries the
// current position as state, so that successive single-step calls see
// the same encodings as one full-sequence call.
type PositionalEncoding struct {
	Module
	maxLen int
	mode   Mode
}

// NewPositionalEncoding returns a sinusoidal positional encoding layer
// supporting sequences up to maxLen.
func NewPositionalEncoding(maxLen int, mode Mode) *PositionalEncoding {
	p := &PositionalEncoding{maxLen: maxLen, mode: mode}
	p.Module = New(p, WithName("PositionalEncoding"))
	return p
}

// NewWeightsAndState builds the sinusoid table from the signature's
// model dimension. Predict mode additionally derives a position
// counter as state.
func (p *PositionalEncoding) NewWeightsAndState(sig shapes.Signature) (Weights, State, error) {
	if len(sig) != 1 || sig[0].NDim() < 1 {
		return nil, nil, fmt.Errorf("positional encoding needs one input of rank >= 1, got %s", sig)
	}
	d := sig[0].Dim(sig[0].NDim() - 1)
	table := tensor.Zeros(p.maxLen, d)
	data := table.Data()
	for pos := 0; pos < p.maxLen; pos++ {
		for i := 0; i < d; i++ {
			angle := float64(pos) / math.Pow(10000, float64(2*(i/2))/float64(d))
			if i%2 == 0 {
				data[pos*d+i] = math.Sin(angle)
			} else {
				data[pos*d+i] = math.Cos(angle)
			}
		}
	}
	if p.mode == Predict {
		return Weights{table}, State{tensor.Scalar(0)}, nil
	}
	return Weights{table}, EmptyState, nil
}

func (p *PositionalEncoding) ForwardWithState(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error) {
	x := in[0]
	d := x.Dim(x.NDim() - 1)
	length := x.Dim(x.NDim() - 2)

	start := 0
	if p.mode == Predict {
		if len(s) != 1 {
			return nil, nil, fmt.Errorf("predict mode needs a position counter state, got %d entries", len(s))
		}
		start = int(s[0].At(0))
	}
	if start+length > p.maxLen {
		return nil, nil, fmt.Errorf("position %d exceeds maximum length %d", start+length, p.maxLen)
	}

	table := w[0].Data()
	out := x.Clone()
	data := out.Data()
	rows := x.Size() / (length * d)
	for r := 0; r < rows; r++ {
		for pos := 0; pos < length; pos++ {
			off := (r*length + pos) * d
			pe := table[(start+pos)*d : (start+pos+1)*d]
			for i := 0; i < d; i++ {
				data[off+i] += pe[i]
			}
		}
	}
	if p.mode == Predict {
		return []*tensor.Tensor{out}, State{tensor.Scalar(float64(start + length))}, nil
	}
	return []*tensor.Tensor{out}, s, nil
}
