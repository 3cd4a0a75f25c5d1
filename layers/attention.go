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

// CausalAttention is multi-head self-attention with a causal mask. In
// Predict mode it carries the accumulated keys and values as state and
// consumes one new step per call; the incremental outputs match full
// recomputation position by position.
type CausalAttention struct {
	Module
	nHeads int
	mode   Mode
	masked bool
}

// NewCausalAttention returns a causal self-attention layer with the
// given number of heads.
func NewCausalAttention(nHeads int, mode Mode) *CausalAttention {
	a := &CausalAttention{nHeads: nHeads, mode: mode, masked: true}
	a.Module = New(a, WithName("CausalAttention"))
	return a
}

// NewSelfAttention returns an unmasked self-attention layer, as used
// in encoder stacks.
func NewSelfAttention(nHeads int) *CausalAttention {
	a := &CausalAttention{nHeads: nHeads, mode: Eval, masked: false}
	a.Module = New(a, WithName("SelfAttention"))
	return a
}

// NewWeightsAndState derives the four projection matrices from the
// model dimension. Predict mode starts with zero-length key and value
// caches shaped from the signature's batch dimension.
func (a *CausalAttention) NewWeightsAndState(sig shapes.Signature) (Weights, State, error) {
	if len(sig) != 1 || sig[0].NDim() != 3 {
		return nil, nil, fmt.Errorf("causal attention needs one [batch, length, d_model] input, got %s", sig)
	}
	d := sig[0].Dim(2)
	if d%a.nHeads != 0 {
		return nil, nil, fmt.Errorf("d_model %d is not divisible by %d heads", d, a.nHeads)
	}
	keys, err := a.NewRNGs(4)
	if err != nil {
		return nil, nil, err
	}
	scale := 1 / math.Sqrt(float64(d))
	w := Weights{
		random.Normal(keys[0], []int{d, d}, scale),
		random.Normal(keys[1], []int{d, d}, scale),
		random.Normal(keys[2], []int{d, d}, scale),
		random.Normal(keys[3], []int{d, d}, scale),
	}
	if a.mode == Predict {
		batch := sig[0].Dim(0)
		return w, State{tensor.Zeros(batch, 0, d), tensor.Zeros(batch, 0, d)}, nil
	}
	return w, EmptyState, nil
}

func (a *CausalAttention) ForwardWithState(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error) {
	x := in[0]
	q := tensor.MatMul(x, w[0])
	k := tensor.MatMul(x, w[1])
	v := tensor.MatMul(x, w[2])

	newState := s
	if a.mode == Predict {
		if len(s) != 2 {
			return nil, nil, fmt.Errorf("predict mode needs key/value cache state, got %d entries", len(s))
		}
		k = tensor.Concat(1, s[0], k)
		v = tensor.Concat(1, s[1], v)
		newState = State{k, v}
	}

	ctx := attend(q, k, v, a.nHeads, a.masked)
	out := tensor.MatMul(ctx, w[3])
	return []*tensor.Tensor{out}, newState, nil
}

// CrossAttention attends from a decoder activation to an encoder
// activation: queries come from the first input, keys and values from
// the second.
type CrossAttention struct {
	Module
	nHeads int
}

// NewCrossAttention returns an encoder-decoder attention layer.
func NewCrossAttention(nHeads int) *CrossAttention {
	a := &CrossAttention{nHeads: nHeads}
	a.Module = New(a, WithName("CrossAttention"), WithNIn(2))
	return a
}

func (a *CrossAttention) NewWeights(sig shapes.Signature) (Weights, error) {
	if len(sig) != 2 || sig[0].NDim() != 3 || sig[1].NDim() != 3 {
		return nil, fmt.Errorf("cross attention needs [batch, length, d] query and memory inputs, got %s", sig)
	}
	d := sig[0].Dim(2)
	dMem := sig[1].Dim(2)
	if d%a.nHeads != 0 {
		return nil, fmt.Errorf("d_model %d is not divisible by %d heads", d, a.nHeads)
	}
	keys, err := a.NewRNGs(4)
	if err != nil {
		return nil, err
	}
	scale := 1 / math.Sqrt(float64(d))
	return Weights{
		random.Normal(keys[0], []int{d, d}, scale),
		random.Normal(keys[1], []int{dMem, d}, scale),
		random.Normal(keys[2], []int{dMem, d}, scale),
		random.Normal(keys[3], []int{d, d}, scale),
	}, nil
}

func (a *CrossAttention) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	x, mem := in[0], in[1]
	q := tensor.MatMul(x, w[0])
	k := tensor.MatMul(mem, w[1])
	v := tensor.MatMul(mem, w[2])
	ctx := attend(q, k, v, a.nHeads, false)
	return []*tensor.Tensor{tensor.MatMul(ctx, w[3])}, nil
}

// attend computes scaled dot-product attention over q [B, Sq, D],
// k, v [B, Sk, D] with the given head count. With causal set, query
// position i may attend key positions j <= i + (Sk - Sq), which makes
// cached incremental decoding line up with full recomputation.
func attend(q, k, v *tensor.Tensor, nHeads int, causal bool) *tensor.Tensor {
	d := q.Dim(2)
	dHead := d / nHeads
	sq, sk := q.Dim(1), k.Dim(1)

	qh := splitHeads(q, nHeads)
	kh := splitHeads(k, nHeads)
	vh := splitHeads(v, nHeads)

	scores := tensor.Scale(tensor.MatMul(qh, tensor.Transpose(kh)), 1/math.Sqrt(float64(dHead)))
	if causal {
		offset := sk - sq
		data := scores.Data()
		rows := scores.Size() / (sq * sk)
		for r := 0; r < rows; r++ {
			for i := 0; i < sq; i++ {
				for j := i + offset + 1; j < sk; j++ {
					data[(r*sq+i)*sk+j] = math.Inf(-1)
				}
			}
		}
	}
	probs := tensor.SoftmaxLast(scores)
	ctx := tensor.MatMul(probs, vh)
	return joinHeads(ctx, nHeads)
}

// splitHeads reshapes [B, S, D] to [B*H, S, D/H].
func splitHeads(t *tensor.Tensor, h int) *tensor.Tensor {
	b, s, d := t.Dim(0), t.Dim(1), t.Dim(2)
	dh := d / h
	out := tensor.Zeros(b*h, s, dh)
	src, dst := t.Data(), out.Data()
	for bi := 0; bi < b; bi++ {
		for hi := 0; hi < h; hi++ {
			for si := 0; si < s; si++ {
				from := (bi*s+si)*d + hi*dh
				to := ((bi*h+hi)*s + si) * dh
				copy(dst[to:to+dh], src[from:from+dh])
			}
		}
	}
	return out
}

// joinHeads reshapes [B*H, S, D/H] back to [B, S, D].
func joinHeads(t *tensor.Tensor, h int) *tensor.Tensor {
	bh, s, dh := t.Dim(0), t.Dim(1), t.Dim(2)
	b := bh / h
	d := dh * h
	out := tensor.Zeros(b, s, d)
	src, dst := t.Data(), out.Data()
	for bi := 0; bi < b; bi++ {
		for hi := 0; hi < h; hi++ {
			for si := 0; si < s; si++ {
				from := ((bi*h+hi)*s + si) * dh
				to := (bi*s+si)*d + hi*dh
				copy(dst[to:to+dh], src[from:from+dh])
			}
		}
	}
	return out
}
