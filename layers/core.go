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

// Mode selects a layer's execution regime. Train and Eval recompute
// the full sequence on every call; Predict consumes one new step per
// call using cached state and must match full recomputation.
type Mode string

const (
	Train   Mode = "train"
	Eval    Mode = "eval"
	Predict Mode = "predict"
)

// Dense is a fully connected projection y = xW + b over the last axis.
type Dense struct {
	Module
	units int
}

// NewDense returns a projection onto the given number of units.
func NewDense(units int) *Dense {
	d := &Dense{units: units}
	d.Module = New(d, WithName("Dense"))
	return d
}

func (d *Dense) NewWeights(sig shapes.Signature) (Weights, error) {
	if len(sig) != 1 || sig[0].NDim() < 1 {
		return nil, fmt.Errorf("dense needs one input of rank >= 1, got %s", sig)
	}
	dIn := sig[0].Dim(sig[0].NDim() - 1)
	key, err := d.NewRNG()
	if err != nil {
		return nil, err
	}
	w := random.Normal(key, []int{dIn, d.units}, 1/math.Sqrt(float64(dIn)))
	b := tensor.Zeros(d.units)
	return Weights{w, b}, nil
}

func (d *Dense) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	out := tensor.Add(tensor.MatMul(in[0], w[0]), w[1])
	return []*tensor.Tensor{out}, nil
}

// Relu applies max(0, x) elementwise.
type Relu struct {
	Module
}

// NewRelu returns a Relu activation layer.
func NewRelu() *Relu {
	r := &Relu{}
	r.Module = New(r, WithName("Relu"))
	return r
}

func (r *Relu) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	out := in[0].Clone()
	data := out.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return []*tensor.Tensor{out}, nil
}

// LogSoftmax applies log-softmax along the last axis.
type LogSoftmax struct {
	Module
}

// NewLogSoftmax returns a log-softmax layer.
func NewLogSoftmax() *LogSoftmax {
	l := &LogSoftmax{}
	l.Module = New(l, WithName("LogSoftmax"))
	return l
}

func (l *LogSoftmax) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{tensor.LogSoftmaxLast(in[0])}, nil
}

// LayerNorm normalizes the last axis and applies a learned gain and
// bias.
type LayerNorm struct {
	Module
	eps float64
}

// NewLayerNorm returns a layer-normalization layer with epsilon 1e-6.
func NewLayerNorm() *LayerNorm {
	l := &LayerNorm{eps: 1e-6}
	l.Module = New(l, WithName("LayerNorm"))
	return l
}

func (l *LayerNorm) NewWeights(sig shapes.Signature) (Weights, error) {
	if len(sig) != 1 || sig[0].NDim() < 1 {
		return nil, fmt.Errorf("layernorm needs one input of rank >= 1, got %s", sig)
	}
	d := sig[0].Dim(sig[0].NDim() - 1)
	gain := tensor.Zeros(d)
	for i := range gain.Data() {
		gain.Data()[i] = 1
	}
	bias := tensor.Zeros(d)
	return Weights{gain, bias}, nil
}

func (l *LayerNorm) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	x := in[0]
	d := x.Dim(x.NDim() - 1)
	out := x.Clone()
	data := out.Data()
	gain, bias := w[0].Data(), w[1].Data()
	for off := 0; off < len(data); off += d {
		row := data[off : off+d]
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(d)
		var variance float64
		for _, v := range row {
			dv := v - mean
			variance += dv * dv
		}
		variance /= float64(d)
		inv := 1 / math.Sqrt(variance+l.eps)
		for i, v := range row {
			row[i] = (v-mean)*inv*gain[i] + bias[i]
		}
	}
	return []*tensor.Tensor{out}, nil
}

// Embedding maps token ids to dense vectors via a learned table.
type Embedding struct {
	Module
	vocabSize int
	dModel    int
}

// NewEmbedding returns an embedding table of the given vocabulary size
// and model dimension.
func NewEmbedding(vocabSize, dModel int) *Embedding {
	e := &Embedding{vocabSize: vocabSize, dModel: dModel}
	e.Module = New(e, WithName("Embedding"))
	return e
}

func (e *Embedding) NewWeights(sig shapes.Signature) (Weights, error) {
	key, err := e.NewRNG()
	if err != nil {
		return nil, err
	}
	table := random.Normal(key, []int{e.vocabSize, e.dModel}, 1/math.Sqrt(float64(e.dModel)))
	return Weights{table}, nil
}

func (e *Embedding) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	ids := in[0]
	table := w[0].Data()
	dims := append(ids.Shape(), e.dModel)
	out := tensor.New(dims, shapes.Float64)
	data := out.Data()
	for i := 0; i < ids.Size(); i++ {
		id := ids.Int(i)
		if id < 0 || id >= e.vocabSize {
			return nil, fmt.Errorf("token id %d out of range [0, %d)", id, e.vocabSize)
		}
		copy(data[i*e.dModel:(i+1)*e.dModel], table[id*e.dModel:(id+1)*e.dModel])
	}
	return []*tensor.Tensor{out}, nil
}

// Dropout zeroes elements with the given rate in Train mode and
// rescales the survivors; in Eval and Predict modes it is the
// identity. It draws its mask from the per-call key.
type Dropout struct {
	Module
	rate float64
	mode Mode
}

// NewDropout returns a dropout layer.
func NewDropout(rate float64, mode Mode) *Dropout {
	d := &Dropout{rate: rate, mode: mode}
	d.Module = New(d, WithName("Dropout"))
	return d
}

func (d *Dropout) ForwardWithState(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error) {
	if d.mode != Train || d.rate <= 0 {
		return in, s, nil
	}
	x := in[0]
	mask := random.Uniform(rng, x.Shape(), 0, 1)
	out := x.Clone()
	data, m := out.Data(), mask.Data()
	keep := 1 - d.rate
	for i := range data {
		if m[i] < d.rate {
			data[i] = 0
		} else {
			data[i] /= keep
		}
	}
	return []*tensor.Tensor{out}, s, nil
}

// ShiftRight shifts a token sequence one step right along the time
// axis, padding with zero. In Predict mode it is the identity: the
// caller already feeds the previously emitted token.
type ShiftRight struct {
	Module
	mode Mode
}

// NewShiftRight returns a shift-right layer.
func NewShiftRight(mode Mode) *ShiftRight {
	l := &ShiftRight{mode: mode}
	l.Module = New(l, WithName("ShiftRight"))
	return l
}

func (l *ShiftRight) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	if l.mode == Predict {
		return in, nil
	}
	x := in[0]
	if x.NDim() < 2 {
		return nil, fmt.Errorf("shift-right needs a [batch, length] input, got rank %d", x.NDim())
	}
	batch, length := x.Dim(0), x.Dim(1)
	inner := x.Size() / (batch * length)
	out := tensor.New(x.Shape(), x.Dtype())
	src, dst := x.Data(), out.Data()
	for b := 0; b < batch; b++ {
		off := b * length * inner
		copy(dst[off+inner:off+length*inner], src[off:off+(length-1)*inner])
	}
	return []*tensor.Tensor{out}, nil
}
