// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"fmt"

	"github.com/strataml/strata/random"
	"github.com/strataml/strata/shapes"
	"github.com/strataml/strata/tensor"
)

// Serial is the ordered composition of layers: each sublayer's outputs
// feed the next sublayer's inputs. A Serial is itself a Layer; its
// sublayers own their weights and state independently, and Init
// threads the output signature of each sublayer into the next.
type Serial struct {
	Module
	sublayers []Layer
}

// NewSerial composes the given layers in order. The composite's arity
// is the first sublayer's input arity and the last sublayer's output
// arity; an empty composition is the identity.
func NewSerial(sublayers ...Layer) *Serial {
	nIn, nOut := 1, 1
	if len(sublayers) > 0 {
		nIn = sublayers[0].NIn()
		nOut = sublayers[len(sublayers)-1].NOut()
	}
	s := &Serial{sublayers: sublayers}
	s.Module = New(s, WithName("Serial"), WithNIn(nIn), WithNOut(nOut))
	return s
}

// Sublayers returns the composed layers in order.
func (s *Serial) Sublayers() []Layer { return s.sublayers }

// NewWeightsAndState initializes every sublayer in sequence, threading
// each output signature into the next input signature and deriving one
// sub-key per sublayer from the composite's stream. The composite
// itself carries the empty sentinels: its sublayers own their
// containers.
func (s *Serial) NewWeightsAndState(sig shapes.Signature) (Weights, State, error) {
	keys, err := s.NewRNGs(len(s.sublayers))
	if err != nil {
		return nil, nil, err
	}
	cur := sig
	for i, l := range s.sublayers {
		if l.NIn() != len(cur) {
			return nil, nil, fmt.Errorf("sublayer %s expects %d inputs, composition provides %d", l, l.NIn(), len(cur))
		}
		if _, _, err := l.Init(cur, WithInitKey(keys[i])); err != nil {
			return nil, nil, err
		}
		cur, err = l.OutputSignature(cur)
		if err != nil {
			return nil, nil, err
		}
	}
	return EmptyWeights, EmptyState, nil
}

// ForwardWithState runs the sublayers in order, each on its own bound
// weights and state, splitting the call's key one way per sublayer.
func (s *Serial) ForwardWithState(in []*tensor.Tensor, w Weights, st State, rng random.Key) ([]*tensor.Tensor, State, error) {
	keys := rng.Split(len(s.sublayers))
	cur := in
	var err error
	for i, l := range s.sublayers {
		cur, err = l.Call(cur, WithRNG(keys[i]))
		if err != nil {
			return nil, nil, err
		}
	}
	return cur, st, nil
}

// OutputSignature threads the sublayers' output signatures without
// touching any bound weights.
func (s *Serial) OutputSignature(sig shapes.Signature) (shapes.Signature, error) {
	cur := sig
	var err error
	for _, l := range s.sublayers {
		cur, err = l.OutputSignature(cur)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// Residual computes x + f(x) where f is the serial composition of the
// given layers, which must preserve the input shape.
type Residual struct {
	Module
	inner *Serial
}

// NewResidual wraps the given layers in a residual connection.
func NewResidual(sublayers ...Layer) *Residual {
	r := &Residual{inner: NewSerial(sublayers...)}
	r.Module = New(r, WithName("Residual"))
	return r
}

func (r *Residual) NewWeightsAndState(sig shapes.Signature) (Weights, State, error) {
	key, err := r.NewRNG()
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := r.inner.Init(sig, WithInitKey(key)); err != nil {
		return nil, nil, err
	}
	return EmptyWeights, EmptyState, nil
}

func (r *Residual) ForwardWithState(in []*tensor.Tensor, w Weights, st State, rng random.Key) ([]*tensor.Tensor, State, error) {
	out, err := r.inner.Call(in, WithRNG(rng))
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 1 || len(in) != 1 {
		return nil, nil, fmt.Errorf("residual connection needs 1-in/1-out, got %d-in/%d-out", len(in), len(out))
	}
	return []*tensor.Tensor{tensor.Add(in[0], out[0])}, st, nil
}

func (r *Residual) OutputSignature(sig shapes.Signature) (shapes.Signature, error) {
	return r.inner.OutputSignature(sig)
}
