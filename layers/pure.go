// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"fmt"
	"reflect"

	"github.com/strataml/strata/tensor"
)

// Pure wraps a stateless, weightless transformation into the layer
// contract: weights and state are always the empty sentinels and the
// forward computation delegates to f.
type Pure struct {
	Module
	f func(in []*tensor.Tensor) []*tensor.Tensor
}

// NewPure wraps f. Arity defaults to 1-in/1-out unless overridden.
func NewPure(f func(in []*tensor.Tensor) []*tensor.Tensor, opts ...Option) *Pure {
	p := &Pure{f: f}
	p.Module = New(p, opts...)
	return p
}

func (p *Pure) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	return p.f(in), nil
}

var tensorType = reflect.TypeOf((*tensor.Tensor)(nil))

// FnLayer is a layer built from an arbitrary function by Fn.
type FnLayer struct {
	Module
	fv reflect.Value
}

// FnOption configures Fn.
type FnOption func(*fnConfig)

type fnConfig struct {
	nOut    int
	haveOut bool
}

// FnWithNOut asserts the expected output arity; Fn fails if the
// function's result count disagrees.
func FnWithNOut(n int) FnOption {
	return func(c *fnConfig) {
		c.nOut = n
		c.haveOut = true
	}
}

// Fn builds a layer from a plain function over tensors, inferring both
// arities from the function's type. Only fixed, required positional
// parameters of type *tensor.Tensor are permitted: variadic parameters
// ("variable args") and map-typed parameters ("keyword args") are
// rejected, since the layer contract must know the exact arity
// statically. The produced layer has no weights and no state.
func Fn(name string, f any, opts ...FnOption) (*FnLayer, error) {
	cfg := fnConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	t := reflect.TypeOf(f)
	if t == nil || t.Kind() != reflect.Func {
		return nil, fmt.Errorf("layer %q: Fn requires a function, got %T", name, f)
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("layer %q: function with variable args cannot be converted to a layer", name)
	}
	for i := 0; i < t.NumIn(); i++ {
		if t.In(i).Kind() == reflect.Map {
			return nil, fmt.Errorf("layer %q: function with keyword args (map parameter %d) cannot be converted to a layer", name, i)
		}
		if t.In(i) != tensorType {
			return nil, fmt.Errorf("layer %q: parameter %d must be *tensor.Tensor, got %s", name, i, t.In(i))
		}
	}
	if t.NumOut() == 0 {
		return nil, fmt.Errorf("layer %q: function must return at least one tensor", name)
	}
	for i := 0; i < t.NumOut(); i++ {
		if t.Out(i) != tensorType {
			return nil, fmt.Errorf("layer %q: result %d must be *tensor.Tensor, got %s", name, i, t.Out(i))
		}
	}
	if cfg.haveOut && cfg.nOut != t.NumOut() {
		return nil, fmt.Errorf("layer %q: function returns %d results, expected %d", name, t.NumOut(), cfg.nOut)
	}
	if name == "" {
		name = "Fn"
	}
	l := &FnLayer{fv: reflect.ValueOf(f)}
	l.Module = New(l, WithName(name), WithNIn(t.NumIn()), WithNOut(t.NumOut()))
	return l, nil
}

// MustFn is Fn that panics on a construction error, for wiring static
// model definitions.
func MustFn(name string, f any, opts ...FnOption) *FnLayer {
	l, err := Fn(name, f, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Forward unpacks the layer's inputs as positional arguments and
// returns the function's results unchanged.
func (l *FnLayer) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	if len(in) != l.NIn() {
		return nil, fmt.Errorf("got %d inputs, want %d", len(in), l.NIn())
	}
	args := make([]reflect.Value, len(in))
	for i, t := range in {
		args[i] = reflect.ValueOf(t)
	}
	results := l.fv.Call(args)
	out := make([]*tensor.Tensor, len(results))
	for i, r := range results {
		out[i] = r.Interface().(*tensor.Tensor)
	}
	return out, nil
}
