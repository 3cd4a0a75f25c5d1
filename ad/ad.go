// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ad implements reverse-mode automatic differentiation over
// tensors. Computations are expressed as graphs of Nodes; Grad
// transforms a scalar-valued function into its gradient function.
//
// A layer participates in a graph through Apply. When the layer
// declares HasBackward, its own Backward rule is used verbatim in
// place of differentiation through its forward computation.
package ad

import (
	"fmt"

	"github.com/strataml/strata/layers"
	"github.com/strataml/strata/random"
	"github.com/strataml/strata/tensor"
)

// Node is one value in a differentiation graph.
type Node struct {
	value    *tensor.Tensor
	grad     *tensor.Tensor
	parents  []*Node
	backward func(grad *tensor.Tensor)
}

// Var introduces a differentiable leaf holding t.
func Var(t *tensor.Tensor) *Node {
	return &Node{value: t}
}

// Const introduces a leaf whose gradient is not tracked.
func Const(t *tensor.Tensor) *Node {
	return &Node{value: t}
}

// Value returns the node's tensor.
func (n *Node) Value() *tensor.Tensor { return n.value }

// Grad returns the accumulated gradient after a backward pass, or nil.
func (n *Node) Grad() *tensor.Tensor { return n.grad }

func (n *Node) accumulate(g *tensor.Tensor) {
	if n.grad == nil {
		n.grad = g.Clone()
		return
	}
	n.grad = tensor.Add(n.grad, g)
}

// Add returns a + b. Shapes must match.
func Add(a, b *Node) *Node {
	out := &Node{value: tensor.Add(a.value, b.value), parents: []*Node{a, b}}
	out.backward = func(g *tensor.Tensor) {
		a.accumulate(g)
		b.accumulate(g)
	}
	return out
}

// Sub returns a - b.
func Sub(a, b *Node) *Node {
	out := &Node{value: tensor.Sub(a.value, b.value), parents: []*Node{a, b}}
	out.backward = func(g *tensor.Tensor) {
		a.accumulate(g)
		b.accumulate(tensor.Scale(g, -1))
	}
	return out
}

// Mul returns the elementwise product a * b.
func Mul(a, b *Node) *Node {
	out := &Node{value: tensor.Mul(a.value, b.value), parents: []*Node{a, b}}
	out.backward = func(g *tensor.Tensor) {
		a.accumulate(tensor.Mul(g, b.value))
		b.accumulate(tensor.Mul(g, a.value))
	}
	return out
}

// Scale returns a * s for a scalar constant s.
func Scale(a *Node, s float64) *Node {
	out := &Node{value: tensor.Scale(a.value, s), parents: []*Node{a}}
	out.backward = func(g *tensor.Tensor) {
		a.accumulate(tensor.Scale(g, s))
	}
	return out
}

// MatMul returns the matrix product of two 2-D nodes.
func MatMul(a, b *Node) *Node {
	out := &Node{value: tensor.MatMul(a.value, b.value), parents: []*Node{a, b}}
	out.backward = func(g *tensor.Tensor) {
		a.accumulate(tensor.MatMul(g, tensor.Transpose(b.value)))
		b.accumulate(tensor.MatMul(tensor.Transpose(a.value), g))
	}
	return out
}

// Sum reduces a to the scalar sum of its elements.
func Sum(a *Node) *Node {
	out := &Node{value: tensor.Scalar(tensor.Sum(a.value)), parents: []*Node{a}}
	out.backward = func(g *tensor.Tensor) {
		s := g.At(0)
		full := tensor.New(a.value.Shape(), a.value.Dtype())
		data := full.Data()
		for i := range data {
			data[i] = s
		}
		a.accumulate(full)
	}
	return out
}

// Mean reduces a to the scalar mean of its elements.
func Mean(a *Node) *Node {
	n := float64(a.value.Size())
	out := &Node{value: tensor.Scalar(tensor.Mean(a.value)), parents: []*Node{a}}
	out.backward = func(g *tensor.Tensor) {
		s := g.At(0) / n
		full := tensor.New(a.value.Shape(), a.value.Dtype())
		data := full.Data()
		for i := range data {
			data[i] = s
		}
		a.accumulate(full)
	}
	return out
}

// Apply runs a 1-in/1-out layer inside a differentiation graph, using
// the layer's bound weights and state. During the backward pass the
// layer's custom Backward rule is consulted: a layer without one
// cannot be differentiated through and fails the gradient computation.
func Apply(l layers.Layer, x *Node) *Node {
	w := l.Weights()
	if w == nil {
		w = layers.EmptyWeights
	}
	s := l.State()
	if s == nil {
		s = layers.EmptyState
	}
	rng := random.NewKey(random.DefaultSeed)

	in := []*tensor.Tensor{x.value}
	outs, newState, err := l.ForwardWithState(in, w, s, rng)
	if err != nil {
		panic(&gradError{fmt.Errorf("layer %s forward: %w", l.Name(), err)})
	}
	if len(outs) != 1 {
		panic(&gradError{fmt.Errorf("layer %s: Apply needs 1 output, got %d", l.Name(), len(outs))})
	}

	out := &Node{value: outs[0], parents: []*Node{x}}
	out.backward = func(g *tensor.Tensor) {
		if !l.HasBackward() {
			panic(&gradError{fmt.Errorf("layer %s defines no backward rule", l.Name())})
		}
		inGrad, _, err := l.Backward(in, outs, []*tensor.Tensor{g}, w, s, newState, rng)
		if err != nil {
			panic(&gradError{fmt.Errorf("layer %s backward: %w", l.Name(), err)})
		}
		if len(inGrad) != 1 {
			panic(&gradError{fmt.Errorf("layer %s backward returned %d input gradients, want 1", l.Name(), len(inGrad))})
		}
		x.accumulate(inGrad[0])
	}
	return out
}

type gradError struct{ err error }

func (e *gradError) Error() string { return e.err.Error() }

// Grad transforms a scalar-valued function of one tensor into the
// function computing its gradient with respect to that tensor.
func Grad(f func(*Node) *Node) func(*tensor.Tensor) (*tensor.Tensor, error) {
	return func(x *tensor.Tensor) (out *tensor.Tensor, err error) {
		defer func() {
			if r := recover(); r != nil {
				if ge, ok := r.(*gradError); ok {
					err = ge.err
					return
				}
				panic(r)
			}
		}()
		leaf := Var(x)
		y := f(leaf)
		if y.value.Size() != 1 {
			return nil, fmt.Errorf("ad: Grad needs a scalar-valued function, got shape %v", y.value.Shape())
		}
		backprop(y)
		if leaf.grad == nil {
			return tensor.New(x.Shape(), x.Dtype()), nil
		}
		return leaf.grad, nil
	}
}

// backprop seeds the output gradient with one and walks the graph in
// reverse topological order.
func backprop(y *Node) {
	order := make([]*Node, 0, 16)
	seen := make(map[*Node]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, p := range n.parents {
			visit(p)
		}
		order = append(order, n)
	}
	visit(y)

	y.grad = tensor.Scalar(1)
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		if n.backward != nil && n.grad != nil {
			n.backward(n.grad)
		}
	}
}
