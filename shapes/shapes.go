// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shapes describes array shapes and element types without
// holding any array data. A ShapeDtype stands in for a concrete array
// during layer initialization, so that weight and state construction
// never depends on example data.
package shapes

import (
	"fmt"
	"strings"
)

// Dtype is an element-type tag.
type Dtype int

const (
	Float64 Dtype = iota
	Int32
)

func (d Dtype) String() string {
	switch d {
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// ShapeDtype is an immutable shape and element-type descriptor.
// The zero value describes a scalar of dtype Float64.
type ShapeDtype struct {
	shape []int
	dtype Dtype
}

// Of returns a Float64 descriptor with the given dimensions.
func Of(dims ...int) ShapeDtype {
	return New(dims, Float64)
}

// New returns a descriptor with the given dimensions and dtype.
// Dimensions must be non-negative.
func New(dims []int, dtype Dtype) ShapeDtype {
	for _, d := range dims {
		if d < 0 {
			panic(fmt.Sprintf("shapes: negative dimension %d in %v", d, dims))
		}
	}
	sd := ShapeDtype{shape: make([]int, len(dims)), dtype: dtype}
	copy(sd.shape, dims)
	return sd
}

// Shape returns a copy of the dimensions.
func (s ShapeDtype) Shape() []int {
	out := make([]int, len(s.shape))
	copy(out, s.shape)
	return out
}

// NDim returns the number of dimensions.
func (s ShapeDtype) NDim() int { return len(s.shape) }

// Dim returns the i-th dimension.
func (s ShapeDtype) Dim(i int) int { return s.shape[i] }

// Size returns the number of elements described.
func (s ShapeDtype) Size() int {
	n := 1
	for _, d := range s.shape {
		n *= d
	}
	return n
}

// Dtype returns the element-type tag.
func (s ShapeDtype) Dtype() Dtype { return s.dtype }

// Equal reports structural equality: same dimensions and same dtype.
func (s ShapeDtype) Equal(o ShapeDtype) bool {
	if s.dtype != o.dtype || len(s.shape) != len(o.shape) {
		return false
	}
	for i := range s.shape {
		if s.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

func (s ShapeDtype) String() string {
	dims := make([]string, len(s.shape))
	for i, d := range s.shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("ShapeDtype{(%s), %s}", strings.Join(dims, ", "), s.dtype)
}

// Signature is an ordered tuple of descriptors, one per layer input or
// output. A one-element Signature describes a single-array boundary.
type Signature []ShapeDtype

// SignatureOf builds a Signature from descriptors.
func SignatureOf(sds ...ShapeDtype) Signature {
	sig := make(Signature, len(sds))
	copy(sig, sds)
	return sig
}

// Equal reports element-wise structural equality.
func (sig Signature) Equal(o Signature) bool {
	if len(sig) != len(o) {
		return false
	}
	for i := range sig {
		if !sig[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

func (sig Signature) String() string {
	if len(sig) == 1 {
		return sig[0].String()
	}
	parts := make([]string, len(sig))
	for i, sd := range sig {
		parts[i] = sd.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
