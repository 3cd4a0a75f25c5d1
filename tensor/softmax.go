// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tensor

import (
	"math"

	"github.com/strataml/strata/shapes"
)

// SoftmaxLast applies a numerically stable softmax along the last axis.
func SoftmaxLast(t *Tensor) *Tensor {
	n := t.shape[len(t.shape)-1]
	out := New(t.shape, shapes.Float64)
	for off := 0; off < len(t.data); off += n {
		row := t.data[off : off+n]
		max := math.Inf(-1)
		for _, v := range row {
			if v > max {
				max = v
			}
		}
		var sum float64
		dst := out.data[off : off+n]
		for i, v := range row {
			dst[i] = math.Exp(v - max)
			sum += dst[i]
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
	return out
}

// LogSoftmaxLast applies log-softmax along the last axis.
func LogSoftmaxLast(t *Tensor) *Tensor {
	n := t.shape[len(t.shape)-1]
	out := New(t.shape, shapes.Float64)
	for off := 0; off < len(t.data); off += n {
		row := t.data[off : off+n]
		max := math.Inf(-1)
		for _, v := range row {
			if v > max {
				max = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(v - max)
		}
		logSum := max + math.Log(sum)
		dst := out.data[off : off+n]
		for i, v := range row {
			dst[i] = v - logSum
		}
	}
	return out
}
