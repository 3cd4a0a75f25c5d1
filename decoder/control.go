// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"
	"math"
	"sort"

	"github.com/strataml/strata/tensor"
)

// OutputDiversityControlFunc performs the pre-processing steps used to
// narrow down the candidate tokens before greedy decoding or sampling
// selects the final output.
type OutputDiversityControlFunc func(logits *tensor.Tensor) (*tensor.Tensor, error)

// OutputDiversityControl composes temperature, top-k and top-p
// filtering into one control function.
func OutputDiversityControl(temp float64, topK int, topP float64) (OutputDiversityControlFunc, error) {
	if temp < 0 || temp > 1 {
		return nil, fmt.Errorf("invalid temperature value: %f. Must be between 0 and 1", temp)
	}
	if topK < 0 {
		return nil, fmt.Errorf("invalid topK value: %d. Must be >= 0", topK)
	}
	if topP < 0 || topP > 1 {
		return nil, fmt.Errorf("invalid topP value: %f. Must be between 0 and 1", topP)
	}

	steps := make([]OutputDiversityControlFunc, 0, 3)
	if temp != 1 {
		steps = append(steps, TemperatureFunc(temp))
	}
	if topK != 0 {
		steps = append(steps, TopKFunc(topK, math.Inf(-1)))
	}
	if topP != 1 {
		steps = append(steps, TopPFunc(topP, math.Inf(-1)))
	}

	return func(logits *tensor.Tensor) (*tensor.Tensor, error) {
		var err error
		for _, step := range steps {
			logits, err = step(logits)
			if err != nil {
				return nil, err
			}
		}
		return logits, nil
	}, nil
}

// TemperatureFunc rescales a vector of scores by 1/temperature.
func TemperatureFunc(temperature float64) OutputDiversityControlFunc {
	if temperature == 0 {
		temperature = 0.01 // avoid division by zero
	}
	inv := 1 / temperature
	return func(scores *tensor.Tensor) (*tensor.Tensor, error) {
		return tensor.Scale(scores, inv), nil
	}
}

// TopKFunc keeps the k highest scores and filters the rest.
func TopKFunc(topK int, filterValue float64) OutputDiversityControlFunc {
	return func(scores *tensor.Tensor) (*tensor.Tensor, error) {
		k := topK
		if size := scores.Size(); size < k {
			k = size
		}
		sorted := append([]float64(nil), scores.Data()...)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		minScore := sorted[k-1]

		out := scores.Clone()
		data := out.Data()
		for i, v := range data {
			if v < minScore {
				data[i] = filterValue
			}
		}
		return out, nil
	}
}

// TopPFunc keeps the smallest set of scores whose cumulative softmax
// probability exceeds topP and filters the rest. The highest score is
// always kept.
func TopPFunc(topP, filterValue float64) OutputDiversityControlFunc {
	return func(scores *tensor.Tensor) (*tensor.Tensor, error) {
		n := scores.Size()
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		data := scores.Data()
		sort.SliceStable(indices, func(a, b int) bool {
			return data[indices[a]] > data[indices[b]]
		})

		sortedScores := make([]float64, n)
		for i, idx := range indices {
			sortedScores[i] = data[idx]
		}
		probs := tensor.SoftmaxLast(tensor.FromSlice(sortedScores)).Data()

		out := scores.Clone()
		var cum float64
		for i, p := range probs {
			cum += p
			// Shift by one position so the first token above the
			// threshold survives too.
			if cum-p > topP && i > 0 {
				out.Data()[indices[i]] = filterValue
			}
		}
		return out, nil
	}
}
