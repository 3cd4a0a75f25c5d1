// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/rs/zerolog/log"
	"github.com/strataml/strata/random"
	"github.com/strataml/strata/tensor"
)

// OutputSelectionFunc picks the next token from filtered scores,
// returning its id and probability. The key makes sampling
// reproducible per decoding stream.
type OutputSelectionFunc func(scores *tensor.Tensor, key random.Key) (int, float64, error)

// OutputSelection returns greedy decoding or multinomial sampling.
func OutputSelection(sampling bool) OutputSelectionFunc {
	if sampling {
		log.Trace().Msg("using multinomial sampling")
		return MultinomialSampling()
	}
	log.Trace().Msg("using greedy decoding")
	return GreedyDecoding()
}

// GreedyDecoding always picks the highest-probability token.
func GreedyDecoding() OutputSelectionFunc {
	return func(scores *tensor.Tensor, _ random.Key) (int, float64, error) {
		probs := tensor.SoftmaxLast(scores).Data()
		argmax := 0
		for i, p := range probs {
			if p > probs[argmax] {
				argmax = i
			}
		}
		return argmax, probs[argmax], nil
	}
}

// MultinomialSampling draws the next token from the softmax
// distribution of the filtered scores.
func MultinomialSampling() OutputSelectionFunc {
	return func(scores *tensor.Tensor, key random.Key) (int, float64, error) {
		probs := tensor.SoftmaxLast(scores).Data()
		p := random.Uniform(key, []int{1}, 0, 1).At(0)
		for i, value := range probs {
			p -= value
			if p < 0 {
				return i, probs[i], nil
			}
		}
		return len(probs) - 1, probs[len(probs)-1], nil
	}
}
