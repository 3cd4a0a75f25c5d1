// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layers

import (
	"fmt"
	"sync"

	"github.com/strataml/strata/random"
	"github.com/strataml/strata/tensor"
)

// compile returns the accelerated execution path for n workers,
// building it on first use and caching it on the instance. The cache
// keys on (instance, n), not on call arguments.
func (m *Module) compile(n int) applyFunc {
	if m.compiled == nil {
		m.compiled = make(map[int]applyFunc)
	}
	if fn, ok := m.compiled[n]; ok {
		return fn
	}
	fn := m.buildApply(n)
	m.compiled[n] = fn
	return fn
}

func (m *Module) buildApply(n int) applyFunc {
	if n <= 1 {
		return m.self.ForwardWithState
	}
	return func(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error) {
		// Sharding is only sound for stateless layers with a batch
		// axis divisible by n; everything else runs the plain path.
		if len(s) != 0 || !shardable(in, n) {
			return m.self.ForwardWithState(in, w, s, rng)
		}
		return m.shardedApply(n, in, w, s, rng)
	}
}

func shardable(in []*tensor.Tensor, n int) bool {
	if len(in) == 0 {
		return false
	}
	batch := -1
	for _, t := range in {
		if t.NDim() == 0 {
			return false
		}
		if batch == -1 {
			batch = t.Dim(0)
		} else if t.Dim(0) != batch {
			return false
		}
	}
	return batch >= n && batch%n == 0
}

// shardedApply splits the batch axis across n workers sharing the
// read-only weights and concatenates the per-shard outputs.
func (m *Module) shardedApply(n int, in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error) {
	batch := in[0].Dim(0)
	per := batch / n

	outs := make([][]*tensor.Tensor, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("shard %d: %v", i, r)
				}
			}()
			shard := make([]*tensor.Tensor, len(in))
			for j, t := range in {
				shard[j] = sliceBatch(t, i*per, (i+1)*per)
			}
			out, _, err := m.self.ForwardWithState(shard, w, s, rng)
			outs[i], errs[i] = out, err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	merged := outs[0]
	for i := 1; i < n; i++ {
		if len(outs[i]) != len(merged) {
			return nil, nil, fmt.Errorf("shard %d produced %d outputs, want %d", i, len(outs[i]), len(merged))
		}
		for j := range merged {
			merged[j] = tensor.Concat(0, merged[j], outs[i][j])
		}
	}
	return merged, s, nil
}

func sliceBatch(t *tensor.Tensor, from, to int) *tensor.Tensor {
	dims := t.Shape()
	inner := 1
	for _, d := range dims[1:] {
		inner *= d
	}
	dims[0] = to - from
	out := tensor.New(dims, t.Dtype())
	copy(out.Data(), t.Data()[from*inner:to*inner])
	return out
}
