// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package random provides splittable deterministic pseudo-random keys.
// A Key identifies a stream; splitting a key yields independent child
// keys, so the sequence of draws is a pure function of the root seed
// and the split structure, never of instance identity or timing.
package random

import (
	"fmt"

	"github.com/strataml/strata/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSeed is the process-wide seed used when a caller does not
// supply one explicitly.
const DefaultSeed uint64 = 0

// Key is an opaque stream identifier.
type Key struct {
	hi, lo uint64
}

// NewKey derives a root key from a seed.
func NewKey(seed uint64) Key {
	lo := splitmix64(seed)
	return Key{hi: splitmix64(lo), lo: lo}
}

// Split derives n independent child keys. The derivation is
// deterministic: equal keys yield equal children, element-wise.
func (k Key) Split(n int) []Key {
	out := make([]Key, n)
	for i := range out {
		a := splitmix64(k.lo ^ rotl(k.hi, 17) ^ (uint64(i+1) * 0x9e3779b97f4a7c15))
		out[i] = Key{hi: splitmix64(a ^ k.hi), lo: a}
	}
	return out
}

func (k Key) String() string {
	return fmt.Sprintf("Key(%016x%016x)", k.hi, k.lo)
}

func (k Key) seed() uint64 { return k.hi ^ rotl(k.lo, 31) }

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func rotl(x uint64, k uint) uint64 { return x<<k | x>>(64-k) }

// Stream is a per-owner sequence of keys. It is well-defined once
// seeded and advances monotonically on every draw; it never resets.
type Stream struct {
	key Key
}

// NewStream returns a stream rooted at key.
func NewStream(key Key) *Stream {
	return &Stream{key: key}
}

// Next advances the stream and returns one fresh sub-key.
func (s *Stream) Next() Key {
	ks := s.key.Split(2)
	s.key = ks[0]
	return ks[1]
}

// NextN advances the stream once and returns n fresh sub-keys.
func (s *Stream) NextN(n int) []Key {
	ks := s.key.Split(n + 1)
	s.key = ks[0]
	return ks[1:]
}

// Uniform fills a tensor of the given dimensions with draws from
// U[min, max) determined entirely by key.
func Uniform(key Key, dims []int, min, max float64) *tensor.Tensor {
	u := distuv.Uniform{Min: min, Max: max, Src: rand.NewSource(key.seed())}
	t := tensor.Zeros(dims...)
	data := t.Data()
	for i := range data {
		data[i] = u.Rand()
	}
	return t
}

// Normal fills a tensor of the given dimensions with draws from
// N(0, sigma) determined entirely by key.
func Normal(key Key, dims []int, sigma float64) *tensor.Tensor {
	n := distuv.Normal{Mu: 0, Sigma: sigma, Src: rand.NewSource(key.seed())}
	t := tensor.Zeros(dims...)
	data := t.Data()
	for i := range data {
		data[i] = n.Rand()
	}
	return t
}

// Intn returns a uniform int in [0, n) determined by key.
func Intn(key Key, n int) int {
	return rand.New(rand.NewSource(key.seed())).Intn(n)
}
