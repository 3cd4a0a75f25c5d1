// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layers defines the layer contract: the polymorphic unit of
// computation from which models are composed. A layer declares its
// arity, constructs weights and state lazily from input signatures,
// executes a forward computation, and may supply a custom backward
// rule consumed by the ad package.
//
// Concrete layers embed Module and override the methods they need:
// Forward for stateless computation, ForwardWithState when run-to-run
// state or randomness is involved, NewWeights / NewWeightsAndState for
// signature-only construction.
package layers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/strataml/strata/random"
	"github.com/strataml/strata/shapes"
	"github.com/strataml/strata/tensor"
)

// Weights is the learned-parameter container owned by a layer
// instance. It is replaced, never mutated in place, on re-Init.
type Weights []*tensor.Tensor

// State is the mutable run-to-run carry owned by a layer instance,
// e.g. decoding cache buffers. The instance rebinds it on every call.
type State []*tensor.Tensor

// EmptyWeights and EmptyState are the distinguished sentinels meaning
// "this layer has no weights / no state". They are non-nil: a nil
// container means absence of a value, not emptiness.
var (
	EmptyWeights = Weights{}
	EmptyState   = State{}
)

// ErrNotImplemented is returned by the base Forward and, through it,
// the base ForwardWithState. It surfaces raw from direct method calls
// and wrapped in a *LayerError from Call.
var ErrNotImplemented = errors.New("forward not implemented")

// ErrNotInitialized is returned when a draw is requested from a layer
// whose random stream has not been bound by Init.
var ErrNotInitialized = errors.New("layer not initialized")

// LayerError wraps any failure raised during Init or Call, annotated
// with the offending layer's name and the input signature involved.
type LayerError struct {
	Layer     string
	Signature shapes.Signature
	Err       error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %s: %v (input %s)", e.Layer, e.Err, e.Signature)
}

func (e *LayerError) Unwrap() error { return e.Err }

// Layer is the contract every layer satisfies. Module implements all
// of it with base behavior; concrete layers embed Module and override.
type Layer interface {
	// Identity and arity.
	Name() string
	NIn() int
	NOut() int
	ID() uuid.UUID
	String() string

	// Signature-only constructors.
	NewWeights(sig shapes.Signature) (Weights, error)
	NewWeightsAndState(sig shapes.Signature) (Weights, State, error)

	// Computation.
	Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error)
	ForwardWithState(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error)

	// Custom gradient, honored by the ad package when HasBackward.
	HasBackward() bool
	Backward(in, out, grad []*tensor.Tensor, w Weights, s, newState State, rng random.Key) ([]*tensor.Tensor, Weights, error)

	// Lifecycle and invocation.
	Init(sig shapes.Signature, opts ...InitOption) (Weights, State, error)
	Call(in []*tensor.Tensor, opts ...CallOption) ([]*tensor.Tensor, error)
	OutputSignature(sig shapes.Signature) (shapes.Signature, error)

	// Random stream, valid from Init to process end.
	NewRNG() (random.Key, error)
	NewRNGs(n int) ([]random.Key, error)

	// Currently bound containers.
	Weights() Weights
	State() State
}

// Option configures a Module at construction.
type Option func(*Module)

// WithName overrides the display name.
func WithName(name string) Option {
	return func(m *Module) { m.name = name }
}

// WithNIn sets the input arity.
func WithNIn(n int) Option {
	return func(m *Module) { m.nIn = n }
}

// WithNOut sets the output arity.
func WithNOut(n int) Option {
	return func(m *Module) { m.nOut = n }
}

// Module is the embeddable base carrying a layer's name, arity,
// instance identity, bound weights/state, random stream, and the
// cached accelerated execution paths. The self reference passed to New
// is how base plumbing dispatches to concrete overrides.
type Module struct {
	self Layer
	id   uuid.UUID
	name string
	nIn  int
	nOut int

	weights Weights
	state   State
	stream  *random.Stream

	compiled map[int]applyFunc
}

type applyFunc func(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error)

// New binds a Module to its concrete layer. The default name is the
// concrete type's name; the default arity is 1-in/1-out.
func New(self Layer, opts ...Option) Module {
	m := Module{
		self: self,
		id:   uuid.New(),
		name: typeName(self),
		nIn:  1,
		nOut: 1,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func typeName(l Layer) string {
	t := reflect.TypeOf(l)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

type baseLayer struct {
	Module
}

// NewLayer returns a bare layer with base behavior only: empty weights
// and state, and a Forward that fails with ErrNotImplemented.
func NewLayer(opts ...Option) Layer {
	l := &baseLayer{}
	l.Module = New(l, append([]Option{WithName("Layer")}, opts...)...)
	return l
}

// Name returns the display name.
func (m *Module) Name() string { return m.name }

// NIn returns the input arity.
func (m *Module) NIn() int { return m.nIn }

// NOut returns the output arity.
func (m *Module) NOut() int { return m.nOut }

// ID returns the instance identity, distinct from the name.
func (m *Module) ID() uuid.UUID { return m.id }

func (m *Module) String() string {
	return fmt.Sprintf("%s[%din,%dout]", m.name, m.nIn, m.nOut)
}

// Weights returns the currently bound weights.
func (m *Module) Weights() Weights { return m.weights }

// State returns the currently bound state.
func (m *Module) State() State { return m.state }

// NewWeights is the base signature-only weight constructor: a layer is
// weightless unless it overrides this.
func (m *Module) NewWeights(sig shapes.Signature) (Weights, error) {
	return EmptyWeights, nil
}

// NewWeightsAndState delegates weights to the concrete NewWeights and
// reports empty state. Layers whose state derives from the signature
// override this instead.
func (m *Module) NewWeightsAndState(sig shapes.Signature) (Weights, State, error) {
	w, err := m.self.NewWeights(sig)
	if err != nil {
		return nil, nil, err
	}
	return w, EmptyState, nil
}

// Forward is the base stateless computation; every concrete layer
// overrides this or ForwardWithState.
func (m *Module) Forward(in []*tensor.Tensor, w Weights) ([]*tensor.Tensor, error) {
	return nil, ErrNotImplemented
}

// ForwardWithState calls the concrete Forward and passes state through
// unchanged, so state-free layers need not override it.
func (m *Module) ForwardWithState(in []*tensor.Tensor, w Weights, s State, rng random.Key) ([]*tensor.Tensor, State, error) {
	out, err := m.self.Forward(in, w)
	if err != nil {
		return nil, nil, err
	}
	return out, s, nil
}

// HasBackward reports whether the layer supplies a custom gradient.
func (m *Module) HasBackward() bool { return false }

// Backward is the custom-gradient hook; meaningful only when the
// concrete layer also overrides HasBackward.
func (m *Module) Backward(in, out, grad []*tensor.Tensor, w Weights, s, newState State, rng random.Key) ([]*tensor.Tensor, Weights, error) {
	return nil, nil, fmt.Errorf("layer %s has no backward rule", m.name)
}

// InitOption configures a single Init call.
type InitOption func(*initConfig)

type initConfig struct {
	key    random.Key
	hasKey bool
}

// WithInitKey seeds the layer's random stream from an explicit key
// instead of the process default.
func WithInitKey(key random.Key) InitOption {
	return func(c *initConfig) {
		c.key = key
		c.hasKey = true
	}
}

// WithSeed seeds the layer's random stream from an integer seed.
func WithSeed(seed uint64) InitOption {
	return WithInitKey(random.NewKey(seed))
}

// Init binds the layer's random stream and lazily constructs weights
// and state from the input signature via the layer's own constructors.
// Re-calling replaces any prior weights and state. Failures are
// reported as *LayerError naming the layer and the signature.
func (m *Module) Init(sig shapes.Signature, opts ...InitOption) (w Weights, s State, err error) {
	cfg := initConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.hasKey {
		cfg.key = random.NewKey(random.DefaultSeed)
	}
	m.stream = random.NewStream(cfg.key)

	defer m.guard(sig, &err)
	w, s, err = m.self.NewWeightsAndState(sig)
	if err != nil {
		return nil, nil, &LayerError{Layer: m.name, Signature: sig, Err: err}
	}
	m.weights, m.state = w, s
	return w, s, nil
}

// guard converts a panic raised by tensor kernels into a *LayerError.
func (m *Module) guard(sig shapes.Signature, err *error) {
	if r := recover(); r != nil {
		*err = &LayerError{Layer: m.name, Signature: sig, Err: fmt.Errorf("%v", r)}
	}
}

// CallOption configures a single Call.
type CallOption func(*callConfig)

type callConfig struct {
	weights      Weights
	state        State
	rng          random.Key
	hasRNG       bool
	accelerators int
}

// WithWeights uses explicit weights instead of the bound ones.
func WithWeights(w Weights) CallOption {
	return func(c *callConfig) { c.weights = w }
}

// WithState uses explicit state instead of the bound one.
func WithState(s State) CallOption {
	return func(c *callConfig) { c.state = s }
}

// WithRNG passes an explicit random key to the forward computation.
func WithRNG(key random.Key) CallOption {
	return func(c *callConfig) {
		c.rng = key
		c.hasRNG = true
	}
}

// WithAccelerators selects the cached accelerated execution path with
// n workers. The compiled path is cached per (instance, n).
func WithAccelerators(n int) CallOption {
	return func(c *callConfig) { c.accelerators = n }
}

// Call is the public invocation entry point. Omitted weights and state
// fall back to the containers bound by the most recent Init; the new
// state is rebound to the instance afterwards. Any failure inside the
// forward computation is wrapped in a *LayerError.
func (m *Module) Call(in []*tensor.Tensor, opts ...CallOption) (out []*tensor.Tensor, err error) {
	cfg := callConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	w := cfg.weights
	if w == nil {
		w = m.weights
		if w == nil {
			w = EmptyWeights
		}
	}
	s := cfg.state
	if s == nil {
		s = m.state
		if s == nil {
			s = EmptyState
		}
	}
	rng := cfg.rng
	if !cfg.hasRNG {
		rng = random.NewKey(random.DefaultSeed)
	}

	sig := signatureOf(in)
	defer m.guard(sig, &err)

	apply := m.self.ForwardWithState
	if cfg.accelerators > 0 {
		apply = m.compile(cfg.accelerators)
	}
	out, newState, err := apply(in, w, s, rng)
	if err != nil {
		return nil, &LayerError{Layer: m.name, Signature: sig, Err: err}
	}
	if len(out) != m.nOut {
		return nil, &LayerError{
			Layer:     m.name,
			Signature: sig,
			Err:       fmt.Errorf("produced %d outputs, want %d", len(out), m.nOut),
		}
	}
	m.state = newState
	return out, nil
}

// OutputSignature computes the output shapes and dtypes without
// running real data through the layer: fresh weights and state are
// built from the signature, zero-valued placeholders are pushed
// through the forward computation, and the results are discarded. The
// layer's bound containers are untouched.
func (m *Module) OutputSignature(sig shapes.Signature) (out shapes.Signature, err error) {
	defer m.guard(sig, &err)
	w, s, err := m.self.NewWeightsAndState(sig)
	if err != nil {
		return nil, &LayerError{Layer: m.name, Signature: sig, Err: err}
	}
	in := make([]*tensor.Tensor, len(sig))
	for i, sd := range sig {
		in[i] = tensor.Placeholder(sd)
	}
	outs, _, err := m.self.ForwardWithState(in, w, s, random.NewKey(random.DefaultSeed))
	if err != nil {
		return nil, &LayerError{Layer: m.name, Signature: sig, Err: err}
	}
	return signatureOf(outs), nil
}

// NewRNG draws one fresh sub-key from the layer's bound stream,
// advancing it. Determinism is a function of the Init seed only: two
// same-seeded instances agree on their draws regardless of arity.
func (m *Module) NewRNG() (random.Key, error) {
	if m.stream == nil {
		return random.Key{}, fmt.Errorf("layer %s: %w", m.name, ErrNotInitialized)
	}
	return m.stream.Next(), nil
}

// NewRNGs draws n fresh sub-keys in one stream advance.
func (m *Module) NewRNGs(n int) ([]random.Key, error) {
	if m.stream == nil {
		return nil, fmt.Errorf("layer %s: %w", m.name, ErrNotInitialized)
	}
	return m.stream.NextN(n), nil
}

func signatureOf(ts []*tensor.Tensor) shapes.Signature {
	sig := make(shapes.Signature, len(ts))
	for i, t := range ts {
		sig[i] = t.SignatureOf()
	}
	return sig
}

// CheckShapeAgreement initializes the layer on the signature and
// returns the shape of its first output, as computed symbolically.
func CheckShapeAgreement(l Layer, sig shapes.Signature) ([]int, error) {
	if _, _, err := l.Init(sig); err != nil {
		return nil, err
	}
	out, err := l.OutputSignature(sig)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("layer %s produced an empty signature", l.Name())
	}
	return out[0].Shape(), nil
}

// DebugString renders the layer tree rooted at l, one line per layer.
func DebugString(l Layer) string {
	var b strings.Builder
	debugString(&b, l, 0)
	return b.String()
}

func debugString(b *strings.Builder, l Layer, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(l.String())
	b.WriteByte('\n')
	if s, ok := l.(*Serial); ok {
		for _, sub := range s.sublayers {
			debugString(b, sub, depth+1)
		}
	}
}
