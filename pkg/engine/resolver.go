package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// Observer is notified around each top-level resolution. BeginResolve may
// return a derived context; the returned func is called exactly once with
// the outcome.
type Observer interface {
	BeginResolve(ctx context.Context, req Request) (context.Context, func(*Witness, error))
}

type nopObserver struct{}

func (nopObserver) BeginResolve(ctx context.Context, _ Request) (context.Context, func(*Witness, error)) {
	return ctx, func(*Witness, error) {}
}

// Resolver answers requests against a frozen registry. It holds no mutable
// state and may be shared by any number of goroutines.
type Resolver struct {
	registry *Registry
	logger   zerolog.Logger
	observer Observer
}

// NewResolver creates a resolver over reg. The registry may still be in its
// build phase; resolutions fail with KindRegistryNotReady until it is frozen.
func NewResolver(reg *Registry, opts ...Option) *Resolver {
	s := newSettings(opts)
	return &Resolver{
		registry: reg,
		logger:   s.logger.With().Str("component", "resolver").Logger(),
		observer: s.observer,
	}
}

// Registry returns the registry the resolver reads.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Resolve finds exactly one value for req.Target. In order it applies the
// cycle guard, structural evidence, the scope chain innermost first, and a
// single conversion hop when req.Coerce is set.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Witness, error) {
	ctx, finish := r.observer.BeginResolve(ctx, req)

	w, err := r.resolveTop(ctx, req)
	finish(w, err)

	if err != nil {
		r.logger.Debug().
			Stringer("key", req.Target).
			Str("kind", string(KindOf(err))).
			Err(err).
			Msg("Resolution failed")
		return nil, err
	}

	r.logger.Debug().
		Stringer("key", req.Target).
		Str("source", string(w.Provenance.Source)).
		Str("provenance", w.Provenance.String()).
		Msg("Resolved")
	return w, nil
}

func (r *Resolver) resolveTop(ctx context.Context, req Request) (*Witness, error) {
	if r.registry == nil || !r.registry.IsFrozen() {
		return nil, NewRegistryNotReadyError(req.Target)
	}
	if req.Target.IsZero() {
		return nil, NewInvalidError("request has empty target key", nil)
	}
	for _, id := range req.Chain {
		if _, ok := r.registry.scopes[id]; !ok {
			return nil, NewInvalidError(fmt.Sprintf("unknown scope in chain: %s", id), nil).WithKey(req.Target)
		}
	}
	return r.resolve(ctx, req)
}

// resolve assumes a frozen registry and a validated chain.
func (r *Resolver) resolve(ctx context.Context, req Request) (*Witness, error) {
	target := req.Target

	for i, k := range req.InProgress {
		if k == target {
			cycle := make([]typekey.Key, 0, len(req.InProgress)-i+1)
			cycle = append(cycle, req.InProgress[i:]...)
			cycle = append(cycle, target)
			return nil, NewCyclicResolutionError(target, cycle)
		}
	}

	switch w, verdict := r.registry.evidence.TryStructural(target); verdict {
	case Proven:
		return w, nil
	case Refuted:
		return nil, NewNotFoundError(target, "structural witness does not hold")
	}

	for _, id := range req.Chain {
		candidates := r.registry.bindings[id][target]
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return r.invoke(ctx, req, candidates[0])
		default:
			provenances := make([]Provenance, len(candidates))
			for i, c := range candidates {
				provenances[i] = r.provenanceOf(c)
			}
			return nil, NewAmbiguousBindingError(target, provenances)
		}
	}

	if req.Coerce {
		return r.convert(ctx, req)
	}
	return nil, NewNotFoundError(target, "no binding in scope chain")
}

func (r *Resolver) provenanceOf(b Binding) Provenance {
	return Provenance{
		Source:    SourceBinding,
		ScopeID:   b.scope,
		ScopeKind: r.registry.scopes[b.scope].Kind,
		Label:     b.Label,
	}
}

// invoke runs the factory of the single candidate found.
func (r *Resolver) invoke(ctx context.Context, req Request, b Binding) (*Witness, error) {
	var trail []*Witness
	deps := Deps{ctx: ctx, resolver: r, parent: req, trail: &trail}

	value, err := b.Factory(deps)
	if err != nil {
		return nil, r.propagate(req.Target, err, func() error {
			return NewFactoryFailedError(req.Target, fmt.Sprintf("binding %q failed", b.Label), err)
		})
	}

	return &Witness{
		Key:          req.Target,
		Value:        value,
		Provenance:   r.provenanceOf(b),
		Requirements: trail,
	}, nil
}

// convert applies the single conversion hop from req.Source to req.Target.
func (r *Resolver) convert(ctx context.Context, req Request) (*Witness, error) {
	if req.Source == nil || req.Source.Key.IsZero() {
		return nil, NewNotFoundError(req.Target, "coercion permitted but no source operand given")
	}

	entry, ok := r.registry.conversions.Find(req.Source.Key, req.Target)
	if !ok {
		return nil, NewNotFoundError(req.Target, "no binding and no conversion").
			WithDetail("source", req.Source.Key.String())
	}

	value, err := entry.Convert(req.Source.Value)
	if err != nil {
		return nil, NewFactoryFailedError(req.Target, fmt.Sprintf("conversion %q failed", entry.Label), err)
	}

	var requirements []*Witness
	for _, key := range entry.Requires {
		w, err := r.resolve(ctx, req.nested(key))
		if err != nil {
			return nil, r.propagate(req.Target, err, func() error { return err })
		}
		requirements = append(requirements, w)
	}

	return &Witness{
		Key:   req.Target,
		Value: value,
		Provenance: Provenance{
			Source: SourceConversion,
			Label:  entry.Label,
			From:   entry.Source,
		},
		Requirements: requirements,
	}, nil
}

// propagate returns a copy of a nested resolution failure, unchanged in
// kind, with target prepended to its path. The original is never modified:
// factories may return shared values such as ErrNotFound. Errors that did
// not come from the engine are wrapped by fallback.
func (r *Resolver) propagate(target typekey.Key, err error, fallback func() error) error {
	var re *ResolutionError
	if !errors.As(err, &re) {
		return fallback()
	}
	cp := *re
	cp.Path = make([]typekey.Key, 0, len(re.Path)+1)
	cp.Path = append(append(cp.Path, target), re.Path...)
	return &cp
}

// ResolveAs resolves req and asserts the value to T.
func ResolveAs[T any](ctx context.Context, r *Resolver, req Request) (T, error) {
	var zero T
	w, err := r.Resolve(ctx, req)
	if err != nil {
		return zero, err
	}
	v, ok := w.Value.(T)
	if !ok {
		return zero, NewInvalidError(
			fmt.Sprintf("value of %s has type %T, want %T", req.Target, w.Value, zero),
			nil,
		).WithKey(req.Target)
	}
	return v, nil
}
