package config

import (
	"context"
	"fmt"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/telemetry"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// BuildOption configures Build.
type BuildOption func(*buildSettings)

type buildSettings struct {
	engineOpts []engine.Option
	maxSteps   uint64
}

// WithEngineOptions passes options to the registry under construction.
func WithEngineOptions(opts ...engine.Option) BuildOption {
	return func(s *buildSettings) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithMaxSteps bounds every manifest expression to n Starlark steps.
func WithMaxSteps(n uint64) BuildOption {
	return func(s *buildSettings) {
		s.maxSteps = n
	}
}

// Build runs the build phase described by m and returns the frozen registry.
// Scopes are declared first, then bindings, subtypes and conversions, in
// manifest order.
func Build(ctx context.Context, m *Manifest, opts ...BuildOption) (reg *engine.Registry, err error) {
	var settings buildSettings
	for _, opt := range opts {
		opt(&settings)
	}

	op := telemetry.StartOperation(ctx, telemetry.SpanBuild, telemetry.AttrManifest.String(m.Name))
	defer func() { op.End(err) }()

	eval := NewStarlarkEvaluator(settings.maxSteps)
	reg = engine.NewRegistry(settings.engineOpts...)

	for _, sc := range m.Scopes {
		if err := reg.DeclareScope(engine.Scope{ID: engine.ScopeID(sc.ID), Kind: engine.ScopeKind(sc.Kind)}); err != nil {
			return nil, fmt.Errorf("scope %q: %w", sc.ID, err)
		}
	}

	if err := op.Ctx.Err(); err != nil {
		return nil, err
	}

	for _, sc := range m.Scopes {
		for i, b := range sc.Bindings {
			binding, err := buildBinding(eval, m.Name, sc.ID, i, b)
			if err != nil {
				return nil, err
			}
			if err := reg.Register(engine.ScopeID(sc.ID), binding); err != nil {
				return nil, fmt.Errorf("scope %q binding %s: %w", sc.ID, b.Type, err)
			}
		}
	}

	for _, st := range m.Subtypes {
		sub, err := parseKey(st.Sub)
		if err != nil {
			return nil, err
		}
		super, err := parseKey(st.Super)
		if err != nil {
			return nil, err
		}
		if err := reg.DeclareSubtype(sub, super); err != nil {
			return nil, fmt.Errorf("subtype %s <: %s: %w", st.Sub, st.Super, err)
		}
	}

	for i, cv := range m.Conversions {
		if err := buildConversion(reg, eval, m.Name, i, cv); err != nil {
			return nil, err
		}
	}

	if err := op.Ctx.Err(); err != nil {
		return nil, err
	}

	reg.Freeze()

	st := reg.Stats()
	op.Logger.WithSnapshot(st.SnapshotID).WithFields(map[string]interface{}{
		"manifest":    m.Name,
		"scopes":      st.Scopes,
		"bindings":    st.Bindings,
		"conversions": st.Conversions,
		"subtypes":    st.Subtypes,
		"duration_ms": op.Timer.Duration().Milliseconds(),
	}).Debug("Registry built")

	return reg, nil
}

func buildBinding(eval *StarlarkEvaluator, manifest, scope string, index int, b BindingSpec) (engine.Binding, error) {
	key, err := parseKey(b.Type)
	if err != nil {
		return engine.Binding{}, err
	}

	if b.Expr == "" {
		return literalBinding(key, b.Label, b.Value), nil
	}

	filename := fmt.Sprintf("%s:%s.bindings[%d]", manifest, scope, index)
	if err := eval.Check(filename, b.Expr); err != nil {
		return engine.Binding{}, engine.NewInvalidError(fmt.Sprintf("binding %s in scope %q", b.Type, scope), err)
	}

	return engine.Binding{
		Key:     key,
		Label:   b.Label,
		Factory: eval.BindingFactory(filename, b.Expr),
	}, nil
}

// literalBinding binds a manifest value. Lists and maps are copied on every
// resolution so a caller mutating one witness cannot change the next.
func literalBinding(key typekey.Key, label string, v any) engine.Binding {
	switch v.(type) {
	case []any, map[string]any:
		return engine.Binding{
			Key:   key,
			Label: label,
			Factory: func(engine.Deps) (any, error) {
				return normalizeValue(v), nil
			},
		}
	}
	return engine.Value(key, label, v)
}

func buildConversion(reg *engine.Registry, eval *StarlarkEvaluator, manifest string, index int, cv ConversionSpec) error {
	from, err := parseKey(cv.From)
	if err != nil {
		return err
	}
	to, err := parseKey(cv.To)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s:conversions[%d]", manifest, index)
	if err := eval.Check(filename, cv.Expr); err != nil {
		return engine.NewInvalidError(fmt.Sprintf("conversion %s -> %s", cv.From, cv.To), err)
	}

	var opts []engine.ConversionOption
	if cv.Label != "" {
		opts = append(opts, engine.WithConversionLabel(cv.Label))
	}
	if len(cv.Requires) > 0 {
		reqs := make([]typekey.Key, 0, len(cv.Requires))
		for _, r := range cv.Requires {
			k, err := parseKey(r)
			if err != nil {
				return err
			}
			reqs = append(reqs, k)
		}
		opts = append(opts, engine.WithRequirements(reqs...))
	}

	if err := reg.RegisterConversion(from, to, eval.ConversionFunc(filename, cv.Expr), opts...); err != nil {
		return fmt.Errorf("conversion %s -> %s: %w", cv.From, cv.To, err)
	}
	return nil
}

func parseKey(s string) (typekey.Key, error) {
	k, err := typekey.Parse(s)
	if err != nil {
		return typekey.Key{}, engine.NewInvalidError("invalid type key", err)
	}
	return k, nil
}
