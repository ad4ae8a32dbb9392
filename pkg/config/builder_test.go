package config

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// buildBilling loads the billing manifest and returns a resolver over it.
func buildBilling(t *testing.T) *engine.Resolver {
	t.Helper()

	lm, err := NewLoader().LoadBytes(context.Background(), []byte(billingYAML), FormatYAML, "billing.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	reg, err := Build(context.Background(), lm.Manifest)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !reg.IsFrozen() {
		t.Fatalf("Expected a frozen registry")
	}
	return engine.NewResolver(reg)
}

// mustManifest decodes a YAML manifest without running validation.
func mustManifest(t *testing.T, content string) *Manifest {
	t.Helper()
	m, errs := parseYAML([]byte(content), "test.yaml")
	if len(errs) > 0 {
		t.Fatalf("Failed to decode manifest: %v", errs)
	}
	m.normalize()
	return m
}

func TestBuild_BillingManifest(t *testing.T) {
	r := buildBilling(t)
	ctx := context.Background()
	both := []engine.ScopeID{"local", "global"}
	global := []engine.ScopeID{"global"}

	tests := []struct {
		name       string
		req        engine.Request
		wantValue  any
		wantSource engine.SourceKind
		wantLabel  string
	}{
		{
			name:       "local shadows global",
			req:        engine.Request{Target: typekey.Con("Rate"), Chain: both},
			wantValue:  100,
			wantSource: engine.SourceBinding,
			wantLabel:  "local-rate",
		},
		{
			name:       "global only",
			req:        engine.Request{Target: typekey.Con("Rate"), Chain: global},
			wantValue:  50,
			wantSource: engine.SourceBinding,
			wantLabel:  "default-rate",
		},
		{
			name:       "expression sees the caller's chain",
			req:        engine.Request{Target: typekey.Con("Fee"), Chain: both},
			wantValue:  200,
			wantSource: engine.SourceBinding,
			wantLabel:  "Fee",
		},
		{
			name:       "expression with global chain",
			req:        engine.Request{Target: typekey.Con("Fee"), Chain: global},
			wantValue:  100,
			wantSource: engine.SourceBinding,
			wantLabel:  "Fee",
		},
		{
			name:       "structured literal",
			req:        engine.Request{Target: typekey.Con("Limits"), Chain: global},
			wantValue:  map[string]any{"max": 10, "tiers": []any{1, 2}},
			wantSource: engine.SourceBinding,
			wantLabel:  "Limits",
		},
		{
			name: "conversion expression",
			req: engine.Request{
				Target: typekey.Con("Float"), Chain: global, Coerce: true,
				Source: &engine.Operand{Key: typekey.Con("Int"), Value: 3},
			},
			wantValue:  3.0,
			wantSource: engine.SourceConversion,
			wantLabel:  "int-to-float",
		},
		{
			name:       "declared subtype is proven",
			req:        engine.Request{Target: typekey.MustParse("SubtypeOf<Int, Number>"), Chain: global},
			wantSource: engine.SourceEvidence,
			wantLabel:  engine.SubtypeOfName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := r.Resolve(ctx, tt.req)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if tt.wantValue != nil && !reflect.DeepEqual(w.Value, tt.wantValue) {
				t.Errorf("Value = %#v, want %#v", w.Value, tt.wantValue)
			}
			if w.Provenance.Source != tt.wantSource || w.Provenance.Label != tt.wantLabel {
				t.Errorf("Provenance = %+v, want %s %q", w.Provenance, tt.wantSource, tt.wantLabel)
			}
		})
	}
}

func TestBuild_StructuredLiteralIsCopied(t *testing.T) {
	r := buildBilling(t)
	req := engine.Request{Target: typekey.Con("Limits"), Chain: []engine.ScopeID{"global"}}

	first, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	limits := first.Value.(map[string]any)
	limits["max"] = 0
	limits["tiers"].([]any)[0] = 99

	second, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := map[string]any{"max": 10, "tiers": []any{1, 2}}
	if !reflect.DeepEqual(second.Value, want) {
		t.Errorf("Mutating a witness changed the registry: got %#v, want %#v", second.Value, want)
	}
}

func TestBuild_ExpressionRequirementsAreRecorded(t *testing.T) {
	r := buildBilling(t)

	w, err := r.Resolve(context.Background(), engine.Request{
		Target: typekey.Con("Fee"),
		Chain:  []engine.ScopeID{"local", "global"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(w.Requirements) != 1 || w.Requirements[0].Provenance.Label != "local-rate" {
		t.Fatalf("Expected Rate requirement from local-rate, got %+v", w.Requirements)
	}
	if !strings.Contains(w.Explain(), "  Rate = 100 <- binding \"local-rate\"") {
		t.Errorf("Unexpected explanation:\n%s", w.Explain())
	}
}

func TestBuild_ExpressionCycle(t *testing.T) {
	m := mustManifest(t, `
name: cyclic
scopes:
  - id: g
    kind: global
    bindings:
      - type: A
        expr: resolve("B")
      - type: B
        expr: resolve("A")
`)
	reg, err := Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, err = engine.NewResolver(reg).Resolve(context.Background(), engine.Request{
		Target: typekey.Con("A"),
		Chain:  []engine.ScopeID{"g"},
	})
	if !engine.IsCyclicResolution(err) {
		t.Fatalf("Expected cyclic resolution, got %v", err)
	}

	var re *engine.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("Expected *engine.ResolutionError")
	}
	want := []typekey.Key{typekey.Con("A"), typekey.Con("B"), typekey.Con("A")}
	if !reflect.DeepEqual(re.Cycle, want) {
		t.Errorf("Cycle = %v, want %v", re.Cycle, want)
	}
}

func TestBuild_ExpressionFailures(t *testing.T) {
	m := mustManifest(t, `
name: failing
scopes:
  - id: g
    kind: global
    bindings:
      - type: Missing
        expr: resolve("Nowhere")
      - type: Broken
        expr: 1 // 0
      - type: Spin
        expr: len([x for x in range(100000)])
      - type: BadKey
        expr: resolve("Map<")
`)
	reg, err := Build(context.Background(), m, WithMaxSteps(1000))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	r := engine.NewResolver(reg)

	tests := []struct {
		target string
		want   engine.ErrorKind
	}{
		{"Missing", engine.KindNotFound},
		{"Broken", engine.KindFactoryFailed},
		{"Spin", engine.KindFactoryFailed},
		{"BadKey", engine.KindFactoryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), engine.Request{
				Target: typekey.Con(tt.target),
				Chain:  []engine.ScopeID{"g"},
			})
			if got := engine.KindOf(err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", err, got, tt.want)
			}
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantKind engine.ErrorKind
	}{
		{
			name: "duplicate conversion",
			manifest: `
name: dup
scopes: [{id: g, kind: global}]
conversions:
  - {from: Int, to: Float, expr: float(value)}
  - {from: Int, to: Float, expr: float(value) + 1}
`,
			wantKind: engine.KindAmbiguousConversion,
		},
		{
			name: "subtype cycle",
			manifest: `
name: cyc
scopes: [{id: g, kind: global}]
subtypes:
  - {sub: A, super: B}
  - {sub: B, super: A}
`,
			wantKind: engine.KindInvalid,
		},
		{
			name: "expression syntax error",
			manifest: `
name: syntax
scopes:
  - id: g
    kind: global
    bindings:
      - {type: A, expr: "1 +"}
`,
			wantKind: engine.KindInvalid,
		},
		{
			name: "conversion requirement is not a key",
			manifest: `
name: req
scopes: [{id: g, kind: global}]
conversions:
  - {from: Int, to: Float, expr: float(value), requires: ["Bad<"]}
`,
			wantKind: engine.KindInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), mustManifest(t, tt.manifest))
			if got := engine.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %s, want %s", err, got, tt.wantKind)
			}
		})
	}
}

func TestBuild_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, mustManifest(t, billingYAML))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBuild_ConversionRequirements(t *testing.T) {
	m := mustManifest(t, `
name: money
scopes:
  - id: g
    kind: global
    bindings:
      - {type: Currency, value: EUR}
conversions:
  - from: Int
    to: Money
    label: cents
    expr: 'struct(amount = value / 100.0)'
    requires: [Currency]
`)
	reg, err := Build(context.Background(), m)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	w, err := engine.NewResolver(reg).Resolve(context.Background(), engine.Request{
		Target: typekey.Con("Money"),
		Chain:  []engine.ScopeID{"g"},
		Coerce: true,
		Source: &engine.Operand{Key: typekey.Con("Int"), Value: 250},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !reflect.DeepEqual(w.Value, map[string]any{"amount": 2.5}) {
		t.Errorf("Value = %#v", w.Value)
	}
	if len(w.Requirements) != 1 || w.Requirements[0].Value != "EUR" {
		t.Errorf("Expected Currency requirement, got %+v", w.Requirements)
	}
}
