package config

import (
	"context"
	"reflect"
	"testing"

	"go.starlark.net/starlark"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/typekey"
)

func TestStarlarkEvaluator_ConversionFunc(t *testing.T) {
	evaluator := NewStarlarkEvaluator(0)

	tests := []struct {
		name    string
		expr    string
		input   any
		want    any
		wantErr bool
	}{
		{"int to float", "float(value)", 3, 3.0, false},
		{"string formatting", `"%s!" % value`, "hi", "hi!", false},
		{"list comprehension", "[x * 2 for x in value]", []any{1, 2, 3}, []any{2, 4, 6}, false},
		{"dict access", `value["a"] + 1`, map[string]any{"a": 1}, 2, false},
		{"tuple becomes list", "(value, value)", true, []any{true, true}, false},
		{"struct becomes map", "struct(v = value)", "x", map[string]any{"v": "x"}, false},
		{"none", "None", 1, nil, false},
		{"runtime error", "value + 1", "str", nil, true},
		{"unsupported input", "value", struct{}{}, nil, true},
		{"unsupported output", "lambda: 1", 1, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.ConversionFunc("test", tt.expr)(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestStarlarkEvaluator_Check(t *testing.T) {
	evaluator := NewStarlarkEvaluator(0)

	if err := evaluator.Check("ok", `resolve("Rate") * 2`); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := evaluator.Check("bad", "1 +"); err == nil {
		t.Errorf("Expected syntax error")
	}
	if err := evaluator.Check("stmt", "x = 1"); err == nil {
		t.Errorf("Expected error for a statement")
	}
}

func TestStarlarkEvaluator_BindingFactory(t *testing.T) {
	evaluator := NewStarlarkEvaluator(0)

	reg := engine.NewRegistry()
	_ = reg.DeclareScope(engine.Scope{ID: "g", Kind: engine.ScopeGlobal})
	_ = reg.Register("g", engine.Value(typekey.Con("Base"), "base", 21))
	_ = reg.Register("g", engine.Value(typekey.MustParse("List<Int>"), "ints", []any{1, 2, 3}))
	_ = reg.Register("g", engine.Binding{
		Key:     typekey.Con("Answer"),
		Factory: evaluator.BindingFactory("answer", `resolve("Base") * 2`),
	})
	_ = reg.Register("g", engine.Binding{
		Key:     typekey.Con("Total"),
		Factory: evaluator.BindingFactory("total", `sum_of(resolve("List<Int>"))`),
	})
	_ = reg.Register("g", engine.Binding{
		Key:     typekey.Con("Sum"),
		Factory: evaluator.BindingFactory("sum", `len(resolve("List<Int>")) + resolve("Answer")`),
	})
	_ = reg.Register("g", engine.Binding{
		Key:     typekey.Con("Described"),
		Factory: evaluator.BindingFactory("described", `resolve("TypeDescriptor<Map<String, Int>>")`),
	})
	reg.Freeze()

	r := engine.NewResolver(reg)
	resolve := func(target string) (*engine.Witness, error) {
		return r.Resolve(context.Background(), engine.Request{
			Target: typekey.MustParse(target),
			Chain:  []engine.ScopeID{"g"},
		})
	}

	w, err := resolve("Answer")
	if err != nil || w.Value != 42 {
		t.Fatalf("Answer = %v, %v; want 42", w, err)
	}

	w, err = resolve("Sum")
	if err != nil || w.Value != 45 {
		t.Fatalf("Sum = %v, %v; want 45", w, err)
	}
	if len(w.Requirements) != 2 {
		t.Errorf("Expected 2 requirements, got %d", len(w.Requirements))
	}

	if _, err := resolve("Total"); engine.KindOf(err) != engine.KindFactoryFailed {
		t.Errorf("Expected factory failure for undefined function, got %v", err)
	}

	w, err = resolve("Described")
	if err != nil {
		t.Fatalf("Described failed: %v", err)
	}
	if w.Value != "Map<String, Int>" {
		t.Errorf("Described = %#v", w.Value)
	}
}

func TestStarlarkValues(t *testing.T) {
	in := map[string]any{
		"n":    int64(7),
		"f":    1.5,
		"s":    "x",
		"b":    false,
		"list": []string{"a", "b"},
		"nil":  nil,
	}

	sv, err := toStarlarkValue(in)
	if err != nil {
		t.Fatalf("toStarlarkValue failed: %v", err)
	}
	if _, ok := sv.(*starlark.Dict); !ok {
		t.Fatalf("Expected dict, got %s", sv.Type())
	}

	out, err := fromStarlarkValue(sv)
	if err != nil {
		t.Fatalf("fromStarlarkValue failed: %v", err)
	}

	want := map[string]any{
		"n":    7,
		"f":    1.5,
		"s":    "x",
		"b":    false,
		"list": []any{"a", "b"},
		"nil":  nil,
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %#v, want %#v", out, want)
	}
}
