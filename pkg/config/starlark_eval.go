package config

import (
	"context"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// DefaultMaxSteps bounds the work of a single manifest expression.
const DefaultMaxSteps = 1_000_000

// StarlarkEvaluator turns manifest expressions into binding factories and
// conversion functions. Expressions run synchronously on the resolving
// goroutine, bounded by a step budget.
type StarlarkEvaluator struct {
	maxSteps uint64
}

// NewStarlarkEvaluator creates a new Starlark evaluator. A zero maxSteps
// selects DefaultMaxSteps.
func NewStarlarkEvaluator(maxSteps uint64) *StarlarkEvaluator {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &StarlarkEvaluator{
		maxSteps: maxSteps,
	}
}

// Check reports a syntax error in expr without running it.
func (se *StarlarkEvaluator) Check(filename, expr string) error {
	if _, err := syntax.ParseExpr(filename, expr, 0); err != nil {
		return fmt.Errorf("invalid expression: %w", err)
	}
	return nil
}

// BindingFactory returns a factory evaluating expr each time the binding is
// resolved. The builtin resolve("Key") resolves another type key through the
// same chain, so cycles between expressions surface as cyclic resolutions.
func (se *StarlarkEvaluator) BindingFactory(filename, expr string) engine.Factory {
	return func(deps engine.Deps) (any, error) {
		ctx := deps.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		thread := se.newThread(filename)
		stop := context.AfterFunc(ctx, func() {
			thread.Cancel(ctx.Err().Error())
		})
		defer stop()

		// errors from nested resolution are returned as-is so their kind survives
		var resolveErr error
		resolve := starlark.NewBuiltin("resolve", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			key, err := typekey.Parse(s)
			if err != nil {
				return nil, err
			}
			v, err := deps.Resolve(key)
			if err != nil {
				resolveErr = err
				return nil, err
			}
			return toStarlarkValue(v)
		})

		env := starlark.StringDict{
			"struct":  starlarkstruct.Default,
			"resolve": resolve,
		}

		out, err := starlark.Eval(thread, filename, expr, env)
		if resolveErr != nil {
			return nil, resolveErr
		}
		if err != nil {
			return nil, fmt.Errorf("starlark evaluation failed: %w", err)
		}

		return fromStarlarkValue(out)
	}
}

// ConversionFunc returns a conversion evaluating expr with the source value
// bound to `value`.
func (se *StarlarkEvaluator) ConversionFunc(filename, expr string) engine.ConvertFunc {
	return func(v any) (any, error) {
		in, err := toStarlarkValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert source value: %w", err)
		}

		env := starlark.StringDict{
			"struct": starlarkstruct.Default,
			"value":  in,
		}

		out, err := starlark.Eval(se.newThread(filename), filename, expr, env)
		if err != nil {
			return nil, fmt.Errorf("starlark evaluation failed: %w", err)
		}

		return fromStarlarkValue(out)
	}
}

func (se *StarlarkEvaluator) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print for security
		},
	}
	thread.SetMaxExecutionSteps(se.maxSteps)
	return thread
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := normalizeValue(v).(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case fmt.Stringer:
		return starlark.String(val.String()), nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return int(i), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, elem := range val {
			item, err := fromStarlarkValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
