package config

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// Manifest declaratively describes one registry build.
type Manifest struct {
	// Name identifies the manifest (e.g., "billing").
	Name string `json:"name" yaml:"name" validate:"required" jsonschema:"pattern=^[a-zA-Z0-9_.-]+$"`

	// Version is a free-form manifest version.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Scopes are declared in order; a resolution chain names scopes by id.
	Scopes []ScopeSpec `json:"scopes" yaml:"scopes" validate:"required,min=1,dive"`

	// Subtypes are subtype declarations for the type hierarchy.
	Subtypes []SubtypeSpec `json:"subtypes,omitempty" yaml:"subtypes,omitempty" validate:"dive"`

	// Conversions are single-hop conversions between type keys.
	Conversions []ConversionSpec `json:"conversions,omitempty" yaml:"conversions,omitempty" validate:"dive"`
}

// ScopeSpec declares one scope and the bindings it holds.
type ScopeSpec struct {
	// ID is the scope identifier used in resolution chains.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Kind is one of local-block, type-companion, imported-namespace, global.
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=local-block type-companion imported-namespace global" jsonschema:"enum=local-block,enum=type-companion,enum=imported-namespace,enum=global"`

	// Bindings are the candidates declared in this scope.
	Bindings []BindingSpec `json:"bindings,omitempty" yaml:"bindings,omitempty" validate:"dive"`
}

// BindingSpec declares a binding. Exactly one of Value and Expr is set.
type BindingSpec struct {
	// Type is the bound type key (e.g., "Map<String, Int>").
	Type string `json:"type" yaml:"type" validate:"required"`

	// Label names the binding in provenance. Defaults to the type key.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Value is a literal value returned by the binding.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	// Expr is a Starlark expression evaluated each time the binding is resolved.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// SubtypeSpec declares Sub as a direct subtype of Super.
type SubtypeSpec struct {
	Sub   string `json:"sub" yaml:"sub" validate:"required"`
	Super string `json:"super" yaml:"super" validate:"required"`
}

// ConversionSpec declares a conversion from one type key to another.
type ConversionSpec struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to" yaml:"to" validate:"required"`

	// Label names the conversion in provenance. Defaults to "From->To".
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Expr is a Starlark expression with the source bound to `value`.
	Expr string `json:"expr" yaml:"expr" validate:"required"`

	// Requires lists type keys resolved after the conversion is applied.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
}

// Validate checks rules that struct tags cannot express: unique scope ids,
// value xor expr on bindings, and parseable type keys.
func (m *Manifest) Validate() []ValidationError {
	var errs []ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		})
	}
	checkKey := func(path, s string) {
		if s == "" {
			return
		}
		if _, err := typekey.Parse(s); err != nil {
			add(path, "%v", err)
		}
	}

	seen := make(map[string]int)
	for i, sc := range m.Scopes {
		path := fmt.Sprintf("scopes[%d]", i)
		if prev, ok := seen[sc.ID]; ok && sc.ID != "" {
			add(path+".id", "duplicate scope id %q (first declared at scopes[%d])", sc.ID, prev)
		} else {
			seen[sc.ID] = i
		}

		for j, b := range sc.Bindings {
			bpath := fmt.Sprintf("%s.bindings[%d]", path, j)
			checkKey(bpath+".type", b.Type)
			switch {
			case b.Value == nil && b.Expr == "":
				add(bpath, "binding for %s needs either value or expr", b.Type)
			case b.Value != nil && b.Expr != "":
				add(bpath, "binding for %s sets both value and expr", b.Type)
			}
		}
	}

	for i, st := range m.Subtypes {
		path := fmt.Sprintf("subtypes[%d]", i)
		checkKey(path+".sub", st.Sub)
		checkKey(path+".super", st.Super)
	}

	for i, cv := range m.Conversions {
		path := fmt.Sprintf("conversions[%d]", i)
		checkKey(path+".from", cv.From)
		checkKey(path+".to", cv.To)
		for j, req := range cv.Requires {
			checkKey(fmt.Sprintf("%s.requires[%d]", path, j), req)
		}
	}

	return errs
}

// ScopeIDs returns the declared scope ids in order.
func (m *Manifest) ScopeIDs() []engine.ScopeID {
	ids := make([]engine.ScopeID, len(m.Scopes))
	for i, sc := range m.Scopes {
		ids[i] = engine.ScopeID(sc.ID)
	}
	return ids
}

// BindingCount returns the number of bindings across all scopes.
func (m *Manifest) BindingCount() int {
	n := 0
	for _, sc := range m.Scopes {
		n += len(sc.Bindings)
	}
	return n
}

// LoadedManifest is a manifest together with where it came from.
type LoadedManifest struct {
	// Manifest is the decoded manifest.
	Manifest *Manifest `json:"manifest"`

	// Source is the file the manifest was read from, or "inline".
	Source string `json:"source"`

	// Format is the format the manifest was decoded from.
	Format Format `json:"format"`

	// Raw is the undecoded source.
	Raw []byte `json:"-"`

	// LoadedAt is when the manifest was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the manifest path to the error (e.g., "scopes[0].bindings[1]").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (e ValidationError) String() string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.File != "":
		loc = e.File + ": "
	}
	if e.Path != "" {
		loc += e.Path + ": "
	}
	return loc + e.Message
}

// ManifestError carries every validation error found in a manifest.
type ManifestError struct {
	Source string
	Errors []ValidationError
}

func (e *ManifestError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.String()
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.Source, strings.Join(msgs, "; "))
}

// normalizeValue maps decoder-specific representations onto int, float64,
// string, bool, []any and map[string]any so that a manifest yields the same
// values regardless of its format.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, float64:
		return val
	case int8:
		return int(val)
	case int16:
		return int(val)
	case int32:
		return int(val)
	case int64:
		return int(val)
	case uint:
		return int(val)
	case uint8:
		return int(val)
	case uint16:
		return int(val)
	case uint32:
		return int(val)
	case uint64:
		if val > math.MaxInt64 {
			return float64(val)
		}
		return int(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		f, _ := val.Float64()
		return f
	case *big.Int:
		if val.IsInt64() {
			return int(val.Int64())
		}
		f, _ := new(big.Float).SetInt(val).Float64()
		return f
	case *big.Float:
		if val.IsInt() {
			if i, acc := val.Int64(); acc == big.Exact {
				return int(i)
			}
		}
		f, _ := val.Float64()
		return f
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	default:
		return val
	}
}

// normalize applies normalizeValue to every literal binding value.
func (m *Manifest) normalize() {
	for i := range m.Scopes {
		for j := range m.Scopes[i].Bindings {
			b := &m.Scopes[i].Bindings[j]
			b.Value = normalizeValue(b.Value)
		}
	}
}
