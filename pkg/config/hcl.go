package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclManifestFile is the top-level structure of an HCL manifest:
//
//	name = "billing"
//
//	scope "global" {
//	  kind = "global"
//	  binding "Rate" {
//	    value = 100
//	  }
//	}
//
//	subtype "Int" "Number" {}
//
//	conversion "Int" "Float" {
//	  expr = "float(value)"
//	}
type hclManifestFile struct {
	Name        string           `hcl:"name"`
	Version     string           `hcl:"version,optional"`
	Scopes      []*hclScope      `hcl:"scope,block"`
	Subtypes    []*hclSubtype    `hcl:"subtype,block"`
	Conversions []*hclConversion `hcl:"conversion,block"`
}

type hclScope struct {
	ID       string        `hcl:"id,label"`
	Kind     string        `hcl:"kind"`
	Bindings []*hclBinding `hcl:"binding,block"`
}

type hclBinding struct {
	Type  string    `hcl:"type,label"`
	Label string    `hcl:"label,optional"`
	Value cty.Value `hcl:"value,optional"`
	Expr  string    `hcl:"expr,optional"`
}

type hclSubtype struct {
	Sub   string `hcl:"sub,label"`
	Super string `hcl:"super,label"`
}

type hclConversion struct {
	From     string   `hcl:"from,label"`
	To       string   `hcl:"to,label"`
	Label    string   `hcl:"label,optional"`
	Expr     string   `hcl:"expr"`
	Requires []string `hcl:"requires,optional"`
}

// parseHCL decodes an HCL manifest.
func parseHCL(content []byte, filename string) (*Manifest, []ValidationError) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, filename)
	if diags.HasErrors() {
		return nil, convertHCLDiagnostics(diags)
	}

	var parsed hclManifestFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, convertHCLDiagnostics(diags)
	}

	m := &Manifest{
		Name:    parsed.Name,
		Version: parsed.Version,
	}

	var errs []ValidationError
	for _, sc := range parsed.Scopes {
		spec := ScopeSpec{ID: sc.ID, Kind: sc.Kind}
		for _, b := range sc.Bindings {
			v, err := ctyToNative(b.Value)
			if err != nil {
				errs = append(errs, ValidationError{
					File:     filename,
					Path:     fmt.Sprintf("scope.%s.binding.%s.value", sc.ID, b.Type),
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			spec.Bindings = append(spec.Bindings, BindingSpec{
				Type:  b.Type,
				Label: b.Label,
				Value: v,
				Expr:  b.Expr,
			})
		}
		m.Scopes = append(m.Scopes, spec)
	}

	for _, st := range parsed.Subtypes {
		m.Subtypes = append(m.Subtypes, SubtypeSpec{Sub: st.Sub, Super: st.Super})
	}

	for _, cv := range parsed.Conversions {
		m.Conversions = append(m.Conversions, ConversionSpec{
			From:     cv.From,
			To:       cv.To,
			Label:    cv.Label,
			Expr:     cv.Expr,
			Requires: cv.Requires,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return m, nil
}

// ctyToNative recursively converts a cty.Value to its most natural Go counterpart.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()

	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		if v.AsBigFloat().IsInt() {
			var i int
			if err := gocty.FromCtyValue(v, &i); err == nil {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err != nil {
			return nil, fmt.Errorf("could not convert bool: %w", err)
		}
		return b, nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

// convertHCLDiagnostics converts HCL diagnostics to ValidationError slice.
func convertHCLDiagnostics(diags hcl.Diagnostics) []ValidationError {
	var errs []ValidationError
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		ve := ValidationError{
			Message:  d.Summary,
			Severity: "error",
		}
		if d.Detail != "" {
			ve.Message += ": " + d.Detail
		}
		if d.Subject != nil {
			ve.File = d.Subject.Filename
			ve.Line = d.Subject.Start.Line
			ve.Column = d.Subject.Start.Column
		}
		errs = append(errs, ve)
	}
	return errs
}
