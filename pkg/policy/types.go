package policy

import (
	"time"

	"github.com/openfroyo/tdre/pkg/config"
	"github.com/openfroyo/tdre/pkg/engine"
	"github.com/openfroyo/tdre/pkg/typekey"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that should block a manifest.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of severity s reject a manifest.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its package must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the engine.
	Builtin bool `json:"builtin,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Scope is the scope id the violation points at, if any.
	Scope string `json:"scope,omitempty"`

	// Type is the type key the violation points at, if any.
	Type string `json:"type,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`
}

// PolicyResult represents the result of policy evaluation.
type PolicyResult struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations, ordered by policy name.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// CountBySeverity returns the number of violations per severity.
func (r *PolicyResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, v := range r.Violations {
		counts[v.Severity]++
	}
	return counts
}

// PolicyInput is the document policies see as input.
type PolicyInput struct {
	// Manifest is the manifest with every type key in canonical form.
	Manifest *ManifestDoc `json:"manifest"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Source is where the manifest was loaded from.
	Source string `json:"source,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is the operation being performed (e.g., "validate", "reload").
	Operation string `json:"operation,omitempty"`
}

// ManifestDoc is the policy view of a manifest. Type keys are rendered
// canonically so that spellings like "Map<String,Int>" and
// "Map<String, Int>" compare equal.
type ManifestDoc struct {
	Name        string          `json:"name"`
	Version     string          `json:"version,omitempty"`
	Scopes      []ScopeDoc      `json:"scopes"`
	Subtypes    []SubtypeDoc    `json:"subtypes"`
	Conversions []ConversionDoc `json:"conversions"`
}

// ScopeDoc is the policy view of a scope.
type ScopeDoc struct {
	ID       string       `json:"id"`
	Kind     string       `json:"kind"`
	Bindings []BindingDoc `json:"bindings"`
}

// BindingDoc is the policy view of a binding.
type BindingDoc struct {
	Type  string `json:"type"`
	Head  string `json:"head"`
	Label string `json:"label"`
	Expr  bool   `json:"expr"`

	// Witness is set when the type is a concrete witness shape, which the
	// resolver always answers structurally.
	Witness bool `json:"witness"`
}

// SubtypeDoc is the policy view of a subtype declaration.
type SubtypeDoc struct {
	Sub   string `json:"sub"`
	Super string `json:"super"`
}

// ConversionDoc is the policy view of a conversion.
type ConversionDoc struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Label    string   `json:"label"`
	Requires []string `json:"requires"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewManifestDoc builds the policy view of m. Keys that do not parse are
// kept verbatim; the loader reports them separately.
func NewManifestDoc(m *config.Manifest) *ManifestDoc {
	doc := &ManifestDoc{
		Name:        m.Name,
		Version:     m.Version,
		Scopes:      make([]ScopeDoc, 0, len(m.Scopes)),
		Subtypes:    make([]SubtypeDoc, 0, len(m.Subtypes)),
		Conversions: make([]ConversionDoc, 0, len(m.Conversions)),
	}

	for _, s := range m.Scopes {
		sd := ScopeDoc{ID: s.ID, Kind: s.Kind, Bindings: make([]BindingDoc, 0, len(s.Bindings))}
		for _, b := range s.Bindings {
			bd := BindingDoc{Type: b.Type, Head: b.Type, Label: b.Label, Expr: b.Expr != ""}
			if key, err := typekey.Parse(b.Type); err == nil {
				bd.Type = key.String()
				bd.Head = key.Name()
				bd.Witness = engine.IsWitnessShape(key) && key.IsConcrete()
			}
			if bd.Label == "" {
				bd.Label = bd.Type
			}
			sd.Bindings = append(sd.Bindings, bd)
		}
		doc.Scopes = append(doc.Scopes, sd)
	}

	for _, st := range m.Subtypes {
		doc.Subtypes = append(doc.Subtypes, SubtypeDoc{Sub: canonical(st.Sub), Super: canonical(st.Super)})
	}

	for _, cv := range m.Conversions {
		cd := ConversionDoc{
			From:     canonical(cv.From),
			To:       canonical(cv.To),
			Label:    cv.Label,
			Requires: make([]string, 0, len(cv.Requires)),
		}
		if cd.Label == "" {
			cd.Label = cd.From + "->" + cd.To
		}
		for _, r := range cv.Requires {
			cd.Requires = append(cd.Requires, canonical(r))
		}
		doc.Conversions = append(doc.Conversions, cd)
	}

	return doc
}

func canonical(s string) string {
	key, err := typekey.Parse(s)
	if err != nil {
		return s
	}
	return key.String()
}
