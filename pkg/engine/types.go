package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// ScopeID names a scope in the registry.
type ScopeID string

// ScopeKind describes what a scope layer models. The kind is informational;
// search order comes only from the chain given in a Request.
type ScopeKind string

const (
	// ScopeLocalBlock is a lexical block at the call site.
	ScopeLocalBlock ScopeKind = "local-block"
	// ScopeTypeCompanion holds bindings attached to a type's companion.
	ScopeTypeCompanion ScopeKind = "type-companion"
	// ScopeImportedNamespace holds bindings brought in by an import.
	ScopeImportedNamespace ScopeKind = "imported-namespace"
	// ScopeGlobal is the outermost layer.
	ScopeGlobal ScopeKind = "global"
)

// ScopeKinds lists every valid scope kind, innermost first.
var ScopeKinds = []ScopeKind{ScopeLocalBlock, ScopeTypeCompanion, ScopeImportedNamespace, ScopeGlobal}

// Valid reports whether k is a known scope kind.
func (k ScopeKind) Valid() bool {
	for _, known := range ScopeKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Scope is a named layer of bindings.
type Scope struct {
	ID   ScopeID   `json:"id"`
	Kind ScopeKind `json:"kind"`
}

// Factory produces the value of a binding. It may resolve further keys
// through deps.
type Factory func(deps Deps) (any, error)

// Binding is a candidate value for a type key within one scope.
type Binding struct {
	Key     typekey.Key
	Label   string
	Factory Factory

	scope ScopeID
}

// Scope returns the scope the binding was registered in. It is empty for a
// binding that has not been registered.
func (b Binding) Scope() ScopeID {
	return b.scope
}

// Value builds a binding whose factory returns v. Every resolution shares
// v itself: if v is a map, slice or pointer, callers must not mutate the
// resolved value. Use a Factory that returns a fresh copy when they might.
func Value(key typekey.Key, label string, v any) Binding {
	return Binding{
		Key:   key,
		Label: label,
		Factory: func(Deps) (any, error) {
			return v, nil
		},
	}
}

// SourceKind identifies which path produced a witness.
type SourceKind string

const (
	SourceEvidence   SourceKind = "evidence"
	SourceBinding    SourceKind = "binding"
	SourceConversion SourceKind = "conversion"
	SourceExplicit   SourceKind = "explicit"
)

// Provenance records where a witness came from.
type Provenance struct {
	Source    SourceKind  `json:"source"`
	ScopeID   ScopeID     `json:"scope,omitempty"`
	ScopeKind ScopeKind   `json:"scope_kind,omitempty"`
	Label     string      `json:"label,omitempty"`
	From      typekey.Key `json:"from,omitempty"`
}

func (p Provenance) String() string {
	switch p.Source {
	case SourceEvidence:
		return fmt.Sprintf("evidence %s", p.Label)
	case SourceBinding:
		return fmt.Sprintf("binding %q in scope %s (%s)", p.Label, p.ScopeID, p.ScopeKind)
	case SourceConversion:
		return fmt.Sprintf("conversion %q from %s", p.Label, p.From)
	case SourceExplicit:
		return "explicit value"
	default:
		return string(p.Source)
	}
}

// Witness is a successful resolution: a value for Key and how it was found.
// Requirements holds the witnesses resolved on the way, in resolution order.
type Witness struct {
	Key          typekey.Key `json:"key"`
	Value        any         `json:"value"`
	Provenance   Provenance  `json:"provenance"`
	Requirements []*Witness  `json:"requirements,omitempty"`
}

// Explain renders the witness and its requirements as an indented tree.
func (w *Witness) Explain() string {
	var sb strings.Builder
	w.explain(&sb, 0)
	return sb.String()
}

func (w *Witness) explain(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(fmt.Sprintf("%s = %v <- %s\n", w.Key, w.Value, w.Provenance))
	for _, req := range w.Requirements {
		req.explain(sb, depth+1)
	}
}

// Operand is a value already on hand at the call site together with its
// statically known type.
type Operand struct {
	Key   typekey.Key
	Value any
}

// Request asks the resolver for a value of Target.
type Request struct {
	// Target is the requested type key.
	Target typekey.Key

	// Chain lists the visible scopes, innermost first.
	Chain []ScopeID

	// Coerce permits a single conversion hop from Source.
	Coerce bool

	// Source is the operand to convert when Coerce is set.
	Source *Operand

	// InProgress holds the keys currently being resolved by enclosing
	// factories, outermost first.
	InProgress []typekey.Key
}

// nested derives the request used for a requirement of req.Target.
func (req Request) nested(target typekey.Key) Request {
	inProgress := make([]typekey.Key, len(req.InProgress), len(req.InProgress)+1)
	copy(inProgress, req.InProgress)
	return Request{
		Target:     target,
		Chain:      req.Chain,
		InProgress: append(inProgress, req.Target),
	}
}

// Deps is handed to a Factory so that it can resolve what it depends on.
// Resolutions made through Deps use the enclosing chain, never coerce, and
// are recorded as requirements of the enclosing witness.
type Deps struct {
	ctx      context.Context
	resolver *Resolver
	parent   Request
	trail    *[]*Witness
}

// Context returns the context of the enclosing resolution.
func (d Deps) Context() context.Context {
	return d.ctx
}

// Target returns the key the factory is producing.
func (d Deps) Target() typekey.Key {
	return d.parent.Target
}

// Witness resolves key and returns the full witness.
func (d Deps) Witness(key typekey.Key) (*Witness, error) {
	if d.resolver == nil {
		return nil, NewNotFoundError(key, "no resolver available")
	}
	w, err := d.resolver.resolve(d.ctx, d.parent.nested(key))
	if err != nil {
		return nil, err
	}
	if d.trail != nil {
		*d.trail = append(*d.trail, w)
	}
	return w, nil
}

// Resolve resolves key and returns its value.
func (d Deps) Resolve(key typekey.Key) (any, error) {
	w, err := d.Witness(key)
	if err != nil {
		return nil, err
	}
	return w.Value, nil
}

// Explicit wraps a value supplied directly by the call site. It never
// touches a resolver and is never checked for ambiguity.
func Explicit(key typekey.Key, value any) *Witness {
	return &Witness{
		Key:        key,
		Value:      value,
		Provenance: Provenance{Source: SourceExplicit},
	}
}

// Supply returns explicit when the call site provided one, otherwise it
// resolves req with r.
func Supply(ctx context.Context, r *Resolver, req Request, explicit *Witness) (*Witness, error) {
	if explicit != nil {
		return explicit, nil
	}
	return r.Resolve(ctx, req)
}
