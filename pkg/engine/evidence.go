package engine

import (
	"fmt"
	"strings"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// Constructor names of the built-in witness families.
const (
	EqName             = "Eq"
	SubtypeOfName      = "SubtypeOf"
	TypeDescriptorName = "TypeDescriptor"
)

// EqKey returns the key Eq<a, b>.
func EqKey(a, b typekey.Key) typekey.Key {
	return typekey.App(EqName, a, b)
}

// SubtypeOfKey returns the key SubtypeOf<sub, super>.
func SubtypeOfKey(sub, super typekey.Key) typekey.Key {
	return typekey.App(SubtypeOfName, sub, super)
}

// TypeDescriptorKey returns the key TypeDescriptor<a>.
func TypeDescriptorKey(a typekey.Key) typekey.Key {
	return typekey.App(TypeDescriptorName, a)
}

// IsWitnessShape reports whether key has the shape of a built-in witness
// family, whether or not a witness would actually be synthesized for it.
func IsWitnessShape(key typekey.Key) bool {
	switch key.Name() {
	case EqName, SubtypeOfName:
		return key.Arity() == 2
	case TypeDescriptorName:
		return key.Arity() == 1
	}
	return false
}

// Verdict is the outcome of a structural check.
type Verdict int

const (
	// NotApplicable means the key is not a witness shape the synthesizer
	// handles; resolution continues with the registry.
	NotApplicable Verdict = iota
	// Proven means a witness was synthesized.
	Proven
	// Refuted means the key is a witness shape whose fact does not hold.
	Refuted
)

func (v Verdict) String() string {
	switch v {
	case Proven:
		return "proven"
	case Refuted:
		return "refuted"
	default:
		return "not-applicable"
	}
}

// Equality is the witness value for Eq<A, A>.
type Equality struct {
	Type typekey.Key
}

// Subtyping is the witness value for SubtypeOf<Sub, Super>. Path lists the
// declared edges that prove it, both ends included.
type Subtyping struct {
	Sub   typekey.Key
	Super typekey.Key
	Path  []typekey.Key
}

// TypeDescriptor is a reified description of a concrete type.
type TypeDescriptor struct {
	Key  typekey.Key      `json:"key"`
	Name string           `json:"name"`
	Args []TypeDescriptor `json:"args,omitempty"`
}

// DescriptorOf builds the descriptor of a concrete key. The second result is
// false if key is zero or mentions a generic parameter.
func DescriptorOf(key typekey.Key) (TypeDescriptor, bool) {
	if !key.IsConcrete() {
		return TypeDescriptor{}, false
	}
	return describe(key), true
}

func describe(key typekey.Key) TypeDescriptor {
	d := TypeDescriptor{Key: key, Name: key.Name()}
	for _, arg := range key.Args() {
		d.Args = append(d.Args, describe(arg))
	}
	return d
}

func (d TypeDescriptor) String() string {
	return d.Key.String()
}

// Describe renders the descriptor as an indented tree, one type per line.
func (d TypeDescriptor) Describe() string {
	var sb strings.Builder
	d.describe(&sb, 0)
	return sb.String()
}

func (d TypeDescriptor) describe(sb *strings.Builder, depth int) {
	sb.WriteString(fmt.Sprintf("%s%s/%d\n", strings.Repeat("  ", depth), d.Name, len(d.Args)))
	for _, arg := range d.Args {
		arg.describe(sb, depth+1)
	}
}

// Synthesizer produces structural witnesses without registry lookup.
type Synthesizer struct {
	hierarchy *Hierarchy
}

// NewSynthesizer creates a synthesizer deciding subtyping with h.
func NewSynthesizer(h *Hierarchy) *Synthesizer {
	if h == nil {
		h = NewHierarchy()
	}
	return &Synthesizer{hierarchy: h}
}

// TryStructural checks whether key is a built-in witness shape and, if so,
// whether the witness exists.
func (s *Synthesizer) TryStructural(key typekey.Key) (*Witness, Verdict) {
	if !IsWitnessShape(key) {
		return nil, NotApplicable
	}

	switch key.Name() {
	case EqName:
		a, b := key.Arg(0), key.Arg(1)
		if a != b {
			return nil, Refuted
		}
		return evidence(key, Equality{Type: a}), Proven

	case SubtypeOfName:
		sub, super := key.Arg(0), key.Arg(1)
		path := s.hierarchy.Path(sub, super)
		if path == nil {
			return nil, Refuted
		}
		return evidence(key, Subtyping{Sub: sub, Super: super, Path: path}), Proven

	case TypeDescriptorName:
		d, ok := DescriptorOf(key.Arg(0))
		if !ok {
			return nil, NotApplicable
		}
		return evidence(key, d), Proven
	}

	return nil, NotApplicable
}

func evidence(key typekey.Key, value any) *Witness {
	return &Witness{
		Key:   key,
		Value: value,
		Provenance: Provenance{
			Source: SourceEvidence,
			Label:  key.Name(),
		},
	}
}
