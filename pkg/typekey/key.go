package typekey

import (
	"strings"
	"sync"
	"unicode"
)

// KeyKind distinguishes the three shapes a type key can take.
type KeyKind int

const (
	// KindInvalid is the kind of the zero Key.
	KindInvalid KeyKind = iota

	// KindConstructor is a ground, unparameterized type such as Int.
	KindConstructor

	// KindApplication is a constructor applied to arguments such as List<Int>.
	KindApplication

	// KindParameter is a generic type parameter such as ?A.
	KindParameter
)

// String returns the kind name.
func (k KeyKind) String() string {
	switch k {
	case KindConstructor:
		return "constructor"
	case KindApplication:
		return "application"
	case KindParameter:
		return "parameter"
	default:
		return "invalid"
	}
}

// Key is a canonical, comparable identifier for a type.
//
// Keys are interned: two keys compare equal with == iff they have the same
// kind, name and arguments, so a Key can be used directly as a map key.
// The zero Key is invalid.
type Key struct {
	n *node
}

type node struct {
	kind  KeyKind
	name  string
	args  []Key
	canon string
}

// identity is the interning key. Arguments are already interned, so their
// canonical strings identify them.
type identity struct {
	kind  KeyKind
	canon string
}

var interned sync.Map // identity -> *node

func intern(kind KeyKind, name string, args []Key) Key {
	id := identity{kind: kind, canon: render(kind, name, args)}
	if n, ok := interned.Load(id); ok {
		return Key{n: n.(*node)}
	}
	fresh := &node{
		kind:  kind,
		name:  name,
		args:  append([]Key(nil), args...),
		canon: id.canon,
	}
	actual, _ := interned.LoadOrStore(id, fresh)
	return Key{n: actual.(*node)}
}

func render(kind KeyKind, name string, args []Key) string {
	switch kind {
	case KindParameter:
		return "?" + name
	case KindApplication:
		var sb strings.Builder
		sb.WriteString(name)
		sb.WriteByte('<')
		for i, a := range args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
		sb.WriteByte('>')
		return sb.String()
	default:
		return name
	}
}

// ValidName reports whether name is a legal constructor or parameter name:
// a letter followed by letters, digits, '_' or '.'.
func ValidName(name string) bool {
	for i, r := range name {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '_' || r == '.'):
		default:
			return false
		}
	}
	return name != ""
}

// Con returns the key of a ground type constructor, or the zero Key if name
// is not a valid name.
func Con(name string) Key {
	if !ValidName(name) {
		return Key{}
	}
	return intern(KindConstructor, name, nil)
}

// App returns the key of ctor applied to args. With no args it is Con(ctor).
// It returns the zero Key if ctor is not a valid name or any argument is
// the zero Key.
func App(ctor string, args ...Key) Key {
	if len(args) == 0 {
		return Con(ctor)
	}
	if !ValidName(ctor) {
		return Key{}
	}
	for _, a := range args {
		if a.IsZero() {
			return Key{}
		}
	}
	return intern(KindApplication, ctor, args)
}

// Param returns the key of the generic type parameter ?name, or the zero
// Key if name is not a valid name.
func Param(name string) Key {
	if !ValidName(name) {
		return Key{}
	}
	return intern(KindParameter, name, nil)
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.n == nil
}

// Kind returns the shape of the key.
func (k Key) Kind() KeyKind {
	if k.n == nil {
		return KindInvalid
	}
	return k.n.kind
}

// Name returns the constructor or parameter name.
func (k Key) Name() string {
	if k.n == nil {
		return ""
	}
	return k.n.name
}

// Args returns a copy of the type arguments of an application.
func (k Key) Args() []Key {
	if k.n == nil || len(k.n.args) == 0 {
		return nil
	}
	return append([]Key(nil), k.n.args...)
}

// Arity returns the number of type arguments.
func (k Key) Arity() int {
	if k.n == nil {
		return 0
	}
	return len(k.n.args)
}

// Arg returns the i-th type argument, or the zero Key if k has no such
// argument.
func (k Key) Arg(i int) Key {
	if i < 0 || i >= k.Arity() {
		return Key{}
	}
	return k.n.args[i]
}

// String returns the canonical rendering.
func (k Key) String() string {
	if k.n == nil {
		return "<invalid>"
	}
	return k.n.canon
}

// IsConcrete reports whether k contains no generic parameters.
func (k Key) IsConcrete() bool {
	switch k.Kind() {
	case KindConstructor:
		return true
	case KindApplication:
		for _, a := range k.n.args {
			if !a.IsConcrete() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Params returns the distinct generic parameters of k in first-occurrence order.
func (k Key) Params() []Key {
	var out []Key
	seen := make(map[Key]bool)
	var walk func(Key)
	walk = func(t Key) {
		switch t.Kind() {
		case KindParameter:
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		case KindApplication:
			for _, a := range t.n.args {
				walk(a)
			}
		}
	}
	walk(k)
	return out
}

// Substitute replaces generic parameters according to subst.
func (k Key) Substitute(subst map[Key]Key) Key {
	switch k.Kind() {
	case KindParameter:
		if r, ok := subst[k]; ok {
			return r
		}
		return k
	case KindApplication:
		args := make([]Key, len(k.n.args))
		for i, a := range k.n.args {
			args[i] = a.Substitute(subst)
		}
		return App(k.n.name, args...)
	default:
		return k
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
