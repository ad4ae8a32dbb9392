package engine

import (
	"fmt"
	"strings"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// Hierarchy holds declared subtype edges. Subtyping is reflexive and
// transitive over the declared edges; there is no variance, so List<Cat> is
// not a subtype of List<Animal> unless declared.
type Hierarchy struct {
	// supers maps a type to its declared direct supertypes
	supers map[typekey.Key][]typekey.Key

	// subs maps a type to its declared direct subtypes
	subs map[typekey.Key][]typekey.Key

	// order records types in first-declaration order
	order []typekey.Key

	edges int
}

// NewHierarchy creates an empty hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		supers: make(map[typekey.Key][]typekey.Key),
		subs:   make(map[typekey.Key][]typekey.Key),
	}
}

// declare adds sub <: super. Declaring a type a subtype of itself is a no-op
// and repeated declarations are ignored. An edge that would close a loop is
// rejected with the loop in the error.
func (h *Hierarchy) declare(sub, super typekey.Key) error {
	if sub.IsZero() || super.IsZero() {
		return NewInvalidError("subtype declaration with empty type key", nil)
	}
	if sub == super {
		return nil
	}
	for _, s := range h.supers[sub] {
		if s == super {
			return nil
		}
	}

	// super <: sub already holds, so sub <: super would make them a loop
	if path := h.path(super, sub); path != nil {
		cycle := append([]typekey.Key{sub}, path...)
		return NewInvalidError(
			fmt.Sprintf("circular subtype declaration: %s", formatKeyPath(cycle)),
			nil,
		).WithKey(sub)
	}

	h.track(sub)
	h.track(super)
	h.supers[sub] = append(h.supers[sub], super)
	h.subs[super] = append(h.subs[super], sub)
	h.edges++
	return nil
}

func (h *Hierarchy) track(k typekey.Key) {
	if _, ok := h.supers[k]; ok {
		return
	}
	if _, ok := h.subs[k]; ok {
		return
	}
	h.order = append(h.order, k)
	h.supers[k] = nil
}

// IsSubtype reports whether sub <: super.
func (h *Hierarchy) IsSubtype(sub, super typekey.Key) bool {
	return h.path(sub, super) != nil
}

// Path returns the shortest chain of declared edges from sub to super,
// including both ends, or nil if sub is not a subtype of super. Ties are
// broken by declaration order.
func (h *Hierarchy) Path(sub, super typekey.Key) []typekey.Key {
	return h.path(sub, super)
}

func (h *Hierarchy) path(sub, super typekey.Key) []typekey.Key {
	if sub == super {
		return []typekey.Key{sub}
	}

	prev := map[typekey.Key]typekey.Key{sub: {}}
	queue := []typekey.Key{sub}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range h.supers[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == super {
				return unwindPath(prev, sub, super)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func unwindPath(prev map[typekey.Key]typekey.Key, from, to typekey.Key) []typekey.Key {
	var rev []typekey.Key
	for k := to; k != from; k = prev[k] {
		rev = append(rev, k)
	}
	rev = append(rev, from)

	path := make([]typekey.Key, len(rev))
	for i, k := range rev {
		path[len(rev)-1-i] = k
	}
	return path
}

// Supertypes returns the declared direct supertypes of k.
func (h *Hierarchy) Supertypes(k typekey.Key) []typekey.Key {
	return append([]typekey.Key(nil), h.supers[k]...)
}

// Types returns every type mentioned in a declaration, in declaration order.
func (h *Hierarchy) Types() []typekey.Key {
	return append([]typekey.Key(nil), h.order...)
}

// Len returns the number of declared edges.
func (h *Hierarchy) Len() int {
	return h.edges
}

// Levels groups types by depth: level 0 holds types with no declared
// supertype, level n holds types all of whose supertypes sit above n.
func (h *Hierarchy) Levels() [][]typekey.Key {
	// Kahn's algorithm over super -> sub edges
	inDegree := make(map[typekey.Key]int, len(h.order))
	current := make([]typekey.Key, 0)
	for _, k := range h.order {
		inDegree[k] = len(h.supers[k])
		if inDegree[k] == 0 {
			current = append(current, k)
		}
	}

	var levels [][]typekey.Key
	for len(current) > 0 {
		levels = append(levels, current)
		next := make([]typekey.Key, 0)
		for _, k := range current {
			for _, sub := range h.subs[k] {
				inDegree[sub]--
				if inDegree[sub] == 0 {
					next = append(next, sub)
				}
			}
		}
		current = next
	}
	return levels
}

// ToDOT generates a DOT representation of the hierarchy with edges pointing
// from subtype to supertype. The output can be rendered with Graphviz.
func (h *Hierarchy) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph TypeHierarchy {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, keys := range h.Levels() {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    %q;\n", k.String()))
		}
		sb.WriteString("  }\n\n")
	}

	for _, sub := range h.order {
		for _, super := range h.supers[sub] {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", sub.String(), super.String()))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
