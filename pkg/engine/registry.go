package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// Option configures a Registry or a Resolver.
type Option func(*settings)

type settings struct {
	logger   zerolog.Logger
	observer Observer
}

func newSettings(opts []Option) settings {
	s := settings{logger: zerolog.Nop(), observer: nopObserver{}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger used for debug events. The default discards
// everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithObserver installs an observer notified of every top-level resolution.
// Only resolvers use it.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// Registry holds scopes, bindings, subtype declarations and conversions.
//
// A registry is built by a single writer and then frozen. Mutations after
// Freeze fail with KindRegistryFrozen; resolutions before Freeze fail with
// KindRegistryNotReady. Once frozen, every table is read without locks.
type Registry struct {
	mu     sync.Mutex
	frozen atomic.Bool

	scopes     map[ScopeID]Scope
	scopeOrder []ScopeID
	bindings   map[ScopeID]map[typekey.Key][]Binding
	registered map[ScopeID][]Binding
	count      int

	hierarchy   *Hierarchy
	conversions *ConversionIndex
	evidence    *Synthesizer

	snapshotID string
	frozenAt   time.Time

	logger zerolog.Logger
}

// NewRegistry acquires an empty registry in the build phase.
func NewRegistry(opts ...Option) *Registry {
	s := newSettings(opts)
	h := NewHierarchy()
	return &Registry{
		scopes:      make(map[ScopeID]Scope),
		bindings:    make(map[ScopeID]map[typekey.Key][]Binding),
		registered:  make(map[ScopeID][]Binding),
		hierarchy:   h,
		conversions: NewConversionIndex(),
		evidence:    NewSynthesizer(h),
		logger:      s.logger.With().Str("component", "registry").Logger(),
	}
}

// DeclareScope adds a scope. Scope ids are unique.
func (r *Registry) DeclareScope(scope Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return NewRegistryFrozenError("declare scope")
	}
	if scope.ID == "" {
		return NewInvalidError("scope has empty ID", nil)
	}
	if !scope.Kind.Valid() {
		return NewInvalidError(fmt.Sprintf("scope %s has unknown kind %q", scope.ID, scope.Kind), nil)
	}
	if _, exists := r.scopes[scope.ID]; exists {
		return NewInvalidError(fmt.Sprintf("duplicate scope ID: %s", scope.ID), nil)
	}

	r.scopes[scope.ID] = scope
	r.scopeOrder = append(r.scopeOrder, scope.ID)
	r.bindings[scope.ID] = make(map[typekey.Key][]Binding)

	r.logger.Debug().
		Str("scope", string(scope.ID)).
		Str("kind", string(scope.Kind)).
		Msg("Scope declared")
	return nil
}

// Register adds b to the scope. An empty label defaults to the key.
func (r *Registry) Register(scopeID ScopeID, b Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return NewRegistryFrozenError("register binding")
	}
	if b.Key.IsZero() {
		return NewInvalidError("binding has empty type key", nil)
	}
	if b.Factory == nil {
		return NewInvalidError("binding has no factory", nil).WithKey(b.Key)
	}
	table, ok := r.bindings[scopeID]
	if !ok {
		return NewInvalidError(fmt.Sprintf("unknown scope: %s", scopeID), nil).WithKey(b.Key)
	}

	if b.Label == "" {
		b.Label = b.Key.String()
	}
	b.scope = scopeID
	table[b.Key] = append(table[b.Key], b)
	r.registered[scopeID] = append(r.registered[scopeID], b)
	r.count++

	r.logger.Debug().
		Str("scope", string(scopeID)).
		Stringer("key", b.Key).
		Str("label", b.Label).
		Msg("Binding registered")
	return nil
}

// DeclareSubtype records sub <: super for SubtypeOf evidence.
func (r *Registry) DeclareSubtype(sub, super typekey.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return NewRegistryFrozenError("declare subtype")
	}
	return r.hierarchy.declare(sub, super)
}

// RegisterConversion adds a single-hop conversion. A second conversion for
// the same (source, target) pair fails with KindAmbiguousConversion.
func (r *Registry) RegisterConversion(source, target typekey.Key, convert ConvertFunc, opts ...ConversionOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return NewRegistryFrozenError("register conversion")
	}

	entry := ConversionEntry{Source: source, Target: target, Convert: convert}
	for _, opt := range opts {
		opt(&entry)
	}
	return r.conversions.register(entry)
}

// Freeze ends the build phase. It is idempotent; only the first call stamps
// a snapshot id.
func (r *Registry) Freeze() {
	if r.frozen.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return
	}

	r.snapshotID = uuid.NewString()
	r.frozenAt = time.Now().UTC()
	r.frozen.Store(true)

	r.logger.Debug().
		Str("snapshot", r.snapshotID).
		Int("scopes", len(r.scopeOrder)).
		Int("bindings", r.count).
		Int("conversions", r.conversions.Len()).
		Int("subtypes", r.hierarchy.Len()).
		Msg("Registry frozen")
}

// IsFrozen reports whether Freeze has been called.
func (r *Registry) IsFrozen() bool {
	return r.frozen.Load()
}

// SnapshotID identifies the frozen snapshot. It is empty before Freeze.
func (r *Registry) SnapshotID() string {
	if !r.frozen.Load() {
		return ""
	}
	return r.snapshotID
}

// FrozenAt returns when Freeze was first called.
func (r *Registry) FrozenAt() time.Time {
	if !r.frozen.Load() {
		return time.Time{}
	}
	return r.frozenAt
}

// read runs fn under the build lock unless the registry is frozen.
func (r *Registry) read(fn func()) {
	if r.frozen.Load() {
		fn()
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// CandidatesAt returns the bindings for key in exactly that scope, in
// registration order.
func (r *Registry) CandidatesAt(scopeID ScopeID, key typekey.Key) []Binding {
	var out []Binding
	r.read(func() {
		out = append(out, r.bindings[scopeID][key]...)
	})
	return out
}

// Scope returns the scope declared under id.
func (r *Registry) Scope(id ScopeID) (Scope, bool) {
	var s Scope
	var ok bool
	r.read(func() {
		s, ok = r.scopes[id]
	})
	return s, ok
}

// Scopes returns all scopes in declaration order.
func (r *Registry) Scopes() []Scope {
	var out []Scope
	r.read(func() {
		out = make([]Scope, 0, len(r.scopeOrder))
		for _, id := range r.scopeOrder {
			out = append(out, r.scopes[id])
		}
	})
	return out
}

// Bindings returns every binding of a scope in registration order.
func (r *Registry) Bindings(scopeID ScopeID) []Binding {
	var out []Binding
	r.read(func() {
		out = append(out, r.registered[scopeID]...)
	})
	return out
}

// FindConversion returns the conversion for (source, target), if any.
func (r *Registry) FindConversion(source, target typekey.Key) (ConversionEntry, bool) {
	var e ConversionEntry
	var ok bool
	r.read(func() {
		e, ok = r.conversions.Find(source, target)
	})
	return e, ok
}

// Conversions returns every conversion in registration order.
func (r *Registry) Conversions() []ConversionEntry {
	var out []ConversionEntry
	r.read(func() {
		out = r.conversions.Entries()
	})
	return out
}

// TryStructural asks the evidence synthesizer about key.
func (r *Registry) TryStructural(key typekey.Key) (*Witness, Verdict) {
	var w *Witness
	var v Verdict
	r.read(func() {
		w, v = r.evidence.TryStructural(key)
	})
	return w, v
}

// Hierarchy returns the subtype hierarchy. It must not be read concurrently
// with DeclareSubtype.
func (r *Registry) Hierarchy() *Hierarchy {
	return r.hierarchy
}

// Stats summarizes the registry contents.
type Stats struct {
	SnapshotID      string            `json:"snapshot_id,omitempty"`
	Scopes          int               `json:"scopes"`
	Bindings        int               `json:"bindings"`
	BindingsByScope map[ScopeID]int   `json:"bindings_by_scope"`
	BindingsByKind  map[ScopeKind]int `json:"bindings_by_kind"`
	Conversions     int               `json:"conversions"`
	Subtypes        int               `json:"subtypes"`
}

// Stats returns counts of everything registered.
func (r *Registry) Stats() Stats {
	var st Stats
	r.read(func() {
		st = Stats{
			SnapshotID:      r.snapshotID,
			Scopes:          len(r.scopeOrder),
			Bindings:        r.count,
			BindingsByScope: make(map[ScopeID]int, len(r.scopeOrder)),
			BindingsByKind:  make(map[ScopeKind]int),
			Conversions:     r.conversions.Len(),
			Subtypes:        r.hierarchy.Len(),
		}
		for _, id := range r.scopeOrder {
			n := len(r.registered[id])
			st.BindingsByScope[id] = n
			st.BindingsByKind[r.scopes[id].Kind] += n
		}
	})
	return st
}
