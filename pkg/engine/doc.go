// Package engine implements type-directed resolution: given a requested type
// key, find or synthesize exactly one value for it.
//
// # Overview
//
// Resolution runs against a Registry that is built once and then frozen:
//
//  1. Build - declare scopes, register bindings, declare subtypes and
//     register conversions (Registry)
//  2. Freeze - the registry becomes read-only (Registry.Freeze)
//  3. Resolve - any number of goroutines answer Requests (Resolver)
//
// # Resolution Order
//
// For each Request the Resolver applies, stopping at the first outcome:
//
//   - Cycle guard: a key already in progress fails with KindCyclicResolution
//   - Structural evidence: Eq<A, B>, SubtypeOf<A, B> and TypeDescriptor<A>
//     are decided by built-in rules and never looked up. A refuted witness
//     shape such as Eq<Int, String> fails with KindNotFound without
//     reaching the registry, so bindings can never make it ambiguous.
//   - Scope chain: scopes are searched innermost first and the first scope
//     with any candidate decides. One candidate wins; more than one fails
//     with KindAmbiguousBinding. Outer scopes are never consulted after that.
//   - Conversion: when Request.Coerce is set, one registered conversion from
//     Request.Source to the target may be applied. Conversions never chain.
//
// Anything else fails with KindNotFound.
//
// # Explicit Values
//
// A call site that already holds a value uses Explicit and Supply. That path
// never reaches the resolver and is never checked for ambiguity.
//
// # Example
//
//	reg := engine.NewRegistry()
//	_ = reg.DeclareScope(engine.Scope{ID: "global", Kind: engine.ScopeGlobal})
//	_ = reg.Register("global", engine.Value(typekey.Con("Rate"), "default-rate", 100))
//	reg.Freeze()
//
//	r := engine.NewResolver(reg)
//	w, err := r.Resolve(ctx, engine.Request{
//	    Target: typekey.Con("Rate"),
//	    Chain:  []engine.ScopeID{"global"},
//	})
//
// # Errors
//
// Every failure is a *ResolutionError. Use errors.Is with the package
// sentinels (ErrNotFound, ErrAmbiguousBinding, ...) or the IsXxx helpers.
// A factory may return a sentinel or any other shared error; the resolver
// adds its path to a copy and leaves the original untouched.
// IsMisuse reports violations of the build/freeze protocol.
package engine
