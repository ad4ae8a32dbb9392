package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/tdre/pkg/typekey"
)

// ErrorKind classifies a resolution or registry failure.
type ErrorKind string

const (
	// KindNotFound means no structural witness, no scoped binding and no
	// applicable single-hop conversion exists for the target.
	KindNotFound ErrorKind = "not_found"

	// KindAmbiguousBinding means the first scope with candidates held more
	// than one of them.
	KindAmbiguousBinding ErrorKind = "ambiguous_binding"

	// KindAmbiguousConversion means a second conversion was registered for an
	// existing (source, target) pair. Raised at build time only.
	KindAmbiguousConversion ErrorKind = "ambiguous_conversion"

	// KindCyclicResolution means a binding transitively required its own key.
	KindCyclicResolution ErrorKind = "cyclic_resolution"

	// KindRegistryFrozen means a mutation was attempted after Freeze.
	KindRegistryFrozen ErrorKind = "registry_frozen"

	// KindRegistryNotReady means a resolution was attempted before Freeze.
	KindRegistryNotReady ErrorKind = "registry_not_ready"

	// KindFactoryFailed means a binding factory or conversion function
	// returned an error of its own.
	KindFactoryFailed ErrorKind = "factory_failed"

	// KindInvalid means a build-time argument was rejected (unknown scope,
	// zero key, missing factory, cyclic subtype declaration).
	KindInvalid ErrorKind = "invalid"
)

// ResolutionError is the single error type returned by the engine.
// nolint:revive // ResolutionError reads better than Error at call sites
type ResolutionError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Key is the type key being resolved or registered, if any.
	Key typekey.Key `json:"key,omitempty"`

	// Candidates lists the competing bindings for KindAmbiguousBinding.
	Candidates []Provenance `json:"candidates,omitempty"`

	// Cycle is the key path that closed a loop for KindCyclicResolution.
	Cycle []typekey.Key `json:"cycle,omitempty"`

	// Path is the chain of enclosing resolutions, outermost first.
	Path []typekey.Key `json:"path,omitempty"`

	// Err is the underlying cause, e.g. a factory failure.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind, e.Message))

	if !e.Key.IsZero() {
		sb.WriteString(fmt.Sprintf(" (key=%s)", e.Key))
	}
	if len(e.Candidates) > 0 {
		labels := make([]string, len(e.Candidates))
		for i, c := range e.Candidates {
			labels[i] = c.String()
		}
		sb.WriteString(": candidates ")
		sb.WriteString(strings.Join(labels, ", "))
	}
	if len(e.Cycle) > 0 {
		sb.WriteString(": ")
		sb.WriteString(formatKeyPath(e.Cycle))
	}
	if len(e.Path) > 0 {
		sb.WriteString(" [via ")
		sb.WriteString(formatKeyPath(e.Path))
		sb.WriteString("]")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is matches any *ResolutionError of the same kind, so the package-level
// sentinels work with errors.Is.
func (e *ResolutionError) Is(target error) bool {
	t, ok := target.(*ResolutionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithKey adds the type key to an error.
func (e *ResolutionError) WithKey(key typekey.Key) *ResolutionError {
	e.Key = key
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ResolutionError) WithDetail(key string, value interface{}) *ResolutionError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is. They carry no context.
var (
	ErrNotFound            = &ResolutionError{Kind: KindNotFound, Message: "no binding found"}
	ErrAmbiguousBinding    = &ResolutionError{Kind: KindAmbiguousBinding, Message: "ambiguous binding"}
	ErrAmbiguousConversion = &ResolutionError{Kind: KindAmbiguousConversion, Message: "ambiguous conversion"}
	ErrCyclicResolution    = &ResolutionError{Kind: KindCyclicResolution, Message: "cyclic resolution"}
	ErrRegistryFrozen      = &ResolutionError{Kind: KindRegistryFrozen, Message: "registry is frozen"}
	ErrRegistryNotReady    = &ResolutionError{Kind: KindRegistryNotReady, Message: "registry is not frozen"}
	ErrFactoryFailed       = &ResolutionError{Kind: KindFactoryFailed, Message: "factory failed"}
	ErrInvalid             = &ResolutionError{Kind: KindInvalid, Message: "invalid argument"}
)

// NewNotFoundError creates a not-found error for key.
func NewNotFoundError(key typekey.Key, message string) *ResolutionError {
	return &ResolutionError{Kind: KindNotFound, Message: message, Key: key}
}

// NewAmbiguousBindingError creates an ambiguity error listing every candidate.
func NewAmbiguousBindingError(key typekey.Key, candidates []Provenance) *ResolutionError {
	return &ResolutionError{
		Kind:       KindAmbiguousBinding,
		Message:    fmt.Sprintf("%d candidates in scope %s", len(candidates), candidates[0].ScopeID),
		Key:        key,
		Candidates: candidates,
	}
}

// NewAmbiguousConversionError creates a build-time duplicate conversion error.
func NewAmbiguousConversionError(source, target typekey.Key, existing string) *ResolutionError {
	return (&ResolutionError{
		Kind:    KindAmbiguousConversion,
		Message: fmt.Sprintf("conversion %s -> %s already registered as %q", source, target, existing),
		Key:     target,
	}).WithDetail("source", source.String())
}

// NewCyclicResolutionError creates a cycle error; cycle starts and ends with key.
func NewCyclicResolutionError(key typekey.Key, cycle []typekey.Key) *ResolutionError {
	return &ResolutionError{
		Kind:    KindCyclicResolution,
		Message: "binding requires its own key",
		Key:     key,
		Cycle:   cycle,
	}
}

// NewRegistryFrozenError creates a protocol misuse error for late mutation.
func NewRegistryFrozenError(operation string) *ResolutionError {
	return &ResolutionError{
		Kind:    KindRegistryFrozen,
		Message: fmt.Sprintf("cannot %s after freeze", operation),
	}
}

// NewRegistryNotReadyError creates a protocol misuse error for early resolution.
func NewRegistryNotReadyError(key typekey.Key) *ResolutionError {
	return &ResolutionError{
		Kind:    KindRegistryNotReady,
		Message: "resolve called before freeze",
		Key:     key,
	}
}

// NewFactoryFailedError wraps an error returned by user code.
func NewFactoryFailedError(key typekey.Key, message string, err error) *ResolutionError {
	return &ResolutionError{Kind: KindFactoryFailed, Message: message, Key: key, Err: err}
}

// NewInvalidError creates a build-time validation error.
func NewInvalidError(message string, err error) *ResolutionError {
	return &ResolutionError{Kind: KindInvalid, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" if err is not a *ResolutionError.
func KindOf(err error) ErrorKind {
	var e *ResolutionError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsAmbiguousBinding returns true if the error is a same-scope ambiguity.
func IsAmbiguousBinding(err error) bool {
	return KindOf(err) == KindAmbiguousBinding
}

// IsAmbiguousConversion returns true if the error is a duplicate conversion.
func IsAmbiguousConversion(err error) bool {
	return KindOf(err) == KindAmbiguousConversion
}

// IsCyclicResolution returns true if the error is a resolution cycle.
func IsCyclicResolution(err error) bool {
	return KindOf(err) == KindCyclicResolution
}

// IsMisuse returns true if the error signals a build/freeze protocol
// violation by the embedding application.
func IsMisuse(err error) bool {
	k := KindOf(err)
	return k == KindRegistryFrozen || k == KindRegistryNotReady
}

// formatKeyPath formats a key path for error messages.
func formatKeyPath(path []typekey.Key) string {
	parts := make([]string, len(path))
	for i, k := range path {
		parts[i] = k.String()
	}
	return strings.Join(parts, " -> ")
}
