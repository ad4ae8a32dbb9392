package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		sameScopeAmbiguityPolicy(),
		deadWitnessBindingPolicy(),
		conversionIdentityPolicy(),
		globalScopeRequiredPolicy(),
	}
}

// sameScopeAmbiguityPolicy flags scopes that bind one type more than once.
// Resolving that type through such a scope always fails as ambiguous.
func sameScopeAmbiguityPolicy() Policy {
	return Policy{
		Name:        "same-scope-ambiguity",
		Description: "Flags scopes that bind the same type more than once",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"bindings", "ambiguity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tdre.policies.ambiguity

import rego.v1

deny contains violation if {
	some scope in input.manifest.scopes
	some t in {b.type | some b in scope.bindings}
	labels := sort([b.label | some b in scope.bindings; b.type == t])
	count(labels) > 1

	violation := {
		"message": sprintf("Scope %s binds %s %d times (%s); resolving it through this scope is ambiguous", [scope.id, t, count(labels), concat(", ", labels)]),
		"severity": "warning",
		"scope": scope.id,
		"type": t,
		"remediation": "Keep one binding or move the others to separate scopes",
	}
}`,
	}
}

// deadWitnessBindingPolicy flags bindings for concrete witness shapes. The
// resolver answers those structurally and never consults the binding.
func deadWitnessBindingPolicy() Policy {
	return Policy{
		Name:        "dead-witness-binding",
		Description: "Flags bindings for Eq, SubtypeOf and TypeDescriptor keys that are never consulted",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"bindings", "evidence"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tdre.policies.witness

import rego.v1

deny contains violation if {
	some scope in input.manifest.scopes
	some b in scope.bindings
	b.witness

	violation := {
		"message": sprintf("Binding %s in scope %s is never used: %s witnesses are synthesized structurally", [b.label, scope.id, b.head]),
		"severity": "warning",
		"scope": scope.id,
		"type": b.type,
		"remediation": "Remove the binding; declare a subtype instead if SubtypeOf should hold",
	}
}`,
	}
}

// conversionIdentityPolicy rejects conversions from a type to itself. An
// exact binding always wins over coercion, so such a conversion can only
// hide a missing binding.
func conversionIdentityPolicy() Policy {
	return Policy{
		Name:        "conversion-identity",
		Description: "Rejects conversions whose source and target are the same type",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"conversions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tdre.policies.conversions

import rego.v1

deny contains violation if {
	some c in input.manifest.conversions
	c.from == c.to

	violation := {
		"message": sprintf("Conversion %s maps %s to itself", [c.label, c.from]),
		"severity": "error",
		"type": c.from,
		"remediation": "Remove the conversion",
	}
}`,
	}
}

// globalScopeRequiredPolicy notes manifests without a global scope.
func globalScopeRequiredPolicy() Policy {
	return Policy{
		Name:        "global-scope-required",
		Description: "Notes manifests that declare no global scope",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"scopes"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tdre.policies.scopes

import rego.v1

deny contains violation if {
	count([s | some s in input.manifest.scopes; s.kind == "global"]) == 0

	violation := {
		"message": sprintf("Manifest %s declares no global scope; chains must list every scope explicitly", [input.manifest.name]),
		"severity": "info",
	}
}`,
	}
}
