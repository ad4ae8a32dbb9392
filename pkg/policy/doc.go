// Package policy lints registry manifests with Open Policy Agent (OPA)
// Rego policies.
//
// Policies see a canonical view of the manifest as input.manifest: every
// type key is parsed and re-rendered, bindings carry their effective label
// and a witness flag, and conversions carry their effective label. Each
// policy package defines a deny set of violation objects:
//
//	package custom.version
//
//	import rego.v1
//
//	deny contains violation if {
//	    not input.manifest.version
//	    violation := {
//	        "message": sprintf("Manifest %s has no version", [input.manifest.name]),
//	        "severity": "error",
//	    }
//	}
//
// Violation objects may also set "scope", "type" and "remediation".
//
// # Built-in Policies
//
//  1. same-scope-ambiguity (warning) - one scope binds a type more than once
//  2. dead-witness-binding (warning) - a binding for an Eq, SubtypeOf or
//     TypeDescriptor key the resolver answers structurally
//  3. conversion-identity (error) - a conversion from a type to itself
//  4. global-scope-required (info) - no scope of kind global
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := eng.Evaluate(ctx, lm.Manifest, &policy.PolicyContext{Source: lm.Source})
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// Violations of severity error or critical make a result disallowed.
//
// # Hot Reload
//
// WatchPolicies reloads custom policies when their files change. Built-in
// policies stay loaded unless a custom policy of the same name replaces them.
package policy
