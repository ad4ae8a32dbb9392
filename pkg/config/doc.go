// Package config loads registry manifests and builds frozen resolution
// registries from them.
//
// # Overview
//
// A manifest declares the scopes of a registry, the bindings each scope
// holds, the subtype relation and the conversions between types. Manifests
// can be written in YAML, JSON, CUE or HCL; every format decodes into the
// same Manifest type and passes through the same validation before Build
// turns it into an engine.Registry.
//
// # Components
//
// Loader: Detects the format from the file extension, decodes it and runs
// struct tag validation, structural checks and the built-in CUE schema.
// Failures are reported as a *ManifestError carrying every problem found.
//
// SchemaRegistry: Holds the CUE definitions manifests are checked against.
// Custom schemas can be registered next to the built-in ones.
//
// StarlarkEvaluator: Compiles binding and conversion expressions. Binding
// expressions call resolve("Key") to request other types through the
// resolver; conversion expressions see the source value as value.
//
// Watcher: Rebuilds the registry when the manifest changes on disk and
// publishes the result through Live.
//
// # Manifest Structure
//
//	name: billing
//	version: "1.0"
//	scopes:
//	  - id: global
//	    kind: global
//	    bindings:
//	      - type: Rate
//	        label: default-rate
//	        value: 50
//	      - type: Fee
//	        expr: 'resolve("Rate") * 2'
//	subtypes:
//	  - sub: Int
//	    super: Number
//	conversions:
//	  - from: Int
//	    to: Float
//	    expr: float(value)
//
// # Usage Example
//
//	lm, err := config.NewLoader().Load(ctx, "billing.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg, err := config.Build(ctx, lm.Manifest)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := engine.NewResolver(reg).Resolve(ctx, engine.Request{
//	    Target: typekey.Con("Fee"),
//	    Chain:  []engine.ScopeID{"global"},
//	})
//
// # Error Handling
//
// Validation errors include the location when the format provides one:
//
//	ValidationError{
//	    File: "billing.hcl",
//	    Line: 4,
//	    Column: 3,
//	    Path: "scopes[0].bindings[1].type",
//	    Message: "invalid type key",
//	    Severity: "error",
//	}
//
// # Security
//
// Starlark expressions run without filesystem or network access, with a
// step limit and print suppressed. A canceled resolution context cancels
// the running expression.
//
// # Thread Safety
//
// Loader, SchemaRegistry, StarlarkEvaluator and Live are safe for
// concurrent use. A Watcher must only be run once.
package config
