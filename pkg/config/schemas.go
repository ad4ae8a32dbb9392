package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	for name, def := range map[string]string{
		"manifest":   "#Manifest",
		"scope":      "#Scope",
		"binding":    "#Binding",
		"subtype":    "#Subtype",
		"conversion": "#Conversion",
	} {
		if err := sr.RegisterSchema(name, def, builtinManifestSchema); err != nil {
			panic(fmt.Sprintf("built-in schema %s: %v", name, err))
		}
	}
}

// RegisterSchema compiles source and registers the definition it names
// (e.g., "#Manifest") under name.
func (sr *SchemaRegistry) RegisterSchema(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s: definition %s not found", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateManifest validates a decoded manifest against the #Manifest schema.
func (sr *SchemaRegistry) ValidateManifest(ctx context.Context, m *Manifest, file string) []ValidationError {
	schema, _ := sr.GetSchema("manifest")

	dataVal := sr.ctx.Encode(m)
	if err := dataVal.Err(); err != nil {
		return cueValidationErrors(err, file)
	}

	if err := schema.Unify(dataVal).Validate(cue.Concrete(true)); err != nil {
		return cueValidationErrors(err, file)
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ManifestSchemaSource returns the CUE source of the built-in manifest schema.
func ManifestSchemaSource() string {
	return builtinManifestSchema
}

const builtinManifestSchema = `
// Manifest describes one registry build.
#Manifest: {
	name:         string & =~"^[a-zA-Z0-9_.-]+$"
	version?:     string
	scopes:       [#Scope, ...#Scope]
	subtypes?:    [...#Subtype]
	conversions?: [...#Conversion]
}

#ScopeKind: "local-block" | "type-companion" | "imported-namespace" | "global"

// Scope holds bindings; resolution chains name scopes by id.
#Scope: {
	id:        string & !=""
	kind:      #ScopeKind
	bindings?: [...#Binding]
}

// Binding sets either a literal value or a Starlark expr.
#Binding: {
	type:   string & !=""
	label?: string
	value?: _
	expr?:  string & !=""
}

#Subtype: {
	sub:   string & !=""
	super: string & !=""
}

#Conversion: {
	from:      string & !=""
	to:        string & !=""
	label?:    string
	expr:      string & !=""
	requires?: [...string]
}
`
