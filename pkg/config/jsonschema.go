package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ManifestJSONSchemaID is the $id of the published manifest JSON Schema.
const ManifestJSONSchemaID = "https://openfroyo.dev/schemas/tdre/manifest.json"

// ManifestJSONSchema reflects the Manifest type into a JSON Schema document
// for editors and non-Go producers of manifests.
func ManifestJSONSchema() (*jsonschema.Schema, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
	}

	s := r.Reflect(new(Manifest))
	if s == nil {
		return nil, fmt.Errorf("failed to reflect manifest schema")
	}
	s.ID = jsonschema.ID(ManifestJSONSchemaID)
	s.Title = "TDRE registry manifest"

	return s, nil
}

// ManifestJSONSchemaBytes returns the indented JSON encoding of ManifestJSONSchema.
func ManifestJSONSchemaBytes() ([]byte, error) {
	s, err := ManifestJSONSchema()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(s, "", "  ")
}
