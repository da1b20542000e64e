package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for the claudia configuration file.
// Sections are closed; unknown top-level keys are allowed so extensions such
// as "logging" pass validation.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Unknown fields inside a section are typos.
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "Claudia Configuration"
	schema.Description = "Schema for claudia.yml / claudia.toml."
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.AdditionalProperties = jsonschema.TrueSchema

	return json.MarshalIndent(schema, "", "  ")
}
