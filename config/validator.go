package config

import (
	"sync"

	"github.com/thisislance98/claudia/schema"
)

var (
	schemaOnce  sync.Once
	schemaBytes []byte
	schemaErr   error
)

// SchemaValidator validates raw configuration documents against the schema
// generated from Config.
type SchemaValidator struct {
	validator *schema.Validator
}

// NewSchemaValidator creates a validator for the generated schema. The schema
// is generated once per process.
func NewSchemaValidator() (*SchemaValidator, error) {
	schemaOnce.Do(func() {
		schemaBytes, schemaErr = GenerateSchema()
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	validator, err := schema.NewValidator(schemaBytes)
	if err != nil {
		return nil, err
	}
	return &SchemaValidator{validator: validator}, nil
}

// Validate validates configuration data against the schema.
func (v *SchemaValidator) Validate(configData interface{}) error {
	return v.validator.Validate(configData)
}
