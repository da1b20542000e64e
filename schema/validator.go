// Package schema validates decoded documents against a JSON Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resourceName = "claudia.schema.json"

// Issue is one schema violation. Path is a JSON pointer into the document,
// "" for the document root.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		path := is.Path
		if path == "" {
			path = "/"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", path, is.Message))
	}
	return "schema validation failed:\n" + strings.Join(lines, "\n")
}

// Validator validates documents against a compiled JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schemaJSON as draft 7.
func NewValidator(schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(resourceName, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks doc, which may be a struct or a decoded YAML/TOML map.
// Violations are returned as a *ValidationError.
func (v *Validator) Validate(doc interface{}) error {
	// The compiler only understands JSON value types, so YAML integers and
	// typed structs are normalized through encoding/json.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document for validation: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return fmt.Errorf("failed to decode document for validation: %w", err)
	}

	err = v.schema.Validate(normalized)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return &ValidationError{Issues: leafIssues(verr)}
}

// leafIssues flattens the cause tree, keeping the most specific messages.
func leafIssues(root *jsonschema.ValidationError) []Issue {
	seen := make(map[Issue]bool)
	var issues []Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			is := Issue{Path: e.InstanceLocation, Message: e.Message}
			if !seen[is] {
				seen[is] = true
				issues = append(issues, is)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(root)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}
