package validation

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// candidateSchema is the minimal shape a model-proposed task must have to
// be worth coercing. Only title is required; every other field is
// defensively defaulted downstream, so the schema stays permissive on
// types the coercion layer can repair.
const candidateSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "description": {"type": ["string", "null"]},
    "tags": {"type": ["array", "null"]}
  },
  "required": ["title"]
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		loader := gojsonschema.NewStringLoader(candidateSchema)
		schema, schemaErr = gojsonschema.NewSchema(loader)
	})
	return schema, schemaErr
}

// ValidateCandidate checks one decoded candidate payload against the
// schema. A failing candidate is dropped by the caller, never propagated
// as a batch error.
func ValidateCandidate(payload map[string]interface{}) error {
	s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("failed to load candidate schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("failed to validate candidate: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("candidate validation failed: %v", errs)
	}
	return nil
}
