package guardrail

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// JSON Schemas for the three config columns. Kept permissive about
// variant-specific required fields (UnmarshalJSON enforces those) but
// strict about overall shape and the closed "type" vocabulary.
const (
	triggerSchema = `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"enum": ["always", "specific_tool", "tool_regex"]},
			"tool_name": {"type": "string"},
			"pattern": {"type": "string"}
		},
		"additionalProperties": false
	}`

	checkSchema = `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"enum": ["missing_values_any", "missing_values_column", "old_date_records", "llm_judge"]},
			"significant_fields": {"type": "array", "items": {"type": "string"}},
			"target_column": {"type": "string"},
			"date_threshold_days": {"type": "integer", "minimum": 0},
			"criterion": {"type": "string"}
		},
		"additionalProperties": false
	}`

	actionSchema = `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"enum": ["filter_records", "interrupt_agent"]}
		},
		"additionalProperties": false
	}`
)

var (
	schemaOnce     sync.Once
	compiledSchema map[string]*jsonschema.Schema
	schemaErr      error
)

func compileSchemas() {
	sources := map[string]string{
		"trigger": triggerSchema,
		"check":   checkSchema,
		"action":  actionSchema,
	}

	compiledSchema = make(map[string]*jsonschema.Schema, len(sources))
	c := jsonschema.NewCompiler()
	for field, src := range sources {
		var doc any
		if err := json.Unmarshal([]byte(src), &doc); err != nil {
			schemaErr = fmt.Errorf("compileSchemas: %s: %w", field, err)
			return
		}
		url := field + ".schema.json"
		if err := c.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("compileSchemas: %s: %w", field, err)
			return
		}
		sch, err := c.Compile(url)
		if err != nil {
			schemaErr = fmt.Errorf("compileSchemas: %s: %w", field, err)
			return
		}
		compiledSchema[field] = sch
	}
}

// validateSchema checks one raw config column against its schema.
func validateSchema(field string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &ConfigError{Field: field, Msg: "not valid JSON: " + err.Error()}
	}
	if err := compiledSchema[field].Validate(instance); err != nil {
		return &ConfigError{Field: field, Msg: err.Error()}
	}
	return nil
}
