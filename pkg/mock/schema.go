package mock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RuleSetSchema is the JSON Schema of a persisted rule file: a JSON array of rules.
const RuleSetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "url", "method"],
    "properties": {
      "id":       {"type": "string", "minLength": 1},
      "url":      {"type": "string", "minLength": 1},
      "method":   {"type": "string", "minLength": 1},
      "response": true,
      "enabled":  {"type": "boolean"},
      "delay":    {"type": "integer", "minimum": 0},
      "status":   {"type": "integer", "minimum": 100, "maximum": 599},
      "headers":  {"type": "object", "additionalProperties": {"type": "string"}},
      "dynamic":  {"type": "boolean"}
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func ruleSetSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("rules.schema.json", strings.NewReader(RuleSetSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("rules.schema.json")
	})
	return compiledSchema, schemaErr
}

// ValidateRuleSetJSON checks raw rule file bytes against RuleSetSchema.
func ValidateRuleSetJSON(data []byte) error {
	schema, err := ruleSetSchema()
	if err != nil {
		return fmt.Errorf("compiling rule schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// ParseRuleSet validates and decodes a JSON rule file.
// Methods are normalized and an omitted status defaults to 200.
func ParseRuleSet(data []byte) ([]*Rule, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []*Rule{}, nil
	}
	if err := ValidateRuleSetJSON(data); err != nil {
		return nil, err
	}
	var rules []*Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	for _, r := range rules {
		r.Method = r.NormalizedMethod()
		if r.Status == 0 {
			r.Status = http.StatusOK
		}
		if r.Headers == nil {
			r.Headers = map[string]string{}
		}
	}
	return rules, nil
}
