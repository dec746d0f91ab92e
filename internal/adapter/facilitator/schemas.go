package facilitator

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Response schema names.
const (
	schemaPaymentResult = "payment_result"
	schemaBalance       = "balance"
	schemaHistory       = "history"
	schemaRegistration  = "registration"
	schemaObject        = "object"
)

// Schemas are deliberately loose: they pin the fields the tools render and
// let everything else through.
var responseSchemas = map[string]string{
	schemaPaymentResult: `{
		"type": "object",
		"required": ["success"],
		"properties": {
			"success": {"type": "boolean"},
			"txHash": {"type": ["string", "null"]},
			"commissionRate": {"type": ["number", "null"]},
			"commissionAmount": {"type": ["number", "string", "null"]},
			"network": {"type": ["string", "null"]},
			"error": {"type": ["string", "null"]}
		}
	}`,
	schemaBalance: `{
		"type": "object",
		"required": ["trustLevel", "dailySpentUsd", "dailyLimitUsd", "dailyRemainingUsd"],
		"properties": {
			"botId": {"type": "string"},
			"trustLevel": {"type": "number"},
			"trustLevelName": {"type": "string"},
			"dailySpentUsd": {"type": "number"},
			"dailyLimitUsd": {"type": "number"},
			"dailyRemainingUsd": {"type": "number"},
			"hourlyTransactions": {"type": "number"},
			"hourlyLimit": {"type": "number"}
		}
	}`,
	schemaHistory: `{
		"$defs": {
			"event": {
				"type": "object",
				"required": ["eventType", "action", "timestamp"],
				"properties": {
					"eventType": {"type": "string"},
					"action": {"type": "string"},
					"timestamp": {"type": ["number", "string"]}
				}
			}
		},
		"oneOf": [
			{"type": "array", "items": {"$ref": "#/$defs/event"}},
			{
				"type": "object",
				"required": ["events"],
				"properties": {"events": {"type": "array", "items": {"$ref": "#/$defs/event"}}}
			}
		]
	}`,
	schemaRegistration: `{
		"type": "object",
		"required": ["trustLevel"],
		"properties": {
			"botId": {"type": "string"},
			"trustLevel": {"type": "number", "minimum": 0, "maximum": 5}
		}
	}`,
	schemaObject: `{"type": "object"}`,
}

// Validator checks facilitator responses against compiled JSON Schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles the built-in response schemas. It panics on an
// invalid built-in schema, which is a programming error.
func NewValidator() *Validator {
	compiler := jsonschema.NewCompiler()
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(responseSchemas))}
	for name, src := range responseSchemas {
		schema, err := compiler.Compile([]byte(src))
		if err != nil {
			panic(fmt.Sprintf("facilitator: compile %s schema: %v", name, err))
		}
		v.schemas[name] = schema
	}
	return v
}

// Validate checks raw against the named schema. Unknown names pass.
func (v *Validator) Validate(name string, raw json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return fmt.Errorf("%s response: %s", name, result.Error())
	}
	return nil
}
