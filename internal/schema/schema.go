// Package schema validates tool parameter payloads against JSON Schema
// before they are admitted to the registry (C2) or accepted as the output of
// parameter synthesis (C7 step 5). A malformed payload is a parameter
// mismatch, not a different failure class (spec §7).
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator holds compiled JSON Schemas keyed by tool name.
type Validator struct {
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty Validator; call Register to add schemas.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores the schema (raw JSON Schema document) for
// tool. Returns an error if the schema itself is malformed.
func (v *Validator) Register(tool string, rawSchema []byte) error {
	if len(rawSchema) == 0 {
		delete(v.compiled, tool)
		return nil
	}
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(rawSchema))
	if err != nil {
		return fmt.Errorf("schema: parse %s: %w", tool, err)
	}
	resource := "mem://" + tool + ".json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("schema: add resource %s: %w", tool, err)
	}
	sch, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", tool, err)
	}
	v.compiled[tool] = sch
	return nil
}

// Validate checks params against the schema registered for tool. Tools with
// no registered schema always validate successfully (schemas are optional
// per spec §6's tool plugin loader contract).
func (v *Validator) Validate(tool string, params map[string]any) error {
	sch, ok := v.compiled[tool]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("schema: marshal params for %s: %w", tool, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("schema: unmarshal params for %s: %w", tool, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema: %s: %w", tool, err)
	}
	return nil
}
