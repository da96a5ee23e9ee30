package ai

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"storyloom/internal/domain/ports/adapter"
)

// validateAgainstSchema checks a generated document against the declared JSON
// Schema. Documents that do not conform are rejected outright.
func validateAgainstSchema(schema adapter.Schema, doc json.RawMessage) error {
	compiled, err := jsonschema.CompileString(schema.Name+".json", string(schema.Raw))
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("result is not valid JSON: %w", err)
	}
	return compiled.Validate(v)
}
