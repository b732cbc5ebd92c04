package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/stockpilot/trigger-engine/types"
)

// noArgs is the input type for tools that take no parameters. The reflector
// needs a named type to derive an expanded schema from.
type noArgs struct{}

// schemaOf derives a JSON schema from an args struct. Tools declare their
// inputs as Go structs; the schema is what clients and the validator see.
func schemaOf(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(v)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal derived schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("failed to decode derived schema: %v", err))
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// ValidateArgs checks tool inputs against the tool's declared schema before
// execution. Invalid inputs are a caller error, not a tool failure.
func ValidateArgs(def Definition, args json.RawMessage) error {
	if def.JSONSchema == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(def.JSONSchema),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return types.NewValidationError("inputs", "schema validation failed: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return types.NewValidationError("inputs", "%s", strings.Join(msgs, "; "))
	}
	return nil
}
