package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/titanous/json5"

	"jinn/internal/transform"
	"jinn/internal/types"
)

// parseSchemaJSON decodes the collaborator's answer, falling back to JSON5
// for trailing commas, comments and unquoted keys.
func parseSchemaJSON(text string) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(text), &raw); err == nil {
		return raw, nil
	} else if err5 := json5.Unmarshal([]byte(text), &raw); err5 != nil {
		return nil, fmt.Errorf("schema is not JSON: %w", err)
	}
	return raw, nil
}

// reconcileSchema builds a CallSchema for sig, taking descriptions from the
// collaborator's answer. The name, the property set and the required list
// always follow the signature.
func reconcileSchema(raw map[string]interface{}, sig *transform.Signature) types.CallSchema {
	fn := raw
	if inner, ok := raw["function"].(map[string]interface{}); ok {
		fn = inner
	}
	description, _ := fn["description"].(string)
	schema := types.NewCallSchema(sig.Name, strings.TrimSpace(description))

	var described map[string]interface{}
	if params, ok := fn["parameters"].(map[string]interface{}); ok {
		described, _ = params["properties"].(map[string]interface{})
	}

	for _, p := range sig.Params {
		prop := propertyFor(p)
		if d, ok := described[p.Name].(map[string]interface{}); ok {
			if text, ok := d["description"].(string); ok {
				prop.Description = strings.TrimSpace(text)
			}
		}
		schema.Function.Parameters.Properties[p.Name] = prop
		schema.Function.Parameters.Required = append(schema.Function.Parameters.Required, p.Name)
	}
	return schema
}

// propertyFor maps a Go parameter type onto a JSON Schema type.
func propertyFor(p transform.Param) types.PropertySpec {
	typ := p.Type
	if p.Variadic {
		typ = "[]" + typ
	}
	return jsonType(typ)
}

func jsonType(goType string) types.PropertySpec {
	if elem := strings.TrimPrefix(goType, "[]"); elem != goType {
		items := jsonType(elem)
		return types.PropertySpec{Type: "array", Items: &items}
	}
	switch goType {
	case "string":
		return types.PropertySpec{Type: "string"}
	case "bool":
		return types.PropertySpec{Type: "boolean"}
	case "float32", "float64":
		return types.PropertySpec{Type: "number"}
	case "int", "int8", "int16", "int32", "int64", "rune",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr", "byte":
		return types.PropertySpec{Type: "integer"}
	}
	return types.PropertySpec{Type: "string"}
}
