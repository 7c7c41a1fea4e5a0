// Package types provides shared type definitions used across jinn packages.
// This package exists to break import cycles between the synthesis gateway,
// the registry, the ledger and the wish resolver.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"encoding/json"
	"sort"
)

// =============================================================================
// CALL SCHEMA
// =============================================================================
// A CallSchema describes an incantation the way function-calling LLM APIs
// expect it: {"type": "function", "function": {name, description, parameters}}.

// CallSchema is the structured call contract of an incantation.
type CallSchema struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec holds the callable part of a CallSchema.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ParametersSpec `json:"parameters"`
}

// ParametersSpec is a JSON Schema object describing the arguments.
type ParametersSpec struct {
	Type       string                  `json:"type"`
	Properties map[string]PropertySpec `json:"properties"`
	Required   []string                `json:"required"`
}

// PropertySpec describes a single parameter.
type PropertySpec struct {
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Items       *PropertySpec `json:"items,omitempty"`
}

// NewCallSchema returns an empty function schema for the given name.
func NewCallSchema(name, description string) CallSchema {
	return CallSchema{
		Type: "function",
		Function: FunctionSpec{
			Name:        name,
			Description: description,
			Parameters: ParametersSpec{
				Type:       "object",
				Properties: map[string]PropertySpec{},
				Required:   []string{},
			},
		},
	}
}

// Name returns the function name.
func (s CallSchema) Name() string { return s.Function.Name }

// Description returns the function description.
func (s CallSchema) Description() string { return s.Function.Description }

// ParameterNames returns the property names in sorted order.
func (s CallSchema) ParameterNames() []string {
	names := make([]string, 0, len(s.Function.Parameters.Properties))
	for name := range s.Function.Parameters.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolDefinition converts the schema into the form passed to an LLM.
func (s CallSchema) ToolDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        s.Function.Name,
		Description: s.Function.Description,
		InputSchema: s.Function.Parameters.JSONSchema(),
	}
}

// JSONSchema renders the parameters as a generic JSON Schema map.
func (p ParametersSpec) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(p.Properties))
	for name, prop := range p.Properties {
		props[name] = prop.jsonSchema()
	}
	required := make([]interface{}, len(p.Required))
	for i, r := range p.Required {
		required[i] = r
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func (p PropertySpec) jsonSchema() map[string]interface{} {
	out := map[string]interface{}{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Items != nil {
		out["items"] = p.Items.jsonSchema()
	}
	return out
}

// String renders the schema as indented JSON.
func (s CallSchema) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
