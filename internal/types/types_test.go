package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSchemaToolDefinition(t *testing.T) {
	s := NewCallSchema("add", "Adds two integers.")
	s.Function.Parameters.Properties["b"] = PropertySpec{Type: "integer", Description: "second"}
	s.Function.Parameters.Properties["a"] = PropertySpec{Type: "array", Items: &PropertySpec{Type: "string"}}
	s.Function.Parameters.Required = []string{"a", "b"}

	assert.Equal(t, []string{"a", "b"}, s.ParameterNames())

	def := s.ToolDefinition()
	want := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"a": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"b": map[string]interface{}{"type": "integer", "description": "second"},
		},
		"required": []interface{}{"a", "b"},
	}
	if diff := cmp.Diff(want, def.InputSchema); diff != "" {
		t.Errorf("input schema mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "add", def.Name)
	assert.Equal(t, "Adds two integers.", def.Description)
}

func TestCallSchemaJSONShape(t *testing.T) {
	s := NewCallSchema("noop", "")
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s.String()), &decoded))
	assert.Equal(t, "function", decoded["type"])

	fn := decoded["function"].(map[string]interface{})
	params := fn["parameters"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, params["required"], "required must encode as [] not null")
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("outer: %w", &SynthesisError{Op: "craft", Attempts: 3, Err: cause})

	var synth *SynthesisError
	require.True(t, errors.As(wrapped, &synth))
	assert.Equal(t, "synthesis craft failed after 3 attempts: boom", synth.Error())
	assert.ErrorIs(t, wrapped, cause)

	exec := &ExecutionError{Func: "ratio", Trace: "panic: division by zero", Err: cause}
	assert.Equal(t, "ratio: boom", exec.Error())

	tr := &TransformError{Func: "add", Reason: "function not found"}
	assert.Equal(t, "transform add: function not found", tr.Error())

	nf := fmt.Errorf("lookup: %w", &NotFoundError{Kind: "incantation", ID: 7})
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsNotFound(cause))
	assert.EqualError(t, nf, "lookup: incantation 7 not found")
}

func TestFirstToolCall(t *testing.T) {
	resp := &LLMToolResponse{Text: "hi"}
	_, ok := resp.FirstToolCall()
	assert.False(t, ok)

	resp.ToolCalls = []ToolCall{{Name: "a"}, {Name: "b"}}
	call, ok := resp.FirstToolCall()
	assert.True(t, ok)
	assert.Equal(t, "a", call.Name)
}
