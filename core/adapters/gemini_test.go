package adapters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/fritzprix/libr-agent-sub001/core"
	"github.com/fritzprix/libr-agent-sub001/core/toolschema"
)

func TestGeminiConvertMessagesFunctionResponse(t *testing.T) {
	adapter := &GeminiAdapter{}

	// the normalizer has already lowered the tool role to user; ToolCallID
	// survives the rewrite
	history := []core.Message{
		{ID: "m1", Role: core.RoleUser, ToolCallID: "get_weather", Content: []core.ContentPart{core.Text(`{"temp":21}`)}},
	}
	contents := adapter.convertMessages(history)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 1)

	fr := contents[0].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "get_weather", fr.Name)
	assert.Equal(t, float64(21), fr.Response["temp"])
}

func TestGeminiConvertMessagesWrapsNonJSONResult(t *testing.T) {
	adapter := &GeminiAdapter{}

	history := []core.Message{
		{ID: "m1", Role: core.RoleUser, ToolCallID: "lookup", Content: []core.ContentPart{core.Text("plain text")}},
	}
	contents := adapter.convertMessages(history)
	require.Len(t, contents, 1)

	fr := contents[0].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "plain text", fr.Response["result"])
}

func TestGeminiConvertMessagesFunctionCall(t *testing.T) {
	adapter := &GeminiAdapter{}

	history := []core.Message{
		{ID: "m1", Role: core.RoleAssistant, ToolCalls: []core.ToolCall{
			{ID: "c1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"Hanoi"}`)},
		}},
	}
	contents := adapter.convertMessages(history)
	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleModel, contents[0].Role)

	fc := contents[0].Parts[0].FunctionCall
	require.NotNil(t, fc)
	assert.Equal(t, "get_weather", fc.Name)
	assert.Equal(t, "Hanoi", fc.Args["city"])
}

func TestGeminiConvertMessagesPlainText(t *testing.T) {
	adapter := &GeminiAdapter{}

	history := []core.Message{
		{ID: "m1", Role: core.RoleUser, Content: []core.ContentPart{core.Text("hello")}},
		{ID: "m2", Role: core.RoleAssistant, Content: []core.ContentPart{core.Text("hi")}},
	}
	contents := adapter.convertMessages(history)
	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
}

func TestToGenaiSchemaRecursion(t *testing.T) {
	in := toolschema.GeminiSchema{
		Type: "OBJECT",
		Properties: map[string]toolschema.GeminiSchema{
			"tags": {
				Type:  "ARRAY",
				Items: &toolschema.GeminiSchema{Type: "STRING"},
			},
			"count": {Type: "INTEGER"},
		},
		Required: []string{"tags"},
	}
	out := toGenaiSchema(in)

	assert.Equal(t, genai.TypeObject, out.Type)
	assert.Equal(t, []string{"tags"}, out.Required)
	require.Contains(t, out.Properties, "tags")
	assert.Equal(t, genai.TypeArray, out.Properties["tags"].Type)
	require.NotNil(t, out.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, out.Properties["tags"].Items.Type)
	assert.Equal(t, genai.TypeInteger, out.Properties["count"].Type)
}

func TestGenaiTypeUnknownCollapsesToString(t *testing.T) {
	assert.Equal(t, genai.TypeString, genaiType("WHATEVER"))
}

func TestNewGeminiRequiresCredential(t *testing.T) {
	_, err := NewGemini("", "gemini-2.0-flash", nil)
	assert.Error(t, err)
}
