package adapters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fritzprix/libr-agent-sub001/core"
)

func TestQualifyFireworksModel(t *testing.T) {
	assert.Equal(t, "accounts/fireworks/models/llama-v3p1-8b",
		qualifyFireworksModel("fireworks", "llama-v3p1-8b"))
	assert.Equal(t, "accounts/other/models/m",
		qualifyFireworksModel("ignored", "accounts/other/models/m"), "already qualified names pass through")
	assert.Equal(t, "bare-model", qualifyFireworksModel("", "bare-model"))
}

func TestTextOfConcatenatesTextParts(t *testing.T) {
	m := core.Message{
		ID:   "m1",
		Role: core.RoleUser,
		Content: []core.ContentPart{
			core.Text("hello "),
			core.Image("image/png", []byte{1}),
			core.Text("world"),
		},
	}
	assert.Equal(t, "hello world", textOf(m))
}

func TestAssistantMessageCarriesToolCalls(t *testing.T) {
	m := core.Message{
		ID:   "m1",
		Role: core.RoleAssistant,
		ToolCalls: []core.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"Hanoi"}`)},
		},
	}
	param := assistantMessage(m)
	require.NotNil(t, param.OfAssistant)
	require.Len(t, param.OfAssistant.ToolCalls, 1)
	fn := param.OfAssistant.ToolCalls[0].OfFunction
	require.NotNil(t, fn)
	assert.Equal(t, "call_1", fn.ID)
	assert.Equal(t, "get_weather", fn.Function.Name)
	assert.JSONEq(t, `{"city":"Hanoi"}`, fn.Function.Arguments)
}

func TestConvertMessagesMapsRoles(t *testing.T) {
	adapter, err := newOpenAIFamily(core.ProviderOpenAI, "sk-test", "", "gpt-4o-mini", nil)
	require.NoError(t, err)

	history := []core.Message{
		{ID: "m1", Role: core.RoleSystem, Content: []core.ContentPart{core.Text("S")}},
		{ID: "m2", Role: core.RoleUser, Content: []core.ContentPart{core.Text("U")}},
		{ID: "m3", Role: core.RoleAssistant, ToolCalls: []core.ToolCall{
			{ID: "call_1", Name: "t", Arguments: json.RawMessage(`{}`)},
		}},
		{ID: "m4", Role: core.RoleTool, ToolCallID: "call_1", Content: []core.ContentPart{core.Text("R")}},
	}

	out := adapter.convertMessages(history, "")
	require.Len(t, out, 4)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
	require.NotNil(t, out[3].OfTool)
	assert.Equal(t, "call_1", out[3].OfTool.ToolCallID)
}

func TestConvertMessagesPrependsSystemOverride(t *testing.T) {
	adapter, err := newOpenAIFamily(core.ProviderOpenAI, "sk-test", "", "gpt-4o-mini", nil)
	require.NoError(t, err)

	history := []core.Message{
		{ID: "m1", Role: core.RoleUser, Content: []core.ContentPart{core.Text("U")}},
	}
	out := adapter.convertMessages(history, "override")
	require.Len(t, out, 2)
	assert.NotNil(t, out[0].OfSystem)
}

func TestConvertMessagesDropsOrphanTool(t *testing.T) {
	adapter, err := newOpenAIFamily(core.ProviderOpenAI, "sk-test", "", "gpt-4o-mini", nil)
	require.NoError(t, err)

	history := []core.Message{
		{ID: "m1", Role: core.RoleAssistant, Content: []core.ContentPart{core.Text("A")}},
		{ID: "m2", Role: core.RoleTool, ToolCallID: "call_999", Content: []core.ContentPart{core.Text("orphan")}},
	}
	out := adapter.convertMessages(history, "")
	require.Len(t, out, 1)
	assert.NotNil(t, out[0].OfAssistant)
}

func TestNewOpenAIFamilyRequiresCredential(t *testing.T) {
	_, err := newOpenAIFamily(core.ProviderOpenAI, "", "", "gpt-4o-mini", nil)
	assert.ErrorIs(t, err, core.ErrInvalidTool)
}
