package adapters

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fritzprix/libr-agent-sub001/core"
)

func TestToAnthropicMessagesToolRoleBecomesUserToolResult(t *testing.T) {
	history := []core.Message{
		{ID: "m1", Role: core.RoleTool, ToolCallID: "toolu_1", Content: []core.ContentPart{core.Text("result")}},
	}
	out := toAnthropicMessages(history)
	require.Len(t, out, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)

	require.Len(t, out[0].Content, 1)
	tr := out[0].Content[0].OfToolResult
	require.NotNil(t, tr)
	assert.Equal(t, "toolu_1", tr.ToolUseID)
}

func TestToAnthropicMessagesThinkingComesFirst(t *testing.T) {
	history := []core.Message{
		{
			ID:       "m1",
			Role:     core.RoleAssistant,
			Thinking: &core.ThinkingBlock{Text: "reasoning", Signature: "sig"},
			Content:  []core.ContentPart{core.Text("answer")},
			ToolCalls: []core.ToolCall{
				{ID: "toolu_1", Name: "t", Arguments: json.RawMessage(`{"a":1}`)},
			},
		},
	}
	out := toAnthropicMessages(history)
	require.Len(t, out, 1)
	require.Len(t, out[0].Content, 3)

	require.NotNil(t, out[0].Content[0].OfThinking)
	assert.Equal(t, "reasoning", out[0].Content[0].OfThinking.Thinking)
	assert.NotNil(t, out[0].Content[1].OfText)
	tu := out[0].Content[2].OfToolUse
	require.NotNil(t, tu)
	assert.Equal(t, "toolu_1", tu.ID)
}

func TestToAnthropicMessagesUICoercedToUser(t *testing.T) {
	history := []core.Message{
		{ID: "m1", Role: core.RoleAssistant, Source: core.SourceUI, Content: []core.ContentPart{core.Text("pasted")}},
	}
	out := toAnthropicMessages(history)
	require.Len(t, out, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
}

func TestToAnthropicMessagesSkipsEmpty(t *testing.T) {
	history := []core.Message{
		{ID: "m1", Role: core.RoleAssistant},
		{ID: "m2", Role: core.RoleUser, Content: []core.ContentPart{core.Text("hi")}},
	}
	out := toAnthropicMessages(history)
	require.Len(t, out, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, out[0].Role)
}

func TestToolResultContentCoercesToSingleText(t *testing.T) {
	parts := []core.ContentPart{
		core.Text("line one"),
		core.Image("image/png", []byte{1}),
		core.Text("line two"),
	}
	out := toolResultContent(parts)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfText)
	assert.Equal(t, "line one\nline two", out[0].OfText.Text)
}

func TestNewAnthropicRequiresCredential(t *testing.T) {
	_, err := NewAnthropic("", "claude-sonnet-4-5", nil)
	assert.Error(t, err)
}
