package normalize_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fritzprix/libr-agent-sub001/core"
	"github.com/fritzprix/libr-agent-sub001/core/normalize"
)

func assistantWithCalls(id string, calls ...core.ToolCall) core.Message {
	return core.Message{ID: id, Role: core.RoleAssistant, ToolCalls: calls}
}

func toolMsg(id, callID, text string) core.Message {
	return core.Message{ID: id, Role: core.RoleTool, ToolCallID: callID, Content: []core.ContentPart{core.Text(text)}}
}

func userMsg(id, text string) core.Message {
	return core.Message{ID: id, Role: core.RoleUser, Content: []core.ContentPart{core.Text(text)}}
}

// Scenario 1 — perfect pairing preserved.
func TestScenario1PerfectPairingPreserved(t *testing.T) {
	history := []core.Message{
		assistantWithCalls("m1", core.ToolCall{ID: "call_1", Name: "test", Arguments: json.RawMessage("{}")}),
		toolMsg("m2", "call_1", "result"),
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	require.Len(t, out, 2)
	assert.Equal(t, history[0].ToolCalls, out[0].ToolCalls)
	assert.Equal(t, "call_1", out[1].ToolCallID)
}

// Scenario 2 — orphan tool removed.
func TestScenario2OrphanToolRemoved(t *testing.T) {
	history := []core.Message{
		{ID: "m1", Role: core.RoleAssistant, Content: []core.ContentPart{core.Text("response")}},
		toolMsg("m2", "call_999", "result"),
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}

// Scenario 3 — partial match, drop unanswered tool_calls.
func TestScenario3PartialMatchDropsUnanswered(t *testing.T) {
	history := []core.Message{
		assistantWithCalls("m1",
			core.ToolCall{ID: "call_1", Name: "t1"},
			core.ToolCall{ID: "call_2", Name: "t2"},
		),
		toolMsg("m2", "call_1", "r1"),
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	require.Len(t, out, 2)
	require.Len(t, out[0].ToolCalls, 1)
	assert.Equal(t, "call_1", out[0].ToolCalls[0].ID)
	assert.Equal(t, "call_1", out[1].ToolCallID)
}

// Scenario 4 — unmatched assistant tool_calls cleared but message kept.
func TestScenario4UnmatchedToolCallsClearedMessageKept(t *testing.T) {
	history := []core.Message{
		{
			ID:        "m1",
			Role:      core.RoleAssistant,
			Content:   []core.ContentPart{core.Text("I will call")},
			ToolCalls: []core.ToolCall{{ID: "call_1", Name: "t"}},
		},
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].ToolCalls)
	assert.Equal(t, "I will call", out[0].Content[0].Text)
}

// Scenario 5 — leading tool removed.
func TestScenario5LeadingToolRemoved(t *testing.T) {
	history := []core.Message{
		toolMsg("m1", "x", "orphan"),
		userMsg("m2", "Hello"),
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	require.Len(t, out, 1)
	assert.Equal(t, "m2", out[0].ID)
}

// Scenario 6 — Anthropic separates system from the sanitized history.
func TestScenario6AnthropicSeparatesSystem(t *testing.T) {
	history := []core.Message{
		{ID: "sys", Role: core.RoleSystem, Content: []core.ContentPart{core.Text("S")}},
		userMsg("m2", "U"),
	}
	out := normalize.Normalize(history, core.ProviderAnthropic)
	require.Len(t, out, 1)
	assert.Equal(t, "m2", out[0].ID)
	assert.Equal(t, "S", normalize.ExtractSystemPrompt(history))
}

func TestInvariantNoSanitizedHistoryBeginsWithTool(t *testing.T) {
	providers := []core.ProviderTag{core.ProviderOpenAI, core.ProviderAnthropic, core.ProviderGemini, core.ProviderOllama}
	history := []core.Message{
		toolMsg("orphan1", "ghost", "x"),
		toolMsg("orphan2", "ghost2", "y"),
		userMsg("u", "hi"),
	}
	for _, p := range providers {
		out := normalize.Normalize(history, p)
		if len(out) > 0 {
			assert.NotEqual(t, core.RoleTool, out[0].Role, "provider %s", p)
		}
	}
}

func TestInvariantToolCallIDsReferenceEarlierAssistant(t *testing.T) {
	history := []core.Message{
		assistantWithCalls("m1", core.ToolCall{ID: "call_1", Name: "t"}),
		toolMsg("m2", "call_1", "r"),
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	declaredBefore := map[string]bool{}
	for _, m := range out {
		if m.Role == core.RoleTool {
			assert.True(t, declaredBefore[m.ToolCallID], "tool_call_id %q must reference an earlier assistant ToolCall", m.ToolCallID)
		}
		if m.Role == core.RoleAssistant {
			for _, tc := range m.ToolCalls {
				declaredBefore[tc.ID] = true
			}
		}
	}
}

func TestIdempotence(t *testing.T) {
	history := []core.Message{
		assistantWithCalls("m1",
			core.ToolCall{ID: "call_1", Name: "t1"},
			core.ToolCall{ID: "call_2", Name: "t2"},
		),
		toolMsg("m2", "call_1", "r1"),
		toolMsg("m3", "call_999", "orphan"),
	}
	for _, p := range []core.ProviderTag{core.ProviderOpenAI, core.ProviderAnthropic, core.ProviderGemini} {
		once := normalize.Normalize(history, p)
		twice := normalize.Normalize(once, p)
		assert.Equal(t, once, twice, "provider %s", p)
	}
}

func TestIdempotenceGeminiKeepsAnsweredChainAfterRoleLowering(t *testing.T) {
	history := []core.Message{
		userMsg("u1", "hi"),
		assistantWithCalls("a1", core.ToolCall{ID: "call_1", Name: "t"}),
		toolMsg("t1", "call_1", "r"),
	}
	once := normalize.Normalize(history, core.ProviderGemini)
	twice := normalize.Normalize(once, core.ProviderGemini)
	require.Equal(t, once, twice)
	// the answering assistant survives the second pass even though the tool
	// result was lowered to user role by the first
	require.Len(t, twice, 3)
	assert.Len(t, twice[1].ToolCalls, 1)
}

func TestEmptyHistoryOfOrphansReturnsEmpty(t *testing.T) {
	history := []core.Message{
		toolMsg("m1", "ghost", "x"),
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	assert.Empty(t, out)
}

func TestGeminiOverlayDropsLeadingNonUser(t *testing.T) {
	history := []core.Message{
		{ID: "sys", Role: core.RoleSystem, Content: []core.ContentPart{core.Text("S")}},
		assistantWithCalls("a1", core.ToolCall{ID: "call_1", Name: "t"}),
		toolMsg("t1", "call_1", "r1"),
		userMsg("u1", "hi"),
	}
	out := normalize.Normalize(history, core.ProviderGemini)
	require.NotEmpty(t, out)
	assert.Equal(t, core.RoleUser, out[0].Role)
}

func TestGeminiOverlayNoUserReturnsEmpty(t *testing.T) {
	history := []core.Message{
		{ID: "sys", Role: core.RoleSystem, Content: []core.ContentPart{core.Text("S")}},
	}
	out := normalize.Normalize(history, core.ProviderGemini)
	assert.Empty(t, out)
}

func TestLowerToolRoleToUser(t *testing.T) {
	history := []core.Message{toolMsg("t1", "call_1", "42")}
	out := normalize.LowerToolRoleToUser(history)
	require.Len(t, out, 1)
	assert.Equal(t, core.RoleUser, out[0].Role)
	assert.Equal(t, "Tool result: ", out[0].Content[0].Text)
	assert.Equal(t, "42", out[0].Content[1].Text)
}

func TestAnthropicPreservesThinking(t *testing.T) {
	history := []core.Message{
		{
			ID:       "a1",
			Role:     core.RoleAssistant,
			Thinking: &core.ThinkingBlock{Text: "reasoning"},
		},
	}
	out := normalize.Normalize(history, core.ProviderAnthropic)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Thinking)
	assert.Equal(t, "reasoning", out[0].Thinking.Text)
}

func TestOpenAIStripsThinking(t *testing.T) {
	history := []core.Message{
		{
			ID:       "a1",
			Role:     core.RoleAssistant,
			Content:  []core.ContentPart{core.Text("hi")},
			Thinking: &core.ThinkingBlock{Text: "reasoning"},
		},
	}
	out := normalize.Normalize(history, core.ProviderOpenAI)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Thinking)
}
