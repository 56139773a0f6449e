// Package normalize rewrites a canonical history so it satisfies a target
// provider's tool-call-chain and role-ordering rules. Normalize is a pure
// function: no I/O, no mutation of its input.
package normalize

import "github.com/fritzprix/libr-agent-sub001/core"

// Normalize rewrites messages to satisfy provider's structural rules:
// every tool-role message references a tool call declared by an earlier
// assistant message, the history never begins with a tool message, and no
// assistant message is left empty.
func Normalize(messages []core.Message, provider core.ProviderTag) []core.Message {
	sanitized := commonSanitize(messages, preservesThinking(provider))

	switch provider.Family() {
	case core.FamilyGemini:
		return geminiOverlay(sanitized)
	case core.FamilyAnthropic:
		return anthropicOverlay(sanitized)
	case core.FamilyOpenAI:
		return sanitized
	default:
		return sanitized
	}
}

// preservesThinking reports whether provider's adapter keeps a Thinking
// block end-to-end. Only Anthropic accepts thinking blocks on the wire;
// every other family strips them during normalization.
func preservesThinking(provider core.ProviderTag) bool {
	return provider == core.ProviderAnthropic
}

// commonSanitize runs the steps shared by every provider: build the
// declared/answered id sets, trim assistant tool_calls to only the answered
// ones, drop orphan and leading tool messages, and drop assistant messages
// left empty by the trim.
func commonSanitize(messages []core.Message, keepThinking bool) []core.Message {
	declared := map[string]bool{}
	for _, m := range messages {
		if m.Role != core.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			declared[tc.ID] = true
		}
	}

	// References are collected from any message carrying a ToolCallID, not
	// just tool-role ones: the Gemini overlay lowers tool results to user
	// role while keeping ToolCallID, and a second Normalize pass must still
	// count those as answered or idempotence breaks.
	referenced := map[string]bool{}
	for _, m := range messages {
		if m.ToolCallID != "" {
			referenced[m.ToolCallID] = true
		}
	}

	answered := map[string]bool{}
	for id := range declared {
		if referenced[id] {
			answered[id] = true
		}
	}

	out := make([]core.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleAssistant:
			rewritten := rewriteAssistant(m, answered, keepThinking)
			if isEmptyAssistant(rewritten, keepThinking) {
				continue
			}
			out = append(out, rewritten)
		case core.RoleTool:
			if m.ToolCallID == "" || !answered[m.ToolCallID] {
				continue
			}
			out = append(out, m)
		default:
			out = append(out, m)
		}
	}

	return dropLeadingTool(out)
}

// rewriteAssistant keeps only the ToolCalls whose id is answered, preserving
// relative order, and clears Thinking for providers that don't preserve it.
func rewriteAssistant(m core.Message, answered map[string]bool, keepThinking bool) core.Message {
	out := m

	if len(m.ToolCalls) > 0 {
		kept := make([]core.ToolCall, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			if answered[tc.ID] {
				kept = append(kept, tc)
			}
		}
		if len(kept) == 0 {
			out.ToolCalls = nil
		} else {
			out.ToolCalls = kept
		}
	}

	if !keepThinking {
		out.Thinking = nil
	}

	return out
}

func isEmptyAssistant(m core.Message, keepThinking bool) bool {
	if m.HasContent() || m.HasToolCalls() {
		return false
	}
	if keepThinking && m.Thinking != nil {
		return false
	}
	return true
}

// dropLeadingTool drops any leading tool-role messages.
func dropLeadingTool(messages []core.Message) []core.Message {
	i := 0
	for i < len(messages) && messages[i].Role == core.RoleTool {
		i++
	}
	return messages[i:]
}

// anthropicOverlay omits the system role from the sanitized list; it is
// carried separately as a request parameter (see ExtractSystemPrompt).
// Building tool_use parts and coercing UI-originated messages to user role
// are wire-level concerns handled by the Anthropic adapter, not the
// normalizer.
func anthropicOverlay(messages []core.Message) []core.Message {
	out := make([]core.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// geminiOverlay converts tool-role messages to user-role messages (Gemini
// represents tool results as function-response parts within a user turn;
// the adapter builds the actual functionResponse parts from ToolCallID —
// see adapters/gemini.go), then drops all leading non-user messages so the
// first message has role user. If no user message remains, it returns
// empty.
func geminiOverlay(messages []core.Message) []core.Message {
	out := make([]core.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == core.RoleTool {
			m.Role = core.RoleUser
		}
		out = append(out, m)
	}

	i := 0
	for i < len(out) && out[i].Role != core.RoleUser {
		i++
	}
	if i == len(out) {
		return nil
	}
	return out[i:]
}

// LowerToolRoleToUser rewrites every tool-role message into a user-role
// message with a "Tool result: " text prefix, for Ollama targets whose
// chat template does not support a dedicated tool role. Not applied by
// default; callers opt in per target model.
func LowerToolRoleToUser(messages []core.Message) []core.Message {
	out := make([]core.Message, len(messages))
	for i, m := range messages {
		if m.Role != core.RoleTool {
			out[i] = m
			continue
		}
		lowered := m
		lowered.Role = core.RoleUser
		content := make([]core.ContentPart, 0, len(m.Content)+1)
		content = append(content, core.Text("Tool result: "))
		content = append(content, m.Content...)
		lowered.Content = content
		out[i] = lowered
	}
	return out
}

// ExtractSystemPrompt concatenates the text of every system-role message in
// the original (pre-normalization) history, for adapters that carry the
// system prompt as a separate request parameter (Anthropic, Gemini).
func ExtractSystemPrompt(messages []core.Message) string {
	var out string
	for _, m := range messages {
		if m.Role != core.RoleSystem {
			continue
		}
		for _, part := range m.Content {
			if part.Kind == core.ContentText {
				if out != "" {
					out += "\n\n"
				}
				out += part.Text
			}
		}
	}
	return out
}
