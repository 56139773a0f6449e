package core

import "encoding/json"

// EventKind tags the variant held by an Event, the unit emitted on the
// channel returned by Adapter.StreamChat.
type EventKind string

const (
	// EventContent carries an incremental text fragment of the assistant's
	// reply.
	EventContent EventKind = "content"
	// EventThinking carries an incremental fragment of a reasoning trace.
	EventThinking EventKind = "thinking"
	// EventThinkingSignature carries the signature that seals a completed
	// thinking block (Anthropic extended thinking only).
	EventThinkingSignature EventKind = "thinking_signature"
	// EventToolCall carries one fully assembled tool call. At most one
	// ToolCall event is emitted per block index in a stream.
	EventToolCall EventKind = "tool_call"
	// EventUsageHint carries a provider's token accounting, emitted at most
	// once near the end of a stream.
	EventUsageHint EventKind = "usage"
	// EventEnd marks the end of the stream, successful or not.
	EventEnd EventKind = "end"
)

// Event is the tagged union streamed out of an adapter. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// Delta holds the text fragment for EventContent/EventThinking.
	Delta string

	// Signature holds the signature for EventThinkingSignature.
	Signature string

	// ToolCall holds the assembled call for EventToolCall.
	ToolCall *ToolCall

	// Usage holds the token accounting for EventUsageHint.
	Usage *TokenUsage

	// Err holds the terminal error for EventEnd, if the stream ended
	// abnormally. A nil Err means the stream completed normally.
	Err *ClassifiedError

	// BlockIndex identifies which content/tool-call block this event
	// belongs to, for interleaved multi-block streams.
	BlockIndex int
}

// ContentEvent builds an EventContent event.
func ContentEvent(blockIndex int, delta string) Event {
	return Event{Kind: EventContent, BlockIndex: blockIndex, Delta: delta}
}

// ThinkingEvent builds an EventThinking event.
func ThinkingEvent(blockIndex int, delta string) Event {
	return Event{Kind: EventThinking, BlockIndex: blockIndex, Delta: delta}
}

// ThinkingSignatureEvent builds an EventThinkingSignature event.
func ThinkingSignatureEvent(blockIndex int, signature string) Event {
	return Event{Kind: EventThinkingSignature, BlockIndex: blockIndex, Signature: signature}
}

// ToolCallEvent builds an EventToolCall event.
func ToolCallEvent(blockIndex int, call ToolCall) Event {
	return Event{Kind: EventToolCall, BlockIndex: blockIndex, ToolCall: &call}
}

// UsageEvent builds an EventUsageHint event.
func UsageEvent(usage TokenUsage) Event {
	return Event{Kind: EventUsageHint, Usage: &usage}
}

// EndEvent builds a normal EventEnd event.
func EndEvent() Event { return Event{Kind: EventEnd} }

// EndEventWithError builds an EventEnd event carrying a terminal error.
func EndEventWithError(err *ClassifiedError) Event {
	return Event{Kind: EventEnd, Err: err}
}

// rawArguments is a tiny helper used by the assembler package to validate
// that an accumulated argument buffer is well-formed JSON before it is
// wrapped into a ToolCall.
func rawArguments(buf []byte) (json.RawMessage, bool) {
	if len(buf) == 0 {
		return json.RawMessage("{}"), true
	}
	if !json.Valid(buf) {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return json.RawMessage(out), true
}

// RawArguments exposes rawArguments to other core subpackages (assembler,
// adapters) without re-implementing JSON validation per call site.
func RawArguments(buf []byte) (json.RawMessage, bool) { return rawArguments(buf) }
