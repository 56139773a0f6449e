// Package core defines the canonical chat/tool-calling model shared by every
// provider adapter, plus the service factory and cancellation runtime that
// sit in front of them. It is a translation and streaming layer: it does not
// decide which tool to call, does not execute tools, and does not persist
// conversations.
package core

import (
	"encoding/json"
	"fmt"
)

// ProviderTag identifies a concrete provider. Several tags share one
// structural family (see Family); adapters and the normalizer branch on the
// family, not the individual tag.
type ProviderTag string

const (
	ProviderOpenAI     ProviderTag = "openai"
	ProviderGroq       ProviderTag = "groq"
	ProviderCerebras   ProviderTag = "cerebras"
	ProviderFireworks  ProviderTag = "fireworks"
	ProviderOllama     ProviderTag = "ollama"
	ProviderAnthropic  ProviderTag = "anthropic"
	ProviderGemini     ProviderTag = "gemini"
	ProviderEmpty      ProviderTag = ""
)

// Family classes a ProviderTag into the structural group that the
// normalizer and tool schema converter actually care about.
type Family int

const (
	FamilyEmpty Family = iota
	FamilyOpenAI
	FamilyAnthropic
	FamilyGemini
)

// Family returns the structural family for the tag.
func (p ProviderTag) Family() Family {
	switch p {
	case ProviderOpenAI, ProviderGroq, ProviderCerebras, ProviderFireworks, ProviderOllama:
		return FamilyOpenAI
	case ProviderAnthropic:
		return FamilyAnthropic
	case ProviderGemini:
		return FamilyGemini
	default:
		return FamilyEmpty
	}
}

// ContentKind tags the variant held by a ContentPart.
type ContentKind string

const (
	ContentText         ContentKind = "text"
	ContentImage        ContentKind = "image"
	ContentAudio        ContentKind = "audio"
	ContentResourceLink ContentKind = "resource_link"
	ContentResource     ContentKind = "resource"
)

// ContentPart is a tagged variant over the content shapes a message can
// carry. Only the fields relevant to Kind are populated; this mirrors the
// Design Notes' replacement of "dynamic unknown/any typed messages" with a
// fixed tagged struct.
type ContentPart struct {
	Kind ContentKind

	// Text holds the text for ContentText.
	Text string

	// MIME is the media type for Image/Audio/Resource.
	MIME string
	// Bytes holds inline binary data for Image/Audio (mutually exclusive
	// with URI).
	Bytes []byte
	// URI holds a remote/opaque locator for Image, ResourceLink, Resource.
	URI string
	// Name is a human-readable label for ResourceLink.
	Name string
	// ResourceText holds inline text for Resource when the resource is
	// textual rather than binary.
	ResourceText string
}

// Text builds a ContentText part.
func Text(s string) ContentPart { return ContentPart{Kind: ContentText, Text: s} }

// Image builds a ContentImage part from inline bytes.
func Image(mime string, data []byte) ContentPart {
	return ContentPart{Kind: ContentImage, MIME: mime, Bytes: data}
}

// ImageURI builds a ContentImage part referencing a remote URI.
func ImageURI(mime, uri string) ContentPart {
	return ContentPart{Kind: ContentImage, MIME: mime, URI: uri}
}

// Audio builds a ContentAudio part from inline bytes.
func Audio(mime string, data []byte) ContentPart {
	return ContentPart{Kind: ContentAudio, MIME: mime, Bytes: data}
}

// ResourceLink builds a ContentResourceLink part.
func ResourceLink(uri, name, mime string) ContentPart {
	return ContentPart{Kind: ContentResourceLink, URI: uri, Name: name, MIME: mime}
}

// Resource builds a ContentResource part.
func Resource(uri, mime, text string) ContentPart {
	return ContentPart{Kind: ContentResource, URI: uri, MIME: mime, ResourceText: text}
}

// ThinkingBlock is a model-emitted reasoning trace, optionally signed.
// Preserved end-to-end only by providers that accept it; normalization
// strips it for providers that don't.
type ThinkingBlock struct {
	Text      string
	Signature string
}

// ToolCall is a request from the model to invoke a named function.
// Arguments is a JSON value; nil means "not yet assembled" or "absent".
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	// Type is always "function" in this design; kept for wire fidelity.
	Type string
}

// ToolResult is the outcome of executing one ToolCall, referenced by id.
type ToolResult struct {
	ToolCallID string
	Content    []ContentPart
}

// MessageSource distinguishes UI-originated messages from model-originated
// ones. Some adapters (Anthropic) coerce UI-originated messages to the user
// role regardless of their nominal Role.
type MessageSource string

const (
	SourceUnspecified MessageSource = ""
	SourceUI          MessageSource = "ui"
	SourceAssistant   MessageSource = "assistant"
)

// Role enumerates canonical message roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is the canonical, provider-neutral chat message. It is treated as
// immutable once passed to the core: normalization produces new sanitized
// copies rather than editing messages in place.
type Message struct {
	ID         string
	Role       Role
	Content    []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
	Thinking   *ThinkingBlock
	Source     MessageSource
}

// HasContent reports whether the message carries at least one content part.
func (m Message) HasContent() bool { return len(m.Content) > 0 }

// HasToolCalls reports whether the message carries at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Validate checks the message's structural invariants: a non-empty id, a
// known role, and non-empty content for user/system messages.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: message id is empty", ErrInvalidMessage)
	}
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}
	if (m.Role == RoleUser || m.Role == RoleSystem) && !m.HasContent() {
		return fmt.Errorf("%w: %s message %q has no content", ErrInvalidMessage, m.Role, m.ID)
	}
	return nil
}

// ValidateHistory validates every message and ensures the history itself is
// non-empty. Adapters call this before any network I/O.
func ValidateHistory(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: message history is empty", ErrInvalidMessage)
	}
	for _, m := range messages {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToolDescriptor is a canonical tool/function catalog entry, translated by
// the Tool Schema Converter into each provider's declaration shape.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	// OutputSchema is optional and currently advisory only; no adapter in
	// this design translates it onto the wire.
	OutputSchema map[string]interface{}
	Annotations  map[string]interface{}
}

// TokenUsage mirrors the provider-reported token accounting, normalized to
// a common shape across families.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
