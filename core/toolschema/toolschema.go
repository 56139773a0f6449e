// Package toolschema maps a canonical core.ToolDescriptor catalog into
// each provider family's tool-declaration shape, with per-provider
// sanitization where an endpoint rejects parts of JSON Schema.
package toolschema

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fritzprix/libr-agent-sub001/core"
)

// Convert maps tools into the wire shape for provider. Every target
// preserves name, description, and an input-schema object; the return value
// is a slice of "any" because each family's concrete tool shape differs and
// callers hand it straight to their provider SDK's params struct.
func Convert(tools []core.ToolDescriptor, provider core.ProviderTag) ([]any, error) {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		if err := validate(t); err != nil {
			return nil, err
		}
		converted, err := convertOne(t, provider)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func validate(t core.ToolDescriptor) error {
	if t.Name == "" {
		return fmt.Errorf("%w: tool has no name", core.ErrInvalidTool)
	}
	if t.Description == "" {
		return fmt.Errorf("%w: tool %q has no description", core.ErrInvalidTool, t.Name)
	}
	if t.InputSchema == nil {
		return fmt.Errorf("%w: tool %q has no input schema", core.ErrInvalidTool, t.Name)
	}
	if typ, ok := t.InputSchema["type"]; ok && typ != "object" {
		return fmt.Errorf("%w: tool %q input schema must be type object, got %v", core.ErrInvalidTool, t.Name, typ)
	}
	if err := compileSchema(t.InputSchema); err != nil {
		return fmt.Errorf("%w: tool %q input schema does not compile: %v", core.ErrInvalidTool, t.Name, err)
	}
	return nil
}

// compileSchema runs the candidate JSON-Schema document through the
// jsonschema compiler. A document that fails to compile is not a usable
// tool-input schema for any provider.
func compileSchema(schema map[string]interface{}) error {
	c := jsonschema.NewCompiler()
	const resourceURL = "tool-input-schema.json"
	if err := c.AddResource(resourceURL, toAny(schema)); err != nil {
		return err
	}
	_, err := c.Compile(resourceURL)
	return err
}

func toAny(m map[string]interface{}) any { return any(m) }

func convertOne(t core.ToolDescriptor, provider core.ProviderTag) (any, error) {
	switch provider.Family() {
	case core.FamilyOpenAI:
		if provider == core.ProviderCerebras {
			return openAIShape(t.Name, t.Description, sanitizeCerebras(t.InputSchema)), nil
		}
		return openAIShape(t.Name, t.Description, t.InputSchema), nil
	case core.FamilyAnthropic:
		return AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}, nil
	case core.FamilyGemini:
		return GeminiTool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.InputSchema),
		}, nil
	default:
		return openAIShape(t.Name, t.Description, t.InputSchema), nil
	}
}

// OpenAIFunctionTool mirrors `{type:"function", function:{name, description,
// parameters}}`, the shape shared by OpenAI, Groq, Cerebras, Fireworks and
// Ollama.
type OpenAIFunctionTool struct {
	Type     string             `json:"type"`
	Function OpenAIFunctionSpec `json:"function"`
}

// OpenAIFunctionSpec is the nested "function" object of OpenAIFunctionTool.
type OpenAIFunctionSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

func openAIShape(name, description string, schema map[string]interface{}) OpenAIFunctionTool {
	return OpenAIFunctionTool{
		Type: "function",
		Function: OpenAIFunctionSpec{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
	}
}

// AnthropicTool mirrors Anthropic's `{name, description, input_schema}`.
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// GeminiTool mirrors `{name, description, parameters}` with Gemini's STRING/
// NUMBER/BOOLEAN/ARRAY/OBJECT enum types.
type GeminiTool struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  GeminiSchema `json:"parameters"`
}

// GeminiSchema is a minimal recursive mirror of genai.Schema's fields that
// this converter populates; adapters/gemini.go maps this onto the real
// *genai.Schema the SDK expects.
type GeminiSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]GeminiSchema `json:"properties,omitempty"`
	Items      *GeminiSchema           `json:"items,omitempty"`
	Required   []string                `json:"required,omitempty"`
	Enum       []string                `json:"enum,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// geminiPrimitive maps a JSON-Schema primitive type name onto Gemini's enum
// type names; unknown types collapse to STRING.
func geminiPrimitive(jsonType string) string {
	switch jsonType {
	case "string":
		return "STRING"
	case "number":
		return "NUMBER"
	case "integer":
		return "INTEGER"
	case "boolean":
		return "BOOLEAN"
	case "array":
		return "ARRAY"
	case "object":
		return "OBJECT"
	default:
		return "STRING"
	}
}

func toGeminiSchema(schema map[string]interface{}) GeminiSchema {
	out := GeminiSchema{Type: "OBJECT"}
	if t, ok := schema["type"].(string); ok {
		out.Type = geminiPrimitive(t)
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]GeminiSchema, len(props))
		for name, raw := range props {
			if propSchema, ok := raw.(map[string]interface{}); ok {
				out.Properties[name] = toGeminiSchema(propSchema)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		itemSchema := toGeminiSchema(items)
		out.Items = &itemSchema
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		out.Required = append(out.Required, required...)
	}
	return out
}

// cerebrasStrippedKeys are the JSON-Schema keywords Cerebras's tool-calling
// endpoint rejects; they are removed recursively through properties and
// items.
var cerebrasStrippedKeys = []string{
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum",
	"multipleOf", "pattern", "format",
}

// sanitizeCerebras returns a deep copy of schema with the unsupported
// keywords stripped at every depth, object schemas forced to
// additionalProperties:false, and an empty properties object synthesized
// for object schemas that have neither properties nor anyOf.
func sanitizeCerebras(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	for _, key := range cerebrasStrippedKeys {
		delete(out, key)
	}

	if props, ok := out["properties"].(map[string]interface{}); ok {
		sanitizedProps := make(map[string]interface{}, len(props))
		for name, raw := range props {
			if propSchema, ok := raw.(map[string]interface{}); ok {
				sanitizedProps[name] = sanitizeCerebras(propSchema)
			} else {
				sanitizedProps[name] = raw
			}
		}
		out["properties"] = sanitizedProps
	}

	if items, ok := out["items"].(map[string]interface{}); ok {
		out["items"] = sanitizeCerebras(items)
	}

	if typ, _ := out["type"].(string); typ == "object" {
		out["additionalProperties"] = false
		_, hasProps := out["properties"]
		_, hasAnyOf := out["anyOf"]
		if !hasProps && !hasAnyOf {
			out["properties"] = map[string]interface{}{}
		}
	}

	return out
}
