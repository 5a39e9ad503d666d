package llm

import "strings"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image reference, typically a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// Message is a single entry in a conversation history, in the
// chat-completions wire shape. Content holds plain text; Parts, when
// non-empty, replaces Content with an ordered multimodal body.
//
// Assistant messages may carry ToolCalls. Tool messages carry the
// ToolCallID of the assistant tool call they answer and must directly
// follow the assistant message that requested them.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// Text returns the textual content of the message. For multimodal
// messages it joins the text parts and ignores images.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// SystemMessage builds a system-role message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage builds a user-role message with plain text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// UserImageMessage builds a user-role message pairing text with an image
// data URL.
func UserImageMessage(text, dataURL string) Message {
	parts := []ContentPart{}
	if text != "" {
		parts = append(parts, ContentPart{Type: PartTypeText, Text: text})
	}
	parts = append(parts, ContentPart{
		Type:     PartTypeImageURL,
		ImageURL: &ImageURL{URL: dataURL},
	})
	return Message{Role: RoleUser, Parts: parts}
}

// AssistantMessage builds an assistant-role message with text content
// and no tool calls.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// AssistantToolCallMessage builds an assistant-role message carrying tool
// calls, with optional accompanying text.
func AssistantToolCallMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolMessage builds a tool-role message answering the given tool call.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolCall is a complete tool invocation request emitted by the model.
// Arguments is the raw serialized payload exactly as the provider sent
// it; it is not guaranteed to be valid JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable tool advertised to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a chat-completion request.
type Request struct {
	// Provider selects the adapter by name. Empty means the client's
	// default provider, or inference from the model identifier.
	Provider string

	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  string
	MaxTokens   int
	Temperature *float64
}

// Response is a completed (non-streaming) chat response.
type Response struct {
	ID           string
	Provider     string
	Model        string
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Usage reports token consumption for a single model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
