package dylan

import "github.com/google/uuid"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessageKind classifies a message for control flow decisions.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindSystem
	KindHuman
	// KindAIToolCalls is an assistant message requesting one or more tool calls.
	KindAIToolCalls
	// KindAIFinal is an assistant message without tool calls.
	KindAIFinal
	KindToolResult
)

var kindNames = map[MessageKind]string{
	KindUnknown:     "unknown",
	KindSystem:      "system",
	KindHuman:       "human",
	KindAIToolCalls: "ai_tool_calls",
	KindAIFinal:     "ai_final",
	KindToolResult:  "tool_result",
}

func (k MessageKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Message represents a single message in a conversation.
type Message struct {
	// ID is an optional unique identifier for the message.
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	// ToolCalls contains tool invocation requests from an assistant message.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolResults contains results from tool executions.
	// Only populated when Role is RoleTool.
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// Kind reports which variant of the conversation union m belongs to.
func (m Message) Kind() MessageKind {
	switch m.Role {
	case RoleSystem:
		return KindSystem
	case RoleUser:
		return KindHuman
	case RoleTool:
		return KindToolResult
	case RoleAssistant:
		if len(m.ToolCalls) > 0 {
			return KindAIToolCalls
		}
		return KindAIFinal
	default:
		return KindUnknown
	}
}

// NewSystemMessage creates a system prompt message.
func NewSystemMessage(content string) Message {
	return Message{ID: GenerateMessageID(), Role: RoleSystem, Content: content}
}

// NewHumanMessage creates a user message.
func NewHumanMessage(content string) Message {
	return Message{ID: GenerateMessageID(), Role: RoleUser, Content: content}
}

// NewAIMessage creates an assistant message, optionally carrying tool calls.
func NewAIMessage(content string, calls ...ToolCall) Message {
	return Message{
		ID:        GenerateMessageID(),
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	}
}

// GenerateMessageID creates a unique message identifier.
func GenerateMessageID() string {
	return "msg-" + uuid.New().String()
}

// CloneMessages returns a deep copy of msgs so callers can mutate the result
// without affecting shared history.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
		if m.ToolResults != nil {
			out[i].ToolResults = append([]ToolResult(nil), m.ToolResults...)
		}
	}
	return out
}

// Response represents a complete response from a chat provider.
type Response struct {
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        Usage  `json:"usage"`
	// ToolCalls contains any tool invocation requests from the model.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// Usage contains token usage information for a request.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// StreamEvent represents a single event in a streaming response.
type StreamEvent struct {
	// Delta contains the incremental content for this event.
	Delta string
	// Done indicates if this is the final event in the stream.
	Done bool
	// Response contains the final response data when Done is true.
	Response *Response
	// Err contains any error that occurred during streaming.
	Err error
}
