package agui

import (
	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/dylan"
)

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ToMessages converts AG-UI messages to conversation messages.
func ToMessages(msgs []events.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, ToMessage(msg))
	}
	return out
}

// ToMessage converts a single AG-UI message.
func ToMessage(msg events.Message) ai.Message {
	m := ai.Message{ID: msg.ID, Role: toRole(msg.Role)}
	if msg.Content != nil {
		m.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, ai.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if msg.ToolCallID != nil {
		m.Role = ai.RoleTool
		m.ToolResults = []ai.ToolResult{{ToolCallID: *msg.ToolCallID, Content: m.Content}}
		m.Content = ""
	}
	return m
}

// FromMessages converts session history to AG-UI messages for a
// MESSAGES_SNAPSHOT. A tool message carrying several results becomes one
// AG-UI message per result.
func FromMessages(msgs []ai.Message) []events.Message {
	out := make([]events.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Kind() == ai.KindToolResult {
			for _, res := range msg.ToolResults {
				out = append(out, fromToolResult(res))
			}
			continue
		}
		out = append(out, FromMessage(msg))
	}
	return out
}

// FromMessage converts a single non-tool message.
func FromMessage(msg ai.Message) events.Message {
	id := msg.ID
	if id == "" {
		id = events.GenerateMessageID()
	}
	m := events.Message{ID: id, Role: fromRole(msg.Role)}
	if msg.Content != "" {
		content := msg.Content
		m.Content = &content
	}
	if len(msg.ToolCalls) > 0 {
		m.ToolCalls = make([]events.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			m.ToolCalls[i] = events.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: events.Function{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			}
		}
	}
	return m
}

func fromToolResult(res ai.ToolResult) events.Message {
	callID, content := res.ToolCallID, res.Content
	return events.Message{
		ID:         events.GenerateMessageID(),
		Role:       RoleTool,
		Content:    &content,
		ToolCallID: &callID,
	}
}

func toRole(role string) ai.Role {
	switch role {
	case RoleAssistant:
		return ai.RoleAssistant
	case RoleSystem:
		return ai.RoleSystem
	case RoleTool:
		return ai.RoleTool
	default:
		return ai.RoleUser
	}
}

func fromRole(role ai.Role) string {
	switch role {
	case ai.RoleAssistant:
		return RoleAssistant
	case ai.RoleSystem:
		return RoleSystem
	case ai.RoleTool:
		return RoleTool
	default:
		return RoleUser
	}
}
