package google

import (
	"encoding/json"

	ai "github.com/spetersoncode/dylan"
	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// convertMessages maps the history to Gemini contents. System prompts are
// returned separately as the system instruction.
func convertMessages(messages []ai.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system *genai.Content

	for _, msg := range messages {
		switch msg.Kind() {
		case ai.KindSystem:
			if msg.Content == "" {
				continue
			}
			if system == nil {
				system = &genai.Content{Role: roleUser}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})

		case ai.KindHuman:
			if msg.Content != "" {
				contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: msg.Content}}})
			}

		case ai.KindAIToolCalls, ai.KindAIFinal:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &args)
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}

		case ai.KindToolResult:
			parts := make([]*genai.Part, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				name := tr.Name
				if name == "" {
					name = tr.ToolCallID
				}
				key := "output"
				if tr.IsError {
					key = "error"
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       tr.ToolCallID,
						Name:     name,
						Response: map[string]any{key: tr.Content},
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleUser, Parts: parts})
			}
		}
	}

	return contents, system
}
