package agui

import (
	"errors"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/dylan"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`
	Context        []any            `json:"context,omitempty"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// PreparedInput is a RunAgentInput reduced to one turn. The server keeps the
// conversation, so only the newest user message is used and the thread id
// doubles as the session id.
type PreparedInput struct {
	ThreadID string
	RunID    string
	Message  string
}

var (
	// ErrNoMessages is returned when the input contains no messages.
	ErrNoMessages = errors.New("agui: no messages provided")

	// ErrNoUserMessage is returned when no message has the user role.
	ErrNoUserMessage = errors.New("agui: no user message provided")
)

// Prepare validates the input and extracts the turn text. Missing thread
// and run ids are generated.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	if len(r.Messages) == 0 {
		return nil, ErrNoMessages
	}

	msgs := ToMessages(r.Messages)
	text := ""
	found := false
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind() == ai.KindHuman {
			text, found = msgs[i].Content, true
			break
		}
	}
	if !found {
		return nil, ErrNoUserMessage
	}

	p := &PreparedInput{ThreadID: r.ThreadID, RunID: r.RunID, Message: text}
	if p.ThreadID == "" {
		p.ThreadID = events.GenerateThreadID()
	}
	if p.RunID == "" {
		p.RunID = events.GenerateRunID()
	}
	return p, nil
}
