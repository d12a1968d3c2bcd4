package stream

import ai "github.com/spetersoncode/dylan"

// Type names an external stream event. It is the SSE event name.
type Type string

const (
	TypeToken     Type = "token"
	TypeToolStart Type = "tool_start"
	TypeToolEnd   Type = "tool_end"
	TypeError     Type = "error"
	TypeDone      Type = "done"
)

// IsTerminal reports whether t ends a stream.
func (t Type) IsTerminal() bool {
	return t == TypeError || t == TypeDone
}

// Event is one external stream event. Data is one of the *Data types below
// and is the JSON payload on the wire.
type Event struct {
	Type Type
	Data any
}

// TokenData carries one model token.
type TokenData struct {
	Content string `json:"content"`
	// Accumulated is every token of the turn so far.
	Accumulated string `json:"accumulated"`
}

// ToolStartData announces a dispatched tool call. Args is the decoded JSON
// object, or the raw argument string if it does not decode to an object.
type ToolStartData struct {
	Tool string `json:"tool"`
	Args any    `json:"args"`
}

// ToolEndData reports a finished tool call. Result is the content string on
// success and a ToolFailure otherwise.
type ToolEndData struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// ToolFailure is the result payload of a failed tool call.
type ToolFailure struct {
	Error string       `json:"error"`
	Kind  ai.ErrorKind `json:"kind,omitempty"`
}

// ErrorData ends a stream that failed.
type ErrorData struct {
	Error string       `json:"error"`
	Kind  ai.ErrorKind `json:"kind,omitempty"`
}

// DoneData ends a stream that completed.
type DoneData struct {
	// Message is every token of the turn concatenated.
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	// MaxStepsReached is set when the step limit stopped the turn.
	MaxStepsReached bool `json:"max_steps_reached,omitempty"`
}
