// Package event defines the internal event stream produced by an agent turn.
// Events are published on a channel in the order they occur; the stream
// package republishes them in the external wire format and the agui package
// maps them onto the AG-UI protocol.
package event

import (
	"context"
	"time"

	ai "github.com/spetersoncode/dylan"
)

// Type identifies the kind of event.
type Type string

// Run lifecycle events
const (
	// RunStart fires when a turn begins.
	RunStart Type = "run_start"

	// RunEnd fires when a turn finishes without a fatal error. Message holds
	// the termination reason and Response the final step's response.
	RunEnd Type = "run_end"

	// RunError fires when a turn fails fatally.
	RunError Type = "run_error"
)

// Step lifecycle events
const (
	StepStart Type = "step_start"
	StepEnd   Type = "step_end"
)

// Message lifecycle events
const (
	// MessageStart fires when an assistant message begins streaming.
	MessageStart Type = "message_start"

	// MessageDelta fires for each streaming token.
	MessageDelta Type = "message_delta"

	// MessageEnd fires when an assistant message completes.
	MessageEnd Type = "message_end"
)

// Tool call lifecycle events
const (
	// ToolCallStart fires when a tool call is dispatched.
	ToolCallStart Type = "tool_call_start"

	// ToolCallEnd fires when a dispatched call completes, successfully or not.
	// ToolResult is always set.
	ToolCallEnd Type = "tool_call_end"
)

// IsTerminal reports whether t ends a turn's stream.
func (t Type) IsTerminal() bool {
	return t == RunEnd || t == RunError
}

// Event represents an observable occurrence during a turn.
type Event struct {
	Type Type

	// SessionID identifies the conversation the turn belongs to.
	SessionID string

	// MessageID identifies the message for Start/Delta/End correlation.
	MessageID string

	// Step is the current model step (1-indexed).
	Step int

	// Delta contains streaming content for MessageDelta events.
	Delta string

	// Response contains the complete response for MessageEnd and RunEnd events.
	Response *ai.Response

	// ToolCall is set on tool events.
	ToolCall *ai.ToolCall

	// ToolResult is set on ToolCallEnd events.
	ToolResult *ai.ToolResult

	// Error is set on RunError events.
	Error error

	// Message carries the termination reason on RunEnd.
	Message string

	Timestamp time.Time
}

// Emit stamps e and sends it on ch, blocking until the receiver takes it or
// ctx is done. It reports whether the event was delivered.
func Emit(ctx context.Context, ch chan<- Event, e Event) bool {
	e.Timestamp = time.Now()
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// NewChannel creates a buffered event channel with standard capacity.
func NewChannel() chan Event {
	return make(chan Event, 100)
}
