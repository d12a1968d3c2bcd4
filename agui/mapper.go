package agui

import (
	"context"
	"errors"
	"fmt"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/event"
)

// Mapper converts a turn's internal events to AG-UI events.
//
// Create a new Mapper for each run using NewMapper. The Mapper is not
// safe for concurrent use.
type Mapper struct {
	threadID string
	runID    string
	history  []ai.Message
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithHistory emits a MESSAGES_SNAPSHOT of msgs right after RUN_STARTED.
func WithHistory(msgs []ai.Message) MapperOption {
	return func(m *Mapper) {
		m.history = msgs
	}
}

// NewMapper creates a new Mapper for a single run.
func NewMapper(threadID, runID string, opts ...MapperOption) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	m := &Mapper{threadID: threadID, runID: runID}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string {
	return m.runID
}

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event.
func (m *Mapper) RunError(err error) events.Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return events.NewRunErrorEvent(msg)
}

// MapEvent converts one internal event. Tool events expand to the AG-UI
// start/args and end/result pairs. Events without an AG-UI equivalent map
// to nothing.
func (m *Mapper) MapEvent(e event.Event) []events.Event {
	switch e.Type {
	case event.RunStart:
		out := []events.Event{m.RunStarted()}
		if len(m.history) > 0 {
			out = append(out, events.NewMessagesSnapshotEvent(FromMessages(m.history)))
		}
		return out
	case event.RunEnd:
		return []events.Event{m.RunFinished()}
	case event.RunError:
		return []events.Event{m.RunError(e.Error)}

	case event.StepStart:
		return []events.Event{events.NewStepStartedEvent(stepName(e.Step))}
	case event.StepEnd:
		return []events.Event{events.NewStepFinishedEvent(stepName(e.Step))}

	case event.MessageStart:
		return []events.Event{events.NewTextMessageStartEvent(e.MessageID, events.WithRole(RoleAssistant))}
	case event.MessageDelta:
		if e.Delta == "" {
			return nil
		}
		return []events.Event{events.NewTextMessageContentEvent(e.MessageID, e.Delta)}
	case event.MessageEnd:
		return []events.Event{events.NewTextMessageEndEvent(e.MessageID)}

	case event.ToolCallStart:
		if e.ToolCall == nil {
			return nil
		}
		out := []events.Event{events.NewToolCallStartEvent(e.ToolCall.ID, e.ToolCall.Name)}
		if e.ToolCall.Arguments != "" {
			out = append(out, events.NewToolCallArgsEvent(e.ToolCall.ID, e.ToolCall.Arguments))
		}
		return out
	case event.ToolCallEnd:
		if e.ToolCall == nil || e.ToolResult == nil {
			return nil
		}
		return []events.Event{
			events.NewToolCallEndEvent(e.ToolCall.ID),
			events.NewToolCallResultEvent(events.GenerateMessageID(), e.ToolCall.ID, e.ToolResult.Content),
		}
	}
	return nil
}

// MapStream maps in until a terminal event. The output always ends with
// RUN_FINISHED or RUN_ERROR unless ctx ends first; a stream that closes
// without one gets a RUN_ERROR. in is drained after the output closes.
func (m *Mapper) MapStream(ctx context.Context, in <-chan event.Event) <-chan events.Event {
	out := make(chan events.Event, 16)
	go func() {
		defer close(out)
		defer func() {
			go func() {
				for range in {
				}
			}()
		}()

		send := func(ev events.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-in:
				if !ok {
					send(m.RunError(errStreamClosed))
					return
				}
				for _, ev := range m.MapEvent(e) {
					if !send(ev) {
						return
					}
				}
				if e.Type.IsTerminal() {
					return
				}
			}
		}
	}()
	return out
}

var errStreamClosed = errors.New("agui: run ended without a result")

func stepName(step int) string {
	return fmt.Sprintf("step_%d", step)
}
