// Package stream republishes an agent turn's internal events in the external
// wire format (token, tool_start, tool_end, error, done) and frames them as
// Server-Sent Events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/agent"
	"github.com/spetersoncode/dylan/event"
)

// ErrUnexpectedEnd is reported when the internal stream closes without a
// terminal event.
var ErrUnexpectedEnd = errors.New("stream: turn ended without a result")

// Adapt converts in to the external event stream. The output always ends
// with exactly one error or done event, unless ctx ends first. Once ctx is
// done forwarding stops and in is drained in the background so the producer
// never blocks.
func Adapt(ctx context.Context, sessionID string, in <-chan event.Event) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer func() { go drain(in) }()

		a := adapter{sessionID: sessionID}
		send := func(e Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					send(errorEvent(ErrUnexpectedEnd))
					return
				}
				e, emit := a.convert(ev)
				if !emit {
					continue
				}
				if !send(e) || e.Type.IsTerminal() {
					return
				}
			}
		}
	}()
	return out
}

type adapter struct {
	sessionID   string
	accumulated strings.Builder
}

func (a *adapter) convert(ev event.Event) (Event, bool) {
	switch ev.Type {
	case event.MessageDelta:
		if ev.Delta == "" {
			return Event{}, false
		}
		a.accumulated.WriteString(ev.Delta)
		return Event{Type: TypeToken, Data: TokenData{
			Content:     ev.Delta,
			Accumulated: a.accumulated.String(),
		}}, true

	case event.ToolCallStart:
		if ev.ToolCall == nil {
			return Event{}, false
		}
		return Event{Type: TypeToolStart, Data: ToolStartData{
			Tool: ev.ToolCall.Name,
			Args: decodeArgs(ev.ToolCall.Arguments),
		}}, true

	case event.ToolCallEnd:
		if ev.ToolCall == nil || ev.ToolResult == nil {
			return Event{}, false
		}
		data := ToolEndData{Tool: ev.ToolCall.Name, Result: ev.ToolResult.Content}
		if ev.ToolResult.IsError {
			data.Result = ToolFailure{Error: ev.ToolResult.Content, Kind: ev.ToolResult.Kind}
		}
		return Event{Type: TypeToolEnd, Data: data}, true

	case event.RunError:
		err := ev.Error
		if err == nil {
			err = ErrUnexpectedEnd
		}
		return errorEvent(err), true

	case event.RunEnd:
		return Event{Type: TypeDone, Data: DoneData{
			Message:         a.accumulated.String(),
			SessionID:       a.sessionID,
			MaxStepsReached: ev.Message == string(agent.TerminationMaxSteps),
		}}, true
	}
	return Event{}, false
}

func errorEvent(err error) Event {
	return Event{Type: TypeError, Data: ErrorData{Error: err.Error(), Kind: ai.KindOf(err)}}
}

func decodeArgs(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return raw
	}
	return args
}

func drain(in <-chan event.Event) {
	for range in {
	}
}
