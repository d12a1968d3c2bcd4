package stream

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/event"
)

func feed(events ...event.Event) <-chan event.Event {
	ch := make(chan event.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func collect(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestAdaptTurn(t *testing.T) {
	calc := &ai.ToolCall{ID: "c1", Name: "calculator", Arguments: `{"expression":"123 * 456"}`}
	in := feed(
		event.Event{Type: event.RunStart},
		event.Event{Type: event.StepStart, Step: 1},
		event.Event{Type: event.ToolCallStart, ToolCall: calc},
		event.Event{Type: event.ToolCallEnd, ToolCall: calc, ToolResult: &ai.ToolResult{ToolCallID: "c1", Content: "123 * 456 = 56088"}},
		event.Event{Type: event.StepStart, Step: 2},
		event.Event{Type: event.MessageDelta, Delta: "It is "},
		event.Event{Type: event.MessageDelta, Delta: "56088"},
		event.Event{Type: event.RunEnd, Message: "complete", Response: &ai.Response{Content: "It is 56088"}},
	)

	got := collect(Adapt(context.Background(), "s1", in))
	require.Len(t, got, 5)

	assert.Equal(t, TypeToolStart, got[0].Type)
	start := got[0].Data.(ToolStartData)
	assert.Equal(t, "calculator", start.Tool)
	assert.Equal(t, map[string]any{"expression": "123 * 456"}, start.Args)

	assert.Equal(t, ToolEndData{Tool: "calculator", Result: "123 * 456 = 56088"}, got[1].Data)
	assert.Equal(t, TokenData{Content: "It is ", Accumulated: "It is "}, got[2].Data)
	assert.Equal(t, TokenData{Content: "56088", Accumulated: "It is 56088"}, got[3].Data)

	assert.Equal(t, TypeDone, got[4].Type)
	assert.Equal(t, DoneData{Message: "It is 56088", SessionID: "s1"}, got[4].Data)
}

func TestAdaptToolFailure(t *testing.T) {
	call := &ai.ToolCall{ID: "x", Name: "weather", Arguments: "not json"}
	fail := ai.NewToolFailure(*call, ai.KindToolTimeout, "Tool execution timed out. Please try again.")
	in := feed(
		event.Event{Type: event.ToolCallStart, ToolCall: call},
		event.Event{Type: event.ToolCallEnd, ToolCall: call, ToolResult: &fail},
		event.Event{Type: event.RunEnd, Message: "complete"},
	)

	got := collect(Adapt(context.Background(), "s", in))
	require.Len(t, got, 3)
	assert.Equal(t, "not json", got[0].Data.(ToolStartData).Args)
	assert.Equal(t, ToolEndData{
		Tool:   "weather",
		Result: ToolFailure{Error: "Tool execution timed out. Please try again.", Kind: ai.KindToolTimeout},
	}, got[1].Data)
}

func TestAdaptMaxStepsFlag(t *testing.T) {
	got := collect(Adapt(context.Background(), "s", feed(
		event.Event{Type: event.RunEnd, Message: "max_steps"},
	)))
	require.Len(t, got, 1)
	assert.True(t, got[0].Data.(DoneData).MaxStepsReached)
}

func TestAdaptError(t *testing.T) {
	err := &ai.GatewayError{Err: errors.New("upstream unavailable")}
	in := feed(
		event.Event{Type: event.MessageDelta, Delta: "partial"},
		event.Event{Type: event.RunError, Error: err},
	)

	got := collect(Adapt(context.Background(), "s", in))
	require.Len(t, got, 2)
	assert.Equal(t, TypeError, got[1].Type)
	assert.Equal(t, ErrorData{
		Error: "model gateway: upstream unavailable",
		Kind:  ai.KindModelGatewayFailure,
	}, got[1].Data)
}

func TestAdaptSynthesizesTerminalEvent(t *testing.T) {
	got := collect(Adapt(context.Background(), "s", feed(
		event.Event{Type: event.RunStart},
		event.Event{Type: event.MessageDelta, Delta: "hi"},
	)))
	require.Len(t, got, 2)
	last := got[len(got)-1]
	assert.Equal(t, TypeError, last.Type)
	assert.Equal(t, ErrUnexpectedEnd.Error(), last.Data.(ErrorData).Error)
}

func TestAdaptExactlyOneTerminalEvent(t *testing.T) {
	got := collect(Adapt(context.Background(), "s", feed(
		event.Event{Type: event.RunEnd, Message: "complete"},
		event.Event{Type: event.RunError, Error: errors.New("late")},
	)))
	require.Len(t, got, 1)
	assert.Equal(t, TypeDone, got[0].Type)
}

func TestAdaptDrainsAfterDisconnect(t *testing.T) {
	in := make(chan event.Event)
	ctx, cancel := context.WithCancel(context.Background())
	out := Adapt(ctx, "s", in)

	in <- event.Event{Type: event.MessageDelta, Delta: "a"}
	<-out
	cancel()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i := 0; i < 200; i++ {
			in <- event.Event{Type: event.MessageDelta, Delta: "x"}
		}
		close(in)
	}()

	select {
	case <-produced:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked after consumer disconnect")
	}
	for range out {
	}
}

func TestWriterFramesEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Write(Event{Type: TypeToken, Data: TokenData{Content: "<b>", Accumulated: "<b>"}}))
	require.NoError(t, w.Write(Event{Type: TypeDone, Data: DoneData{Message: "<b>", SessionID: "s"}}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t,
		"event: token\ndata: {\"content\":\"<b>\",\"accumulated\":\"<b>\"}\n\n"+
			"event: done\ndata: {\"message\":\"<b>\",\"session_id\":\"s\"}\n\n",
		rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestServeSendsHeartbeat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	in := make(chan Event)
	go func() {
		time.Sleep(60 * time.Millisecond)
		in <- Event{Type: TypeDone, Data: DoneData{SessionID: "s"}}
		close(in)
	}()

	n, err := w.Serve(context.Background(), in, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ": ping\n\n"))
	assert.Contains(t, body, "event: done\n")
}

func TestServeStopsOnContextDone(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Serve(ctx, make(chan Event), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
