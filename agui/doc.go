// Package agui exposes agent turns over the AG-UI protocol.
//
// AG-UI (Agent-User Interface) is an event-based protocol that standardizes
// how agents stream to user-facing applications. A [Mapper] converts one
// turn's internal events to AG-UI events:
//
//   - run_start → RUN_STARTED, plus MESSAGES_SNAPSHOT when created [WithHistory]
//   - step_start / step_end → STEP_STARTED / STEP_FINISHED
//   - message_start / message_delta / message_end → TEXT_MESSAGE_START / CONTENT / END
//   - tool_call_start → TOOL_CALL_START, TOOL_CALL_ARGS
//   - tool_call_end → TOOL_CALL_END, TOOL_CALL_RESULT
//   - run_end / run_error → RUN_FINISHED / RUN_ERROR
//
// [RunAgentInput.Prepare] reduces a request to one turn: the thread id is the
// session id and the newest user message is the turn text.
//
//	prepared, err := input.Prepare()
//	events, err := a.RunTurn(ctx, prepared.ThreadID, prepared.Message)
//	mapper := agui.NewMapper(prepared.ThreadID, prepared.RunID)
//	for ev := range mapper.MapStream(ctx, events) {
//	    data, _ := ev.ToJSON()
//	    sse.WriteRaw(string(ev.Type()), data)
//	}
//
// The Mapper is not safe for concurrent use; conversion functions are.
package agui
