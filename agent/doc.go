// Package agent runs conversation turns: the model is called, the tool calls
// it requests are dispatched concurrently, and their results are fed back
// until the model answers without tools or the step limit is reached.
//
// Each turn borrows its session exclusively. A second turn on the same
// session is rejected with a *session.BusyError before any event is emitted.
//
//	a := agent.New(provider, registry, session.NewMemory(),
//	    agent.WithMaxSteps(10),
//	    agent.WithToolConcurrency(4),
//	)
//
//	events, err := a.RunTurn(ctx, sessionID, "What's the weather in Paris?")
//	if err != nil {
//	    return err // *agent.InputError or *session.BusyError
//	}
//	for e := range events {
//	    switch e.Type {
//	    case event.MessageDelta:
//	        fmt.Print(e.Delta)
//	    case event.ToolCallStart:
//	        fmt.Printf("[%s]\n", e.ToolCall.Name)
//	    case event.RunEnd:
//	        fmt.Println("\ndone:", e.Message)
//	    }
//	}
//
// Tool failures never end a turn; they are returned to the model as failed
// results. A model gateway failure ends the turn with a run_error event
// carrying a *dylan.GatewayError. The messages of completed steps are
// persisted in every case.
//
// Run is the blocking variant and returns the concatenated content.
package agent
