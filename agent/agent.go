package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/event"
	"github.com/spetersoncode/dylan/internal/observability"
	"github.com/spetersoncode/dylan/session"
	"github.com/spetersoncode/dylan/tool"
)

const msgSkipped = "Tool call skipped: the step limit was reached before it ran."

// Agent runs conversation turns against a model provider, dispatching the
// tool calls the model requests until it produces a final answer.
type Agent struct {
	provider ai.ChatProvider
	registry *tool.Registry
	sessions session.Store
	opts     *Options
}

// New creates an Agent. The registry and store are shared with the rest of
// the process and are safe for concurrent turns.
func New(provider ai.ChatProvider, registry *tool.Registry, sessions session.Store, opts ...Option) *Agent {
	return &Agent{
		provider: provider,
		registry: registry,
		sessions: sessions,
		opts:     ApplyOptions(opts...),
	}
}

// turn is the mutable state of one running turn. It is owned by the loop
// goroutine; tool goroutines only write their own result slot.
type turn struct {
	sessionID string
	// history is the persisted conversation at the start of the turn.
	history []ai.Message
	// pending holds this turn's completed messages, human message first.
	pending []ai.Message
	release func()

	step  int
	final *ai.Response

	emit func(event.Event) bool
}

// RunTurn starts a turn and returns its event stream. Input validation
// failures and a busy session are reported here, before any event. The
// channel is closed after the terminal event; callers should drain it.
func (a *Agent) RunTurn(ctx context.Context, sessionID, text string) (<-chan event.Event, error) {
	in, err := ValidateInput(text, sessionID)
	if err != nil {
		return nil, err
	}
	return a.runTurn(ctx, in)
}

// runTurn starts a turn for input that has already been validated.
func (a *Agent) runTurn(ctx context.Context, in Input) (<-chan event.Event, error) {
	release, err := a.sessions.Acquire(in.SessionID)
	if err != nil {
		return nil, err
	}
	sess, err := a.sessions.Get(ctx, in.SessionID)
	if err != nil {
		release()
		return nil, err
	}

	t := &turn{
		sessionID: in.SessionID,
		history:   sess.Messages,
		pending:   []ai.Message{ai.NewHumanMessage(in.Message)},
		release:   release,
	}

	ch := event.NewChannel()
	go a.runLoop(ctx, t, ch)
	return ch, nil
}

// Run executes a turn and blocks until it finishes.
func (a *Agent) Run(ctx context.Context, sessionID, text string) (*Result, error) {
	in, err := ValidateInput(text, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := a.runTurn(ctx, in)
	if err != nil {
		return nil, err
	}

	res := &Result{SessionID: in.SessionID}
	var content strings.Builder
	var runErr error
	for ev := range events {
		switch ev.Type {
		case event.MessageDelta:
			content.WriteString(ev.Delta)
		case event.StepEnd:
			res.Steps = ev.Step
			if ev.Response != nil {
				res.Usage = res.Usage.Add(ev.Response.Usage)
			}
		case event.RunEnd:
			res.Termination = TerminationReason(ev.Message)
			if ev.Response != nil {
				res.Final = ev.Response.Content
			}
		case event.RunError:
			res.Termination = TerminationError
			runErr = ev.Error
		}
	}
	res.Content = content.String()

	switch {
	case runErr != nil:
		return res, runErr
	case res.Termination == "":
		if err := ctx.Err(); err != nil {
			return res, err
		}
		return res, ErrNoTerminalEvent
	}
	return res, nil
}

func (a *Agent) runLoop(ctx context.Context, t *turn, ch chan<- event.Event) {
	defer close(ch)

	start := time.Now()
	logger := a.opts.Logger.With("session_id", t.sessionID)
	a.opts.Metrics.TurnStarted()

	ctx, span := a.opts.Tracer.Start(ctx, "agent.turn",
		attribute.String("session.id", t.sessionID),
		attribute.Int("agent.history_length", len(t.history)),
	)
	defer span.End()

	t.emit = func(e event.Event) bool {
		e.SessionID = t.sessionID
		return event.Emit(ctx, ch, e)
	}
	t.emit(event.Event{Type: event.RunStart})
	logger.Info("turn started", "history_length", len(t.history))

	termination, err := a.loop(ctx, t, logger)

	// The caller may be gone; history is still written.
	if perr := a.sessions.Append(context.WithoutCancel(ctx), t.sessionID, t.pending...); perr != nil {
		logger.Error("failed to persist turn", "error", perr)
		if err == nil {
			termination, err = TerminationError, perr
		}
	}
	t.release()

	duration := time.Since(start)
	a.opts.Metrics.TurnFinished(string(termination), duration)
	span.SetAttributes(
		attribute.Int("agent.steps", t.step),
		attribute.String("agent.termination", string(termination)),
	)

	if err != nil {
		observability.RecordError(span, err)
		logger.Error("turn failed",
			"termination", termination,
			"steps", t.step,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		t.emit(event.Event{Type: event.RunError, Step: t.step, Error: err, Message: string(termination)})
		return
	}

	logger.Info("turn finished",
		"termination", termination,
		"steps", t.step,
		"persisted", len(t.pending),
		"duration_ms", duration.Milliseconds(),
	)
	t.emit(event.Event{Type: event.RunEnd, Step: t.step, Response: t.final, Message: string(termination)})
}

// loop drives Model -> DecideAfterModel -> Tools until a terminal state.
// Only completed steps are appended to t.pending.
func (a *Agent) loop(ctx context.Context, t *turn, logger *slog.Logger) (TerminationReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return TerminationCancelled, err
		}

		t.step++
		t.emit(event.Event{Type: event.StepStart, Step: t.step})

		resp, err := a.modelStep(ctx, t)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return TerminationCancelled, cerr
			}
			return TerminationError, &ai.GatewayError{Err: err}
		}
		t.final = resp
		t.emit(event.Event{Type: event.StepEnd, Step: t.step, Response: resp})

		msg := ai.NewAIMessage(resp.Content, resp.ToolCalls...)
		t.pending = append(t.pending, msg)

		switch msg.Kind() {
		case ai.KindAIToolCalls:
			if t.step >= a.opts.MaxSteps {
				logger.Warn("step limit reached with pending tool calls",
					"max_steps", a.opts.MaxSteps,
					"pending_calls", len(resp.ToolCalls),
				)
				t.pending = append(t.pending, ai.NewToolResultMessage(skippedResults(resp.ToolCalls)...))
				return TerminationMaxSteps, nil
			}
			results := a.runTools(ctx, t, resp.ToolCalls)
			t.pending = append(t.pending, ai.NewToolResultMessage(results...))
		default:
			return TerminationComplete, nil
		}
	}
}

// request assembles the messages for the current step.
func (a *Agent) request(t *turn) []ai.Message {
	msgs := make([]ai.Message, 0, len(t.history)+len(t.pending)+1)
	if a.opts.SystemPrompt != "" && len(t.history) == 0 && t.step == 1 {
		msgs = append(msgs, ai.NewSystemMessage(a.opts.SystemPrompt))
	}
	msgs = append(msgs, t.history...)
	return append(msgs, t.pending...)
}

func (a *Agent) modelStep(ctx context.Context, t *turn) (*ai.Response, error) {
	msgs := a.request(t)
	tools := a.registry.Tools()
	chatOpts := append([]ai.Option{ai.WithTools(tools)}, a.opts.ChatOptions...)

	ctx, span := a.opts.Tracer.Start(ctx, "agent.model_step",
		attribute.Int("agent.step", t.step),
		attribute.Int("agent.messages", len(msgs)),
		attribute.Int("agent.tools", len(tools)),
	)
	defer span.End()

	start := time.Now()
	var resp *ai.Response
	var err error
	if a.opts.Streaming {
		resp, err = a.streamStep(ctx, t, msgs, chatOpts)
	} else {
		resp, err = a.chatStep(ctx, t, msgs, chatOpts)
	}
	a.opts.Metrics.ModelRequest(err, time.Since(start))
	observability.RecordError(span, err)
	if resp != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
			attribute.Int("agent.tool_calls", len(resp.ToolCalls)),
		)
	}
	return resp, err
}

func (a *Agent) chatStep(ctx context.Context, t *turn, msgs []ai.Message, opts []ai.Option) (*ai.Response, error) {
	resp, err := a.provider.Chat(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	if resp.Content != "" {
		id := ai.GenerateMessageID()
		t.emit(event.Event{Type: event.MessageStart, Step: t.step, MessageID: id})
		t.emit(event.Event{Type: event.MessageDelta, Step: t.step, MessageID: id, Delta: resp.Content})
		t.emit(event.Event{Type: event.MessageEnd, Step: t.step, MessageID: id, Response: resp})
	}
	return resp, nil
}

func (a *Agent) streamStep(ctx context.Context, t *turn, msgs []ai.Message, opts []ai.Option) (*ai.Response, error) {
	stream, err := a.provider.ChatStream(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}

	id := ai.GenerateMessageID()
	started := false
	delta := func(s string) {
		if !started {
			t.emit(event.Event{Type: event.MessageStart, Step: t.step, MessageID: id})
			started = true
		}
		t.emit(event.Event{Type: event.MessageDelta, Step: t.step, MessageID: id, Delta: s})
	}

	var resp *ai.Response
	for ev := range stream {
		if ev.Err != nil {
			go drain(stream)
			return nil, ev.Err
		}
		if ev.Delta != "" {
			delta(ev.Delta)
		}
		if ev.Done {
			resp = ev.Response
		}
	}
	if resp == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errIncompleteStream
	}

	// Some providers only report content on the final event.
	if !started && resp.Content != "" {
		delta(resp.Content)
	}
	if started {
		t.emit(event.Event{Type: event.MessageEnd, Step: t.step, MessageID: id, Response: resp})
	}
	return resp, nil
}

// runTools dispatches every call concurrently and waits for all of them.
// Dispatches are detached from the caller's cancellation; each is bounded by
// its own tool timeout. Results keep call order.
func (a *Agent) runTools(ctx context.Context, t *turn, calls []ai.ToolCall) []ai.ToolResult {
	results := make([]ai.ToolResult, len(calls))
	dispatchCtx := context.WithoutCancel(ctx)

	// Failures come back as ToolResult values, so the group only bounds
	// concurrency and waits; Wait never returns an error.
	var g errgroup.Group
	if a.opts.ToolConcurrency > 0 {
		g.SetLimit(a.opts.ToolConcurrency)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = a.runTool(dispatchCtx, t, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Agent) runTool(ctx context.Context, t *turn, call ai.ToolCall) ai.ToolResult {
	ctx, span := a.opts.Tracer.Start(ctx, "agent.tool",
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
		attribute.Int("agent.step", t.step),
	)
	defer span.End()

	t.emit(event.Event{Type: event.ToolCallStart, Step: t.step, ToolCall: &call})

	start := time.Now()
	res := a.registry.Dispatch(ctx, call)

	status := "success"
	if res.IsError {
		status = string(res.Kind)
		span.SetStatus(codes.Error, res.Content)
	}
	a.opts.Metrics.ToolExecution(call.Name, status, time.Since(start))

	t.emit(event.Event{Type: event.ToolCallEnd, Step: t.step, ToolCall: &call, ToolResult: &res})
	return res
}

func skippedResults(calls []ai.ToolCall) []ai.ToolResult {
	out := make([]ai.ToolResult, len(calls))
	for i, call := range calls {
		out[i] = ai.NewToolFailure(call, ai.KindToolSkipped, msgSkipped)
	}
	return out
}

func drain(ch <-chan ai.StreamEvent) {
	for range ch {
	}
}
