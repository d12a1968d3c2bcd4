package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	ai "github.com/spetersoncode/dylan"
)

// Messages fed back to the model for recovered failures.
const (
	msgTimeout        = "Tool execution timed out. Please try again."
	msgInvalidPrefix  = "Invalid input: "
	msgInternalPrefix = "Tool error: "
	msgNotFoundPrefix = "Tool not found: "
)

type outcome struct {
	content string
	err     error
}

// Go dispatches call and returns a channel that receives exactly one result
// and is then closed. Every failure is reported as a result, never as an
// error: unknown tools, arguments that do not satisfy the schema, handler
// errors and panics, and timeouts.
//
// The dispatch is bounded by the tool's timeout. A handler that ignores its
// context is abandoned when the timeout fires; the result still resolves.
func (r *Registry) Go(ctx context.Context, call ai.ToolCall) <-chan ai.ToolResult {
	out := make(chan ai.ToolResult, 1)

	d := r.lookup(call.Name)
	if d == nil {
		out <- ai.NewToolFailure(call, ai.KindToolNotFound, msgNotFoundPrefix+call.Name)
		close(out)
		return out
	}
	if err := validateArgs(d.schema, call.Arguments); err != nil {
		out <- ai.NewToolFailure(call, ai.KindToolInvalidArguments, msgInvalidPrefix+err.Error())
		close(out)
		return out
	}
	if d.Handler == nil {
		out <- ai.NewToolFailure(call, ai.KindToolInternalError, msgInternalPrefix+"no handler registered")
		close(out)
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeoutFor(d))
	start := time.Now()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		content, err := d.Handler(ctx, call)
		done <- outcome{content: content, err: err}
	}()

	go func() {
		defer close(out)
		defer cancel()

		var res ai.ToolResult
		select {
		case o := <-done:
			res = r.resultFor(ctx, call, o)
		case <-ctx.Done():
			res = r.resultFor(ctx, call, outcome{err: ctx.Err()})
		}

		if res.IsError {
			r.logger.Warn("tool dispatch failed",
				"tool", call.Name,
				"call_id", call.ID,
				"origin", d.Origin,
				"kind", res.Kind,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		} else {
			r.logger.Debug("tool dispatch completed",
				"tool", call.Name,
				"call_id", call.ID,
				"origin", d.Origin,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		out <- res
	}()

	return out
}

// Dispatch runs call and blocks until its result is available.
func (r *Registry) Dispatch(ctx context.Context, call ai.ToolCall) ai.ToolResult {
	return <-r.Go(ctx, call)
}

func (r *Registry) resultFor(ctx context.Context, call ai.ToolCall, o outcome) ai.ToolResult {
	if o.err == nil {
		return ai.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: o.content}
	}
	switch {
	case errors.Is(o.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ai.NewToolFailure(call, ai.KindToolTimeout, msgTimeout)
	case isInvalidArguments(o.err):
		return ai.NewToolFailure(call, ai.KindToolInvalidArguments, msgInvalidPrefix+o.err.Error())
	default:
		return ai.NewToolFailure(call, ai.KindToolInternalError, msgInternalPrefix+o.err.Error())
	}
}
