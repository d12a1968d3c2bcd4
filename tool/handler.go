package tool

import (
	"context"
	"encoding/json"

	ai "github.com/spetersoncode/dylan"
)

// Handler is a function that executes a tool call and returns a result.
// The context carries the dispatch timeout.
// The call contains the tool name, ID, and arguments as a JSON string.
type Handler func(ctx context.Context, call ai.ToolCall) (string, error)

// TypedHandler is a function that executes a tool call with typed arguments.
// The args parameter is automatically unmarshaled from the tool call's JSON arguments.
type TypedHandler[T any] func(ctx context.Context, args T) (string, error)

// typed adapts fn to a Handler. Unmarshal failures are reported as invalid
// arguments.
func typed[T any](fn TypedHandler[T]) Handler {
	return func(ctx context.Context, call ai.ToolCall) (string, error) {
		var args T
		if err := json.Unmarshal([]byte(normalizeArgs(call.Arguments)), &args); err != nil {
			return "", InvalidArguments(err)
		}
		return fn(ctx, args)
	}
}

func normalizeArgs(args string) string {
	if args == "" {
		return "{}"
	}
	return args
}
