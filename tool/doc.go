// Package tool provides the tool registry used by the agent loop.
//
// A Registry merges two catalogs: native tools registered in process, and a
// remote subset discovered from tool servers and swapped in as a whole with
// ReplaceRemote. Native names always win; a remote tool that collides with a
// native one is dropped when the snapshot is built.
//
// Dispatch never returns an error. Unknown tools, arguments that do not
// satisfy the declared schema, handler errors, panics and timeouts all come
// back as a ToolResult with IsError set and an ai.ErrorKind, so the model can
// react to them on its next step.
//
// # Registering tools
//
//	type WeatherArgs struct {
//	    Location string `json:"location" jsonschema:"description=City name"`
//	}
//
//	registry := tool.NewRegistry().Add(
//	    tool.Func("weather", "Get current weather",
//	        func(ctx context.Context, args WeatherArgs) (string, error) {
//	            return lookup(ctx, args.Location)
//	        },
//	        tool.WithTimeout(10*time.Second),
//	    ),
//	)
//
// Handlers that reject their input should wrap the error with
// InvalidArguments so it is reported as tool_invalid_arguments.
package tool
