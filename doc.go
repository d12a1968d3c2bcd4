// Package dylan defines the shared data model of the Dylan assistant:
// conversation messages, tool calls and results, the model gateway
// interface and the error taxonomy used across the agent runtime.
//
// Packages import it under the name ai:
//
//	import ai "github.com/spetersoncode/dylan"
//
// # Messages
//
// A conversation is an append-only sequence of [Message] values. Each
// message is classified by [Message.Kind] into one of a small set of kinds
// so callers branch with a switch rather than inspecting fields:
//
//	switch msg.Kind() {
//	case ai.KindAIToolCalls:
//	    // dispatch msg.ToolCalls
//	case ai.KindAIFinal:
//	    // the model answered
//	}
//
// # Model gateway
//
// [ChatProvider] is the boundary to language model backends. Concrete
// providers live in [github.com/spetersoncode/dylan/client].
//
// # Higher-level packages
//
//   - [github.com/spetersoncode/dylan/agent]: the bounded tool-calling loop
//   - [github.com/spetersoncode/dylan/tool]: tool registry and dispatch
//   - [github.com/spetersoncode/dylan/session]: conversation state
//   - [github.com/spetersoncode/dylan/stream]: external event stream and SSE
package dylan
