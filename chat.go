package dylan

import "context"

// ChatProvider is the model gateway: it turns a conversation plus the tool
// catalog into the next assistant message.
type ChatProvider interface {
	// Chat returns the complete response for messages.
	Chat(ctx context.Context, messages []Message, opts ...Option) (*Response, error)

	// ChatStream delivers the response as token deltas followed by one event
	// with Done set and the final Response. A failure mid-stream arrives as
	// an event with Err set. The channel is closed afterwards.
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (<-chan StreamEvent, error)
}
