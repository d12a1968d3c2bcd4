// Package client provides the model gateway used by the agent.
//
// A Client wraps one provider backend (OpenRouter, OpenAI, Anthropic or
// Google Gemini) selected by configuration, applies default request options,
// and retries transient failures with exponential backoff:
//
//	c, err := client.New(ctx, client.Config{
//	    Provider: ai.ProviderOpenRouter,
//	    APIKey:   os.Getenv("OPENROUTER_API_KEY"),
//	    Model:    "openai/gpt-4o-mini",
//	})
//
//	resp, err := c.Chat(ctx, []ai.Message{ai.NewHumanMessage("Hello!")})
//
// Rate limits and 5xx responses are retried; authentication and request
// errors are returned immediately.
package client
