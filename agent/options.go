package agent

import (
	"log/slog"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/internal/observability"
)

// DefaultMaxSteps bounds the number of model steps in one turn.
const DefaultMaxSteps = 10

// DefaultSystemPrompt is sent ahead of the first model call of a conversation.
const DefaultSystemPrompt = `You are Dylan Assistant, a helpful AI assistant that can help with travel planning and route information (using AMap), weather forecasts, web searches and general questions.

You have access to tools. Use them when they provide valuable information, combine several when a complete answer needs it, and explain their results clearly.
Be accurate and give detailed answers when needed.
Respond in the same language as the user's query.`

// Options contains configuration for an Agent.
type Options struct {
	// MaxSteps limits the number of model steps per turn. Default is 10.
	MaxSteps int

	// ToolConcurrency caps parallel tool dispatches within one step.
	// Zero means unlimited.
	ToolConcurrency int

	// SystemPrompt is prepended to the first model call of a conversation.
	// It is never persisted.
	SystemPrompt string

	// Streaming selects ChatStream over Chat. Default is true.
	Streaming bool

	// ChatOptions are passed through to the ChatProvider on every step.
	ChatOptions []ai.Option

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Option is a functional option for configuring an Agent.
type Option func(*Options)

// WithMaxSteps sets the maximum number of model steps per turn.
// Non-positive values keep the default.
func WithMaxSteps(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxSteps = n
		}
	}
}

// WithToolConcurrency caps how many tool calls of one step run at once.
func WithToolConcurrency(n int) Option {
	return func(o *Options) {
		o.ToolConcurrency = n
	}
}

// WithSystemPrompt replaces the default system prompt. An empty prompt
// disables it.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

// WithStreaming enables or disables token streaming from the provider.
func WithStreaming(enabled bool) Option {
	return func(o *Options) {
		o.Streaming = enabled
	}
}

// WithChatOptions passes options through to the ChatProvider.
func WithChatOptions(opts ...ai.Option) Option {
	return func(o *Options) {
		o.ChatOptions = append(o.ChatOptions, opts...)
	}
}

// WithModel is a convenience option to set the model for chat calls.
func WithModel(model string) Option {
	return WithChatOptions(ai.WithModel(model))
}

// WithMaxTokens is a convenience option to set max tokens for chat calls.
func WithMaxTokens(n int) Option {
	return WithChatOptions(ai.WithMaxTokens(n))
}

// WithTemperature is a convenience option to set temperature for chat calls.
func WithTemperature(t float64) Option {
	return WithChatOptions(ai.WithTemperature(t))
}

// WithLogger sets the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithMetrics records turn, model and tool metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithTracer records turn, model step and tool spans.
func WithTracer(t *observability.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// ApplyOptions applies functional options to an Options struct with defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		MaxSteps:     DefaultMaxSteps,
		SystemPrompt: DefaultSystemPrompt,
		Streaming:    true,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
