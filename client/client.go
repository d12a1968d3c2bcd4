package client

import (
	"context"
	"fmt"
	"log/slog"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/internal/provider/anthropic"
	"github.com/spetersoncode/dylan/internal/provider/google"
	"github.com/spetersoncode/dylan/internal/provider/openai"
	"github.com/spetersoncode/dylan/internal/retry"
)

// DefaultOpenRouterURL is the OpenRouter endpoint used when no base URL is set.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// ErrMissingAPIKey is returned when the selected provider has no API key.
type ErrMissingAPIKey struct {
	Provider ai.Provider
}

func (e *ErrMissingAPIKey) Error() string {
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// ErrUnsupportedProvider is returned for an unknown provider name.
type ErrUnsupportedProvider struct {
	Provider ai.Provider
}

func (e *ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported provider: %q", string(e.Provider))
}

// Config selects and configures the model gateway backend.
type Config struct {
	Provider ai.Provider
	APIKey   string
	// BaseURL overrides the provider endpoint. OpenRouter defaults to
	// DefaultOpenRouterURL.
	BaseURL string
	// Model is the default model. Empty uses the provider default.
	Model       string
	Temperature *float64
	MaxTokens   int

	// AppName and AppURL are sent to OpenRouter for attribution.
	AppName string
	AppURL  string

	// Retry configures retries of transient failures. Nil uses
	// retry.DefaultConfig.
	Retry  *retry.Config
	Logger *slog.Logger
}

// Client is the model gateway: a ChatProvider for the configured backend
// with default options and transient-failure retries applied.
type Client struct {
	provider        ai.ChatProvider
	name            ai.Provider
	model           string
	retryConfig     retry.Config
	defaultChatOpts []ai.Option
	logger          *slog.Logger
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &ErrMissingAPIKey{Provider: cfg.Provider}
	}

	var p ai.ChatProvider
	switch cfg.Provider {
	case ai.ProviderOpenRouter:
		base := cfg.BaseURL
		if base == "" {
			base = DefaultOpenRouterURL
		}
		opts := []openai.ClientOption{openai.WithBaseURL(base), openai.WithModel(cfg.Model)}
		if cfg.AppURL != "" {
			opts = append(opts, openai.WithHeader("HTTP-Referer", cfg.AppURL))
		}
		if cfg.AppName != "" {
			opts = append(opts, openai.WithHeader("X-Title", cfg.AppName))
		}
		p = openai.New(cfg.APIKey, opts...)
	case ai.ProviderOpenAI:
		opts := []openai.ClientOption{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		p = openai.New(cfg.APIKey, opts...)
	case ai.ProviderAnthropic:
		opts := []anthropic.ClientOption{anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		p = anthropic.New(cfg.APIKey, opts...)
	case ai.ProviderGoogle:
		opts := []google.ClientOption{google.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(cfg.BaseURL))
		}
		g, err := google.New(ctx, cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google client: %w", err)
		}
		p = g
	default:
		return nil, &ErrUnsupportedProvider{Provider: cfg.Provider}
	}

	return Wrap(p, cfg), nil
}

// Wrap applies cfg's defaults and retry policy to an existing provider.
func Wrap(p ai.ChatProvider, cfg Config) *Client {
	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		provider:    p,
		name:        cfg.Provider,
		model:       cfg.Model,
		retryConfig: rc,
		logger:      logger,
	}
	if cfg.Model != "" {
		c.defaultChatOpts = append(c.defaultChatOpts, ai.WithModel(cfg.Model))
	}
	if cfg.Temperature != nil {
		c.defaultChatOpts = append(c.defaultChatOpts, ai.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		c.defaultChatOpts = append(c.defaultChatOpts, ai.WithMaxTokens(cfg.MaxTokens))
	}
	return c
}

// Provider names the backend.
func (c *Client) Provider() ai.Provider { return c.name }

// Model returns the default model, which may be empty.
func (c *Client) Model() string { return c.model }

func (c *Client) options(opts []ai.Option) []ai.Option {
	// Defaults first so per-request options override them.
	merged := make([]ai.Option, 0, len(c.defaultChatOpts)+len(opts))
	merged = append(merged, c.defaultChatOpts...)
	return append(merged, opts...)
}

// Chat sends a conversation and returns a complete response, retrying
// transient failures.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	opts = c.options(opts)
	attempt := 0
	return retry.Do(ctx, c.retryConfig, func() (*ai.Response, error) {
		attempt++
		resp, err := c.provider.Chat(ctx, messages, opts...)
		if err != nil {
			c.logger.Debug("model request failed", "provider", c.name, "attempt", attempt, "error", err)
		}
		return resp, err
	})
}

// ChatStream sends a conversation and returns a channel of streaming events.
// A stream that fails before its first event is retried like Chat; once an
// event has been delivered, failures are passed through.
func (c *Client) ChatStream(ctx context.Context, messages []ai.Message, opts ...ai.Option) (<-chan ai.StreamEvent, error) {
	opts = c.options(opts)
	attempt := 0
	return retry.DoStream(ctx, c.retryConfig, func() (<-chan ai.StreamEvent, error) {
		attempt++
		ch, err := c.provider.ChatStream(ctx, messages, opts...)
		if err != nil {
			c.logger.Debug("model stream failed", "provider", c.name, "attempt", attempt, "error", err)
			return nil, err
		}

		first, ok := <-ch
		if !ok {
			return nil, ai.NewTransientError("model stream closed without events", 0, nil)
		}
		if first.Err != nil {
			c.logger.Debug("model stream failed", "provider", c.name, "attempt", attempt, "error", first.Err)
			drain(ch)
			return nil, first.Err
		}
		return prepend(ctx, first, ch), nil
	})
}

func prepend(ctx context.Context, first ai.StreamEvent, rest <-chan ai.StreamEvent) <-chan ai.StreamEvent {
	out := make(chan ai.StreamEvent)
	go func() {
		defer close(out)
		select {
		case out <- first:
		case <-ctx.Done():
			drain(rest)
			return
		}
		for ev := range rest {
			select {
			case out <- ev:
			case <-ctx.Done():
				drain(rest)
				return
			}
		}
	}()
	return out
}

func drain(ch <-chan ai.StreamEvent) {
	go func() {
		for range ch {
		}
	}()
}

var _ ai.ChatProvider = (*Client)(nil)
