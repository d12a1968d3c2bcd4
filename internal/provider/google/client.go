// Package google implements ai.ChatProvider on the Gemini API.
package google

import (
	"context"
	"errors"
	"strings"

	ai "github.com/spetersoncode/dylan"
	"google.golang.org/genai"
)

// DefaultModel is used when neither the client nor the request names one.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Google GenAI SDK to implement ai.ChatProvider.
type Client struct {
	client *genai.Client
	model  string
}

type config struct {
	model   string
	baseURL string
}

// ClientOption configures the Google client.
type ClientOption func(*config)

// WithModel sets the default model for requests.
func WithModel(model string) ClientOption {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *config) {
		c.baseURL = url
	}
}

// New creates a new Gemini client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := config{model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: cfg.model}, nil
}

func (c *Client) request(messages []ai.Message, opts []ai.Option) (string, []*genai.Content, *genai.GenerateContentConfig) {
	options := ai.ApplyOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	contents, system := convertMessages(messages)
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		config.Temperature = &temp
	}
	if len(options.Tools) > 0 {
		config.Tools = convertTools(options.Tools)
	}
	return model, contents, config
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	model, contents, config := c.request(messages, opts)
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	if err := blocked(resp); err != nil {
		return nil, err
	}

	var parts []*genai.Part
	finishReason := ""
	if len(resp.Candidates) > 0 {
		finishReason = string(resp.Candidates[0].FinishReason)
		if resp.Candidates[0].Content != nil {
			parts = resp.Candidates[0].Content.Parts
		}
	}
	return &ai.Response{
		Content:      textOf(parts),
		FinishReason: finishReason,
		Usage:        usageOf(resp),
		ToolCalls:    extractToolCalls(parts),
	}, nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []ai.Message, opts ...ai.Option) (<-chan ai.StreamEvent, error) {
	model, contents, config := c.request(messages, opts)
	ch := make(chan ai.StreamEvent)

	go func() {
		defer close(ch)

		var (
			parts        []*genai.Part
			finishReason string
			usage        ai.Usage
			received     bool
		)
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				send(ctx, ch, ai.StreamEvent{Err: wrapError(err)})
				return
			}
			received = true
			if err := blocked(resp); err != nil {
				send(ctx, ch, ai.StreamEvent{Err: err})
				return
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, part := range resp.Candidates[0].Content.Parts {
					parts = append(parts, part)
					if part.Text != "" {
						if !send(ctx, ch, ai.StreamEvent{Delta: part.Text}) {
							return
						}
					}
				}
				finishReason = string(resp.Candidates[0].FinishReason)
			}
			if resp.UsageMetadata != nil {
				usage = usageOf(resp)
			}
		}
		if !received {
			send(ctx, ch, ai.StreamEvent{Err: ai.NewTransientError("google: stream returned no data", 0, nil)})
			return
		}

		send(ctx, ch, ai.StreamEvent{
			Done: true,
			Response: &ai.Response{
				Content:      textOf(parts),
				FinishReason: finishReason,
				Usage:        usage,
				ToolCalls:    extractToolCalls(parts),
			},
		})
	}()

	return ch, nil
}

func textOf(parts []*genai.Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func usageOf(resp *genai.GenerateContentResponse) ai.Usage {
	if resp.UsageMetadata == nil {
		return ai.Usage{}
	}
	return ai.Usage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}

// BlockedError indicates the request was blocked by content filtering.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "google: request blocked: " + e.Reason
}

func blocked(resp *genai.GenerateContentResponse) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return ai.NewUserInputError("google: prompt blocked", 0, &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)})
	}
	return nil
}

func send(ctx context.Context, ch chan<- ai.StreamEvent, ev ai.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// wrapError categorizes an API error by status code. The Gemini API does
// not expose Retry-After.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return ai.CategorizeStatus(err.Error(), apiErr.Code, 0, err)
}

var _ ai.ChatProvider = (*Client)(nil)
