package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays one outcome per call.
type scriptedProvider struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	lastOpt *ai.Options
}

func (p *scriptedProvider) next(opts []ai.Option) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastOpt = ai.ApplyOptions(opts...)
	var err error
	if p.calls < len(p.errs) {
		err = p.errs[p.calls]
	}
	p.calls++
	return err
}

func (p *scriptedProvider) Chat(_ context.Context, _ []ai.Message, opts ...ai.Option) (*ai.Response, error) {
	if err := p.next(opts); err != nil {
		return nil, err
	}
	return &ai.Response{Content: "ok"}, nil
}

func (p *scriptedProvider) ChatStream(_ context.Context, _ []ai.Message, opts ...ai.Option) (<-chan ai.StreamEvent, error) {
	err := p.next(opts)
	ch := make(chan ai.StreamEvent, 3)
	if err != nil {
		ch <- ai.StreamEvent{Err: err}
	} else {
		ch <- ai.StreamEvent{Delta: "o"}
		ch <- ai.StreamEvent{Delta: "k"}
		ch <- ai.StreamEvent{Done: true, Response: &ai.Response{Content: "ok"}}
	}
	close(ch)
	return ch, nil
}

func fastRetry(attempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ai.ProviderOpenRouter})
	var missing *ErrMissingAPIKey
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "no API key configured for openrouter", err.Error())

	_, err = New(context.Background(), Config{Provider: "mystery", APIKey: "k"})
	var unsupported *ErrUnsupportedProvider
	require.ErrorAs(t, err, &unsupported)
}

func TestNew_SelectsBackend(t *testing.T) {
	for _, p := range []ai.Provider{ai.ProviderOpenRouter, ai.ProviderOpenAI, ai.ProviderAnthropic} {
		c, err := New(context.Background(), Config{Provider: p, APIKey: "k", Model: "m"})
		require.NoError(t, err, p)
		assert.Equal(t, p, c.Provider())
		assert.Equal(t, "m", c.Model())
	}
}

func TestChat_DefaultsAndOverrides(t *testing.T) {
	p := &scriptedProvider{}
	temp := 0.2
	c := Wrap(p, Config{Model: "default-model", Temperature: &temp, MaxTokens: 100, Retry: fastRetry(1)})

	_, err := c.Chat(context.Background(), nil, ai.WithModel("override"))
	require.NoError(t, err)
	assert.Equal(t, "override", p.lastOpt.Model)
	assert.Equal(t, 100, p.lastOpt.MaxTokens)
	require.NotNil(t, p.lastOpt.Temperature)
	assert.InDelta(t, 0.2, *p.lastOpt.Temperature, 1e-9)
}

func TestChat_RetriesTransient(t *testing.T) {
	p := &scriptedProvider{errs: []error{
		ai.NewTransientError("rate limited", 429, nil),
		ai.NewTransientError("unavailable", 503, nil),
	}}
	c := Wrap(p, Config{Retry: fastRetry(3)})

	resp, err := c.Chat(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, p.calls)
}

func TestChat_PermanentNotRetried(t *testing.T) {
	p := &scriptedProvider{errs: []error{ai.NewPermanentError("bad key", 401, nil)}}
	c := Wrap(p, Config{Retry: fastRetry(3)})

	_, err := c.Chat(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, ai.IsPermanent(err))
	assert.Equal(t, 1, p.calls)
}

func TestChatStream_RetriesFailureBeforeFirstEvent(t *testing.T) {
	p := &scriptedProvider{errs: []error{ai.NewTransientError("overloaded", 529, nil)}}
	c := Wrap(p, Config{Retry: fastRetry(2)})

	ch, err := c.ChatStream(context.Background(), nil)
	require.NoError(t, err)

	var deltas string
	var done bool
	for ev := range ch {
		require.NoError(t, ev.Err)
		deltas += ev.Delta
		done = done || ev.Done
	}
	assert.Equal(t, "ok", deltas)
	assert.True(t, done)
	assert.Equal(t, 2, p.calls)
}

func TestChatStream_ExhaustedRetriesReturnError(t *testing.T) {
	boom := ai.NewTransientError("unavailable", 503, errors.New("down"))
	p := &scriptedProvider{errs: []error{boom, boom}}
	c := Wrap(p, Config{Retry: fastRetry(2)})

	_, err := c.ChatStream(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, ai.IsTransient(err))
	assert.Equal(t, 2, p.calls)
}
