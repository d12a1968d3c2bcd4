package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	ai "github.com/spetersoncode/dylan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo(t *testing.T) {
	t.Run("returns first success", func(t *testing.T) {
		calls := 0
		out, err := Do(context.Background(), fastConfig(3), func() (string, error) {
			calls++
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		out, err := Do(context.Background(), fastConfig(3), func() (string, error) {
			calls++
			if calls < 3 {
				return "", ai.NewTransientError("overloaded", 503, nil)
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fastConfig(5), func() (string, error) {
			calls++
			return "", ai.NewPermanentError("bad key", 401, nil)
		})
		assert.True(t, ai.IsPermanent(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error when attempts are exhausted", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), fastConfig(3), func() (int, error) {
			calls++
			return 0, statusErr(500 + calls)
		})
		assert.Equal(t, statusErr(503), err)
		assert.Equal(t, 3, calls)
	})

	t.Run("disabled config makes one attempt", func(t *testing.T) {
		calls := 0
		_, err := Do(context.Background(), Disabled(), func() (int, error) {
			calls++
			return 0, statusErr(429)
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops waiting when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := Config{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

		calls := 0
		_, err := Do(ctx, cfg, func() (int, error) {
			calls++
			cancel()
			return 0, statusErr(503)
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors retry after", func(t *testing.T) {
		calls := 0
		start := time.Now()
		_, err := Do(context.Background(), fastConfig(2), func() (int, error) {
			calls++
			if calls == 1 {
				return 0, ai.NewTransientErrorWithRetry("slow down", 429, 30*time.Millisecond, nil)
			}
			return 1, nil
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})
}

func TestDoStream(t *testing.T) {
	calls := 0
	ch, err := DoStream(context.Background(), fastConfig(3), func() (<-chan int, error) {
		calls++
		if calls == 1 {
			return nil, statusErr(502)
		}
		out := make(chan int, 1)
		out <- 7
		close(out)
		return out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, <-ch)
	assert.Equal(t, 2, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "categorized transient", err: ai.NewTransientError("x", 0, nil), expected: true},
		{name: "categorized user input wins over message", err: ai.NewUserInputError("rate limit words", 400, nil), expected: false},
		{name: "status 429", err: statusErr(429), expected: true},
		{name: "status 503", err: statusErr(503), expected: true},
		{name: "status 404", err: statusErr(404), expected: false},
		{name: "connection reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), expected: true},
		{name: "message pattern", err: errors.New("upstream: Service Unavailable"), expected: true},
		{name: "plain", err: errors.New("invalid model"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestEffectiveDelay(t *testing.T) {
	withHint := ai.NewTransientErrorWithRetry("x", 429, 5*time.Second, nil)
	assert.Equal(t, 5*time.Second, effectiveDelay(time.Second, withHint))
	assert.Equal(t, 10*time.Second, effectiveDelay(10*time.Second, withHint))
	assert.Equal(t, time.Second, effectiveDelay(time.Second, errors.New("x")))
}
