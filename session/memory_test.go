package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ai "github.com/spetersoncode/dylan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGet(t *testing.T) {
	ctx := context.Background()

	t.Run("creates empty session for unseen id", func(t *testing.T) {
		m := NewMemory()
		s, err := m.Get(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, "new", s.ID)
		assert.Empty(t, s.Messages)
		assert.False(t, s.CreatedAt.IsZero())
	})

	t.Run("returns a copy", func(t *testing.T) {
		m := NewMemory()
		require.NoError(t, m.Append(ctx, "s", ai.NewHumanMessage("hi")))

		s, err := m.Get(ctx, "s")
		require.NoError(t, err)
		s.Messages[0].Content = "mutated"
		s.Messages = append(s.Messages, ai.NewAIMessage("extra"))

		again, err := m.Get(ctx, "s")
		require.NoError(t, err)
		require.Len(t, again.Messages, 1)
		assert.Equal(t, "hi", again.Messages[0].Content)
	})
}

func TestMemoryLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Append(ctx, "present", ai.NewHumanMessage("hi")))
	s, err := m.Lookup(ctx, "present")
	require.NoError(t, err)
	assert.Len(t, s.Messages, 1)
}

func TestMemoryAppend(t *testing.T) {
	ctx := context.Background()
	ticks := int64(0)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Second)
	}))

	require.NoError(t, m.Append(ctx, "s", ai.NewHumanMessage("one")))
	require.NoError(t, m.Append(ctx, "s", ai.NewAIMessage("two"), ai.NewHumanMessage("three")))
	require.NoError(t, m.Append(ctx, "s"))

	s, err := m.Get(ctx, "s")
	require.NoError(t, err)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{s.Messages[0].Content, s.Messages[1].Content, s.Messages[2].Content})
	assert.True(t, s.UpdatedAt.After(s.CreatedAt))
}

func TestMemoryAcquire(t *testing.T) {
	t.Run("second acquire on same id is rejected", func(t *testing.T) {
		m := NewMemory()
		release, err := m.Acquire("s")
		require.NoError(t, err)

		_, err = m.Acquire("s")
		require.Error(t, err)
		assert.ErrorIs(t, err, ai.ErrSessionBusy)
		assert.Equal(t, ai.KindSessionConcurrency, ai.KindOf(err))

		var busy *BusyError
		require.True(t, errors.As(err, &busy))
		assert.Equal(t, "s", busy.SessionID)

		release()
		release()

		again, err := m.Acquire("s")
		require.NoError(t, err)
		again()
	})

	t.Run("different ids are independent", func(t *testing.T) {
		m := NewMemory()
		r1, err := m.Acquire("a")
		require.NoError(t, err)
		r2, err := m.Acquire("b")
		require.NoError(t, err)
		r1()
		r2()
	})

	t.Run("exactly one concurrent acquirer wins", func(t *testing.T) {
		m := NewMemory()
		var wins, losses int64
		var wg sync.WaitGroup
		start := make(chan struct{})
		hold := make(chan struct{})

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				release, err := m.Acquire("shared")
				if err != nil {
					atomic.AddInt64(&losses, 1)
					return
				}
				atomic.AddInt64(&wins, 1)
				<-hold
				release()
			}()
		}
		close(start)
		require.Eventually(t, func() bool {
			return atomic.LoadInt64(&wins)+atomic.LoadInt64(&losses) == 20
		}, time.Second, 5*time.Millisecond)
		close(hold)
		wg.Wait()

		assert.Equal(t, int64(1), wins)
		assert.Equal(t, int64(19), losses)
	})

	t.Run("delete racing acquire never yields two holders", func(t *testing.T) {
		ctx := context.Background()
		m := NewMemory()
		var holders, overlaps int64
		var wg sync.WaitGroup

		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 500; j++ {
					release, err := m.Acquire("shared")
					if err != nil {
						continue
					}
					if atomic.AddInt64(&holders, 1) > 1 {
						atomic.AddInt64(&overlaps, 1)
					}
					time.Sleep(time.Microsecond)
					atomic.AddInt64(&holders, -1)
					release()
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 500; j++ {
					_, _ = m.Delete(ctx, "shared")
				}
			}()
		}
		wg.Wait()

		assert.Zero(t, overlaps)
	})

	t.Run("held session cannot be deleted out from under its holder", func(t *testing.T) {
		ctx := context.Background()
		m := NewMemory()
		release, err := m.Acquire("s")
		require.NoError(t, err)

		_, err = m.Delete(ctx, "s")
		require.ErrorIs(t, err, ai.ErrSessionBusy)
		_, err = m.Acquire("s")
		require.ErrorIs(t, err, ai.ErrSessionBusy)

		release()
		existed, err := m.Delete(ctx, "s")
		require.NoError(t, err)
		assert.True(t, existed)

		again, err := m.Acquire("s")
		require.NoError(t, err)
		_, err = m.Acquire("s")
		assert.ErrorIs(t, err, ai.ErrSessionBusy)
		again()
	})
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Append(ctx, "s", ai.NewHumanMessage("hi")))

	release, err := m.Acquire("s")
	require.NoError(t, err)
	_, err = m.Delete(ctx, "s")
	assert.ErrorIs(t, err, ai.ErrSessionBusy)
	release()

	existed, err := m.Delete(ctx, "s")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = m.Delete(ctx, "s")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = m.Lookup(ctx, "s")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	ticks := int64(0)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Second)
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Append(ctx, fmt.Sprintf("s%d", i), ai.NewHumanMessage("hi")))
	}
	release, err := m.Acquire("s1")
	require.NoError(t, err)
	defer release()

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "s0", list[2].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.True(t, list[1].Busy)
}
