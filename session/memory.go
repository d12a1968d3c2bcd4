package session

import (
	"context"
	"sort"
	"sync"
	"time"

	ai "github.com/spetersoncode/dylan"
)

type entry struct {
	// turn is held for the duration of a turn.
	turn sync.Mutex
	busy bool

	mu      sync.RWMutex
	session Session
}

// Memory is an in-process Store. Each session has its own locks, so turns on
// different sessions never contend; the map lock is only held to find or
// insert an entry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Store = (*Memory)(nil)

func (m *Memory) find(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *Memory) findOrCreate(id string) *entry {
	if e, ok := m.find(id); ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOrCreateLocked(id)
}

// findOrCreateLocked requires m.mu held for writing.
func (m *Memory) findOrCreateLocked(id string) *entry {
	if e, ok := m.entries[id]; ok {
		return e
	}
	now := m.now()
	e := &entry{session: Session{ID: id, Messages: []ai.Message{}, CreatedAt: now, UpdatedAt: now}}
	m.entries[id] = e
	return e
}

func (e *entry) snapshot() *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.session
	s.Messages = ai.CloneMessages(e.session.Messages)
	return &s
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, id string) (*Session, error) {
	return m.findOrCreate(id).snapshot(), nil
}

// Lookup implements Store.
func (m *Memory) Lookup(_ context.Context, id string) (*Session, error) {
	e, ok := m.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	return e.snapshot(), nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, id string, msgs ...ai.Message) error {
	e := m.findOrCreate(id)
	if len(msgs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Messages = append(e.session.Messages, ai.CloneMessages(msgs)...)
	e.session.UpdatedAt = m.now()
	return nil
}

// Acquire implements Store.
//
// The token is taken under the map lock, so Delete never removes an entry
// whose token is held and a held token always belongs to the mapped entry.
func (m *Memory) Acquire(id string) (func(), error) {
	m.mu.Lock()
	e := m.findOrCreateLocked(id)
	locked := e.turn.TryLock()
	m.mu.Unlock()
	if !locked {
		return nil, &BusyError{SessionID: id}
	}
	e.mu.Lock()
	e.busy = true
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.busy = false
			e.mu.Unlock()
			e.turn.Unlock()
		})
	}, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return false, nil
	}
	if !e.turn.TryLock() {
		return false, &BusyError{SessionID: id}
	}
	delete(m.entries, id)
	e.turn.Unlock()
	return true, nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, Summary{
			ID:           e.session.ID,
			MessageCount: len(e.session.Messages),
			CreatedAt:    e.session.CreatedAt,
			UpdatedAt:    e.session.UpdatedAt,
			Busy:         e.busy,
		})
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
