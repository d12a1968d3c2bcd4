// Package session stores conversation history keyed by session id.
//
// A Store owns the persisted message history. The agent loop borrows a
// session for one turn: it acquires the session's turn token, reads the
// history, and writes the turn's messages back with a single Append before
// releasing the token.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	ai "github.com/spetersoncode/dylan"
)

// ErrNotFound is returned by Lookup for unknown session ids.
var ErrNotFound = errors.New("session: not found")

// Session is a snapshot of one conversation.
type Session struct {
	ID        string       `json:"session_id"`
	Messages  []ai.Message `json:"messages"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Summary describes a session without its messages.
type Summary struct {
	ID           string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Busy         bool      `json:"busy"`
}

// Store is the session persistence boundary.
type Store interface {
	// Get returns a copy of the session, creating an empty one if absent.
	Get(ctx context.Context, id string) (*Session, error)

	// Lookup returns a copy of an existing session or ErrNotFound.
	Lookup(ctx context.Context, id string) (*Session, error)

	// Append adds msgs to the end of the session history atomically.
	Append(ctx context.Context, id string, msgs ...ai.Message) error

	// Acquire takes the session's turn token. It fails immediately with a
	// *BusyError when another turn holds it. The returned release func is
	// safe to call more than once.
	Acquire(id string) (release func(), err error)

	// Delete removes a session. It fails with a *BusyError while a turn is
	// running and reports whether the session existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns summaries ordered by most recent update.
	List(ctx context.Context) ([]Summary, error)
}

// BusyError reports a second concurrent turn on the same session.
type BusyError struct {
	SessionID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session: %s already has a turn in progress", e.SessionID)
}

// Unwrap lets errors.Is match ai.ErrSessionBusy.
func (e *BusyError) Unwrap() error { return ai.ErrSessionBusy }

// Kind implements ai.Kinded.
func (e *BusyError) Kind() ai.ErrorKind { return ai.KindSessionConcurrency }
