package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input limits.
const (
	MaxMessageLength   = 8000
	MaxSessionIDLength = 100
)

// Input is a validated turn request.
type Input struct {
	// Message is the trimmed user text.
	Message string
	// SessionID is the caller's id, or a generated one.
	SessionID string
}

// ValidateInput checks a turn request before any loop state is touched.
// Lengths are counted in characters. The message limit applies before
// trimming; the trimmed text must not be empty. An empty session id is
// replaced with a new UUID.
func ValidateInput(message, sessionID string) (Input, error) {
	n := utf8.RuneCountInString(message)
	if n == 0 {
		return Input{}, &InputError{Field: "message", Reason: "must not be empty"}
	}
	if n > MaxMessageLength {
		return Input{}, &InputError{Field: "message", Reason: "must be at most 8000 characters"}
	}
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Input{}, &InputError{Field: "message", Reason: "must not be blank"}
	}

	if utf8.RuneCountInString(sessionID) > MaxSessionIDLength {
		return Input{}, &InputError{Field: "session_id", Reason: "must be at most 100 characters"}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return Input{Message: trimmed, SessionID: sessionID}, nil
}
