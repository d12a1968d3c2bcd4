package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultHeartbeat is the idle interval between keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("stream: response writer does not support flushing")

// Writer frames events as Server-Sent Events. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE response headers on w. Headers can still be added
// until the first write.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Write sends e with its Data encoded as JSON.
func (w *Writer) Write(e Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e.Data); err != nil {
		return fmt.Errorf("failed to serialize %s event: %w", e.Type, err)
	}
	return w.WriteRaw(string(e.Type), bytes.TrimRight(buf.Bytes(), "\n"))
}

// WriteRaw sends an already encoded payload under the given event name.
func (w *Writer) WriteRaw(name string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// Ping sends a comment line that clients ignore.
func (w *Writer) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprint(w.w, ": ping\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Serve writes every event from in until it closes, pinging while idle. It
// returns the number of events written.
func (w *Writer) Serve(ctx context.Context, in <-chan Event, heartbeat time.Duration) (int, error) {
	return Pump(ctx, w, in, heartbeat, w.Write)
}

// Pump writes values from in with write until in closes, ctx ends or a write
// fails. A heartbeat comment is sent after every idle interval; a
// non-positive interval disables it.
func Pump[T any](ctx context.Context, w *Writer, in <-chan T, heartbeat time.Duration, write func(T) error) (int, error) {
	var tick <-chan time.Time
	if heartbeat > 0 {
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		tick = t.C
	}

	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-tick:
			if err := w.Ping(); err != nil {
				return n, err
			}
		case v, ok := <-in:
			if !ok {
				return n, nil
			}
			if err := write(v); err != nil {
				return n, err
			}
			n++
		}
	}
}
