package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/internal/observability"
	"github.com/spetersoncode/dylan/session"
	"github.com/spetersoncode/dylan/tool"
	"github.com/spetersoncode/dylan/tool/native"
)

type scripted struct {
	content   string
	toolCalls []ai.ToolCall
	err       error
}

// scriptedProvider replays responses in order, streaming content one
// character at a time.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []scripted
	calls     int
}

func (p *scriptedProvider) next() scripted {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i >= len(p.responses) {
		return scripted{content: "done"}
	}
	return p.responses[i]
}

func (s scripted) response() *ai.Response {
	return &ai.Response{Content: s.content, ToolCalls: s.toolCalls}
}

func (p *scriptedProvider) Chat(ctx context.Context, _ []ai.Message, _ ...ai.Option) (*ai.Response, error) {
	r := p.next()
	if r.err != nil {
		return nil, r.err
	}
	return r.response(), nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, _ []ai.Message, _ ...ai.Option) (<-chan ai.StreamEvent, error) {
	r := p.next()
	ch := make(chan ai.StreamEvent)
	go func() {
		defer close(ch)
		if r.err != nil {
			ch <- ai.StreamEvent{Err: r.err}
			return
		}
		for _, c := range r.content {
			select {
			case <-ctx.Done():
				ch <- ai.StreamEvent{Err: ctx.Err()}
				return
			case ch <- ai.StreamEvent{Delta: string(c)}:
			}
		}
		ch <- ai.StreamEvent{Done: true, Response: r.response()}
	}()
	return ch, nil
}

func testConfig() *Config {
	return &Config{
		AppName:       "Dylan Assistant",
		AppVersion:    "1.0.0",
		Prefix:        "/api/v1",
		CORSOrigins:   []string{"*"},
		Provider:      "openrouter",
		Model:         "test-model",
		Streaming:     true,
		MaxIterations: 10,
	}
}

// newTestServer wires a server around provider. A nil provider leaves the
// agent unconfigured.
func newTestServer(t *testing.T, provider ai.ChatProvider) (*Server, session.Store) {
	t.Helper()
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := tool.NewRegistry(tool.WithLogger(logger))
	require.NoError(t, native.Register(registry))
	sessions := session.NewMemory()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		metrics:   metrics,
		gatherer:  reg,
		logger:    logger,
		heartbeat: time.Hour,
	}
	if provider != nil {
		s.agent = newAgent(cfg, provider, registry, sessions, logger, metrics, nil)
	}
	return s, sessions
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func names(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.name
	}
	return out
}

func TestChatStreamWithTool(t *testing.T) {
	provider := &scriptedProvider{responses: []scripted{
		{toolCalls: []ai.ToolCall{{ID: "c1", Name: "calculator", Arguments: `{"expression":"123 * 456"}`}}},
		{content: "56088"},
	}}
	s, sessions := newTestServer(t, provider)

	rec := post(t, s.Handler(), "/api/v1/chat/stream", `{"message":"what is 123 * 456?","session_id":"s1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "s1", rec.Header().Get("X-Session-ID"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, []string{"tool_start", "tool_end", "token", "token", "token", "token", "token", "done"}, names(events))

	var start struct {
		Tool string         `json:"tool"`
		Args map[string]any `json:"args"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &start))
	assert.Equal(t, "calculator", start.Tool)
	assert.Equal(t, "123 * 456", start.Args["expression"])

	var end struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &end))
	assert.Equal(t, "123 * 456 = 56088", end.Result)

	var done struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &done))
	assert.Equal(t, "56088", done.Message)
	assert.Equal(t, "s1", done.SessionID)

	sess, err := sessions.Lookup(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 4)
}

func TestChatDefaultsToStreaming(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{responses: []scripted{{content: "hi"}}})

	rec := post(t, s.Handler(), "/api/v1/chat", `{"message":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Session-ID"))
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].name)
}

func TestChatNonStreaming(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{responses: []scripted{{content: "Hello there"}}})

	rec := post(t, s.Handler(), "/api/v1/chat", `{"message":"hello","session_id":"abc","stream":false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Hello there", resp.Response)
	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, false, resp.Metadata["stream"])
	assert.Equal(t, "complete", resp.Metadata["termination"])
}

func TestChatValidation(t *testing.T) {
	s, sessions := newTestServer(t, &scriptedProvider{})
	h := s.Handler()

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "empty message", body: `{"message":""}`, code: http.StatusUnprocessableEntity},
		{name: "blank message", body: `{"message":"   "}`, code: http.StatusUnprocessableEntity},
		{name: "message too long", body: `{"message":"` + strings.Repeat("a", 8001) + `"}`, code: http.StatusUnprocessableEntity},
		{name: "session id too long", body: `{"message":"hi","session_id":"` + strings.Repeat("x", 101) + `"}`, code: http.StatusUnprocessableEntity},
		{name: "malformed body", body: `{"message":`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, "/api/v1/chat/stream", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}

	list, err := sessions.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestChatBusySession(t *testing.T) {
	s, sessions := newTestServer(t, &scriptedProvider{})
	release, err := sessions.Acquire("busy")
	require.NoError(t, err)
	defer release()

	for _, path := range []string{"/api/v1/chat/stream", "/api/v1/chat"} {
		rec := post(t, s.Handler(), path, `{"message":"hi","session_id":"busy","stream":false}`)
		assert.Equal(t, http.StatusConflict, rec.Code, path)
		assert.Contains(t, rec.Body.String(), string(ai.KindSessionConcurrency))
	}
}

func TestChatProviderNotConfigured(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	for _, path := range []string{"/api/v1/chat", "/api/v1/chat/stream", "/api/v1/agui"} {
		rec := post(t, h, path, `{"message":"hi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestChatGatewayFailure(t *testing.T) {
	provider := &scriptedProvider{responses: []scripted{{err: &ai.GatewayError{Err: io.ErrUnexpectedEOF}}}}
	s, _ := newTestServer(t, provider)

	rec := post(t, s.Handler(), "/api/v1/chat/stream", `{"message":"hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.name)
	assert.Contains(t, last.data, string(ai.KindModelGatewayFailure))
}

func TestSessionEndpoints(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{responses: []scripted{{content: "ok"}}})
	h := s.Handler()

	rec := post(t, h, "/api/v1/chat", `{"message":"hi","session_id":"s1","stream":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}
	del := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		return rec
	}

	rec = get("/api/v1/sessions/s1")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess struct {
		ID       string       `json:"session_id"`
		Messages []ai.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "s1", sess.ID)
	assert.Len(t, sess.Messages, 2)

	rec = get("/api/v1/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"s1"`)

	assert.Equal(t, http.StatusOK, del("/api/v1/sessions/s1").Code)
	assert.Equal(t, http.StatusNotFound, del("/api/v1/sessions/s1").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/v1/sessions/s1").Code)
}

func TestDeleteBusySession(t *testing.T) {
	s, sessions := newTestServer(t, &scriptedProvider{})
	_, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	release, err := sessions.Acquire("s1")
	require.NoError(t, err)
	defer release()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAGUIEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{responses: []scripted{{content: "hey"}}})

	body := `{"thread_id":"t1","run_id":"r1","messages":[{"id":"m1","role":"user","content":"hello"}]}`
	rec := post(t, s.Handler(), "/api/v1/agui", body)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "RUN_STARTED", events[0].name)
	assert.Contains(t, events[0].data, `"threadId":"t1"`)
	assert.Equal(t, "RUN_FINISHED", events[len(events)-1].name)
	assert.Contains(t, names(events), "TEXT_MESSAGE_CONTENT")
}

func TestAGUIRejectsInputWithoutUserMessage(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{})

	rec := post(t, s.Handler(), "/api/v1/agui", `{"thread_id":"t1","messages":[{"id":"m1","role":"assistant","content":"hi"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthAndRoot(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, map[string]string{"status": "healthy", "version": "1.0.0", "model": "test-model"}, health)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Dylan Assistant"`)
	assert.Contains(t, rec.Body.String(), "/api/v1/chat/stream")
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{})
	h := s.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dylan_http_requests_total{code="200",method="GET",path="/health"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Session-ID")
}

func TestCORSAllowList(t *testing.T) {
	s, _ := newTestServer(t, &scriptedProvider{})
	s.cfg.CORSOrigins = []string{"https://app.example.com"}
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
