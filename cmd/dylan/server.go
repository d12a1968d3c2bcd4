package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/agent"
	"github.com/spetersoncode/dylan/agui"
	"github.com/spetersoncode/dylan/internal/observability"
	"github.com/spetersoncode/dylan/session"
	"github.com/spetersoncode/dylan/stream"
)

// Server serves the chat API.
type Server struct {
	cfg       *Config
	agent     *agent.Agent // nil when no provider is configured
	sessions  session.Store
	metrics   *observability.Metrics
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	heartbeat time.Duration
}

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	// Stream defaults to true on the chat endpoint.
	Stream *bool `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming chat result.
type ChatResponse struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
}

func newServer(a *app) *Server {
	return &Server{
		cfg:       a.cfg,
		agent:     a.agent,
		sessions:  a.sessions,
		metrics:   a.metrics,
		gatherer:  a.gatherer,
		logger:    a.logger,
		heartbeat: stream.DefaultHeartbeat,
	}
}

// Handler returns the routed handler with CORS and request metrics applied.
func (s *Server) Handler() http.Handler {
	p := strings.TrimSuffix(s.cfg.Prefix, "/")
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+p+"/chat", s.handleChat)
	mux.HandleFunc("POST "+p+"/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST "+p+"/agui", s.handleAGUI)
	mux.HandleFunc("GET "+p+"/sessions", s.handleListSessions)
	mux.HandleFunc("GET "+p+"/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE "+p+"/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return s.corsMiddleware(s.instrument(mux))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, in, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	if req.Stream == nil || *req.Stream {
		s.streamTurn(w, r, in)
		return
	}

	log := s.logger.With("session_id", in.SessionID)
	res, err := s.agent.Run(r.Context(), in.SessionID, in.Message)
	if err != nil {
		log.Error("turn failed", "error", err)
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  res.Content,
		SessionID: res.SessionID,
		Metadata: map[string]any{
			"stream":            false,
			"termination":       res.Termination,
			"steps":             res.Steps,
			"max_steps_reached": res.MaxStepsReached(),
		},
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if _, in, ok := s.decodeChat(w, r); ok {
		s.streamTurn(w, r, in)
	}
}

// decodeChat parses and validates a chat body. It writes the error response
// itself and reports whether the turn may proceed.
func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (ChatRequest, agent.Input, bool) {
	var req ChatRequest
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "model provider is not configured", "")
		return req, agent.Input{}, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return req, agent.Input{}, false
	}
	in, err := agent.ValidateInput(req.Message, req.SessionID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
		return req, agent.Input{}, false
	}
	return req, in, true
}

func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, in agent.Input) {
	start := time.Now()
	ctx := r.Context()
	log := s.logger.With("session_id", in.SessionID)

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	turn, err := s.agent.RunTurn(ctx, in.SessionID, in.Message)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	w.Header().Set("X-Session-ID", in.SessionID)

	sent, err := sw.Serve(ctx, stream.Adapt(ctx, in.SessionID, turn), s.heartbeat)
	if err != nil {
		log.Debug("stream ended early", "error", err)
	}
	log.Info("stream complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", sent,
	)
}

func (s *Server) handleAGUI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "model provider is not configured", "")
		return
	}

	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return
	}
	prepared, err := input.Prepare()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
		return
	}
	in, err := agent.ValidateInput(prepared.Message, prepared.ThreadID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
		return
	}

	ctx := r.Context()
	log := s.logger.With("thread_id", in.SessionID, "run_id", prepared.RunID)

	var opts []agui.MapperOption
	if prior, err := s.sessions.Lookup(ctx, in.SessionID); err == nil && len(prior.Messages) > 0 {
		opts = append(opts, agui.WithHistory(prior.Messages))
	}
	mapper := agui.NewMapper(in.SessionID, prepared.RunID, opts...)

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	turn, err := s.agent.RunTurn(ctx, in.SessionID, in.Message)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	sent, err := stream.Pump(ctx, sw, mapper.MapStream(ctx, turn), s.heartbeat, func(ev events.Event) error {
		data, err := ev.ToJSON()
		if err != nil {
			return err
		}
		return sw.WriteRaw(string(ev.Type()), data)
	})
	if err != nil {
		log.Debug("agui stream ended early", "error", err)
	}
	log.Info("agui run complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", sent,
	)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Lookup(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.sessions.Delete(r.Context(), id)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "session_id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if s.agent == nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": s.cfg.AppVersion,
		"model":   s.cfg.Model,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	p := strings.TrimSuffix(s.cfg.Prefix, "/")
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    s.cfg.AppName,
		"version": s.cfg.AppVersion,
		"endpoints": map[string]string{
			"chat":        "POST " + p + "/chat",
			"chat_stream": "POST " + p + "/chat/stream",
			"agui":        "POST " + p + "/agui",
			"sessions":    "GET " + p + "/sessions",
			"session":     "GET|DELETE " + p + "/sessions/{id}",
			"health":      "GET /health",
			"metrics":     "GET /metrics",
		},
	})
}

// writeTurnError maps a turn failure to a status code.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	kind := ai.KindOf(err)
	switch {
	case kind == ai.KindSessionConcurrency:
		writeError(w, http.StatusConflict, err.Error(), string(kind))
	case errors.Is(err, agent.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "")
	case kind == ai.KindModelGatewayFailure:
		writeError(w, http.StatusBadGateway, err.Error(), string(kind))
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), string(kind))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail, kind string) {
	writeJSON(w, code, errorResponse{Detail: detail, Kind: kind})
}

// corsMiddleware allows the configured origins. "*" allows any.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "X-Session-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code. It forwards Flush so SSE
// handlers still see a flusher.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument counts requests by route pattern, so session ids do not
// become label values.
func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		} else if _, route, ok := strings.Cut(path, " "); ok {
			path = route
		}
		code := rec.code
		if code == 0 {
			code = http.StatusOK
		}
		s.metrics.HTTPRequest(r.Method, path, code)
	})
}
