package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"
	"github.com/mark3labs/mcp-go/mcp"
	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/internal/observability"
	"github.com/spetersoncode/dylan/tool"
)

const (
	// DefaultFetchTimeout bounds connecting to and listing one server.
	DefaultFetchTimeout = 5 * time.Second

	// DefaultRefreshInterval is the period of background refreshes.
	DefaultRefreshInterval = 5 * time.Minute

	connectTries   = 3
	reloadDebounce = 250 * time.Millisecond
)

// Manager keeps the registry's remote tools in sync with the configured
// servers. A server that cannot be reached contributes no tools; it never
// affects native tools or other servers.
type Manager struct {
	registry *tool.Registry
	connect  Connector
	logger   *slog.Logger
	metrics  *observability.Metrics

	fetchTimeout time.Duration
	interval     time.Duration

	// refreshMu serializes refreshes; mu guards the fields below.
	refreshMu sync.Mutex
	mu        sync.Mutex
	servers   []ServerConfig
	sessions  map[string]*liveSession
	// retired sessions are closed after the next swap.
	retired []*liveSession
}

// liveSession is an open session shared by the tools it published. Tools
// of the previous snapshot may still be dispatching when a refresh replaces
// it, so a retired session is closed only after its last call returns.
type liveSession struct {
	cfg     ServerConfig
	session Session

	mu      sync.Mutex
	calls   int
	retired bool
	closed  bool
}

var errSessionClosed = errors.New("mcp: remote session closed")

func newLiveSession(cfg ServerConfig, sess Session) *liveSession {
	return &liveSession{cfg: cfg, session: sess}
}

func (ls *liveSession) acquire() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		return false
	}
	ls.calls++
	return true
}

func (ls *liveSession) release() {
	ls.mu.Lock()
	ls.calls--
	last := ls.retired && ls.calls == 0 && !ls.closed
	if last {
		ls.closed = true
	}
	ls.mu.Unlock()
	if last {
		ls.session.Close()
	}
}

// retire closes the session now if it is idle, otherwise when the last
// in-flight call releases it.
func (ls *liveSession) retire() {
	ls.mu.Lock()
	ls.retired = true
	idle := ls.calls == 0 && !ls.closed
	if idle {
		ls.closed = true
	}
	ls.mu.Unlock()
	if idle {
		ls.session.Close()
	}
}

// close closes the session regardless of in-flight calls.
func (ls *liveSession) close() error {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil
	}
	ls.closed = true
	ls.mu.Unlock()
	return ls.session.Close()
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnector replaces the mcp-go connector, mainly for tests.
func WithConnector(c Connector) Option {
	return func(m *Manager) {
		if c != nil {
			m.connect = c
		}
	}
}

// WithFetchTimeout bounds connecting to and listing one server.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithRefreshInterval sets the period used by Run.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records per-server tool counts.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a manager for cfg's servers. No connection is made
// until Refresh.
func NewManager(registry *tool.Registry, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		registry:     registry,
		connect:      Connect,
		logger:       slog.Default(),
		fetchTimeout: DefaultFetchTimeout,
		interval:     DefaultRefreshInterval,
		servers:      cfg.Servers,
		sessions:     make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Servers returns the configured servers.
func (m *Manager) Servers() []ServerConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ServerConfig(nil), m.servers...)
}

// SetConfig replaces the server list. It takes effect on the next Refresh.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	m.servers = cfg.Servers
	m.mu.Unlock()
}

// Refresh lists the tools of every configured server and swaps the result
// into the registry. The returned error joins the failures of individual
// servers; the swap happens regardless. Sessions replaced by the refresh
// stay open until calls dispatched from the old snapshot finish.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	servers := m.Servers()
	var (
		remote []tool.RemoteTool
		errs   []error
	)
	for _, cfg := range servers {
		tools, err := m.fetch(ctx, cfg)
		if err != nil {
			m.logger.Warn("remote tool server unavailable", "server", cfg.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Name, err))
			m.metrics.SetRemoteTools(cfg.Name, 0)
			continue
		}
		remote = append(remote, tools...)
		m.metrics.SetRemoteTools(cfg.Name, len(tools))
	}

	m.mu.Lock()
	keep := make(map[string]bool, len(servers))
	for _, cfg := range servers {
		keep[cfg.Name] = true
	}
	for name, ls := range m.sessions {
		if !keep[name] {
			m.retired = append(m.retired, ls)
			delete(m.sessions, name)
		}
	}
	retired := m.retired
	m.retired = nil
	m.mu.Unlock()

	rejected := m.registry.ReplaceRemote(remote)
	for _, ls := range retired {
		ls.retire()
	}

	m.logger.Info("remote tools refreshed",
		"servers", len(servers),
		"tools", len(remote)-len(rejected),
		"rejected", len(rejected),
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

// fetch lists cfg's tools, reusing the open session when it still answers.
func (m *Manager) fetch(ctx context.Context, cfg ServerConfig) ([]tool.RemoteTool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	if ls := m.session(cfg); ls != nil {
		res, err := ls.session.ListTools(ctx, mcp.ListToolsRequest{})
		if err == nil {
			return remoteTools(cfg, ls, res.Tools), nil
		}
		m.logger.Debug("remote session stale, reconnecting", "server", cfg.Name, "error", err)
		m.dropSession(cfg.Name)
	}

	type listed struct {
		session Session
		tools   []mcp.Tool
	}
	var op backoff.Operation[listed] = func() (listed, error) {
		sess, err := m.connect(ctx, cfg)
		if err != nil {
			return listed{}, err
		}
		res, err := sess.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			sess.Close()
			return listed{}, err
		}
		return listed{session: sess, tools: res.Tools}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = time.Second
	got, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(connectTries),
	)
	if err != nil {
		return nil, err
	}

	ls := newLiveSession(cfg, got.session)
	m.mu.Lock()
	m.sessions[cfg.Name] = ls
	m.mu.Unlock()
	return remoteTools(cfg, ls, got.tools), nil
}

// session returns the open session for cfg if its configuration is
// unchanged. A session opened for a different configuration is retired.
func (m *Manager) session(cfg ServerConfig) *liveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, ok := m.sessions[cfg.Name]
	if !ok {
		return nil
	}
	if !sameServer(ls.cfg, cfg) {
		delete(m.sessions, cfg.Name)
		m.retired = append(m.retired, ls)
		return nil
	}
	return ls
}

// dropSession retires the named session. It is closed after the swap.
func (m *Manager) dropSession(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok := m.sessions[name]; ok {
		delete(m.sessions, name)
		m.retired = append(m.retired, ls)
	}
}

func sameServer(a, b ServerConfig) bool {
	if a.URL != b.URL || a.Transport != b.Transport || a.Command != b.Command || a.Timeout != b.Timeout {
		return false
	}
	if len(a.Args) != len(b.Args) || len(a.Env) != len(b.Env) || len(a.Headers) != len(b.Headers) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	for k, v := range a.Env {
		if b.Env[k] != v {
			return false
		}
	}
	for k, v := range a.Headers {
		if b.Headers[k] != v {
			return false
		}
	}
	return true
}

func remoteTools(cfg ServerConfig, ls *liveSession, tools []mcp.Tool) []tool.RemoteTool {
	out := make([]tool.RemoteTool, len(tools))
	for i, t := range tools {
		out[i] = tool.RemoteTool{
			Tool:    FromMCPTool(t),
			Source:  cfg.Name,
			Handler: remoteHandler(ls),
			Timeout: cfg.Timeout,
		}
	}
	return out
}

// remoteHandler forwards a call to the server. Results flagged as errors by
// the server are reported as handler errors.
func remoteHandler(ls *liveSession) tool.Handler {
	return func(ctx context.Context, call ai.ToolCall) (string, error) {
		if !ls.acquire() {
			return "", errSessionClosed
		}
		defer ls.release()
		res, err := ls.session.CallTool(ctx, ToMCPCallToolRequest(call))
		if err != nil {
			return "", err
		}
		out := FromMCPCallToolResult(call.ID, res)
		if out.IsError {
			return "", errors.New(out.Content)
		}
		return out.Content, nil
	}
}

// Run refreshes periodically until ctx is done. After a failed refresh the
// next attempt comes sooner, backing off exponentially up to the interval.
func (m *Manager) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = m.interval

	timer := time.NewTimer(m.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := m.Refresh(ctx); err != nil {
			next := b.NextBackOff()
			m.logger.Debug("remote tool refresh incomplete", "retry_in", next, "error", err)
			timer.Reset(next)
			continue
		}
		b.Reset()
		timer.Reset(m.interval)
	}
}

// Loader reads the server configuration from path.
type Loader func(path string) (Config, error)

// Watch reloads the configuration whenever the file at path changes and
// refreshes the registry. A nil load uses LoadConfig. It blocks until ctx is
// done.
func (m *Manager) Watch(ctx context.Context, path string, load Loader) error {
	if load == nil {
		load = LoadConfig
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("mcp config watch error", "error", err)
		case <-debounce:
			debounce = nil
			cfg, err := load(path)
			if err != nil {
				m.logger.Warn("mcp config reload failed", "path", path, "error", err)
				continue
			}
			m.SetConfig(cfg)
			m.logger.Info("mcp config reloaded", "path", path, "servers", len(cfg.Servers))
			_ = m.Refresh(ctx)
		}
	}
}

// Close closes every open session, including retired ones still serving
// calls.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	retired := m.retired
	m.sessions = make(map[string]*liveSession)
	m.retired = nil
	m.mu.Unlock()

	var errs []error
	for name, ls := range sessions {
		if err := ls.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for _, ls := range retired {
		if err := ls.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ls.cfg.Name, err))
		}
	}
	return errors.Join(errs...)
}
