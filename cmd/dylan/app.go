package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/agent"
	"github.com/spetersoncode/dylan/client"
	"github.com/spetersoncode/dylan/internal/observability"
	"github.com/spetersoncode/dylan/internal/retry"
	"github.com/spetersoncode/dylan/mcp"
	"github.com/spetersoncode/dylan/session"
	"github.com/spetersoncode/dylan/tool"
	"github.com/spetersoncode/dylan/tool/native"
)

// app is the wired process: registry, remote tool manager, sessions and,
// when a provider is configured, the agent.
type app struct {
	cfg      *Config
	logger   *slog.Logger
	registry *tool.Registry
	remote   *mcp.Manager
	sessions session.Store
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	tracer   *observability.Tracer
	agent    *agent.Agent

	shutdownTracer func(context.Context) error
}

func newLogger(cfg *Config) *slog.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    os.Stderr,
		AddSource: cfg.Debug,
	})
}

// newApp builds everything the serve command needs. Remote tools are not
// fetched here; see startRemote.
func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "dylan",
		ServiceVersion: cfg.AppVersion,
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
	})

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	mcpCfg, err := cfg.MCP()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		remote: mcp.NewManager(registry, mcpCfg,
			mcp.WithFetchTimeout(cfg.MCPFetchTimeout),
			mcp.WithRefreshInterval(cfg.MCPRefreshInterval),
			mcp.WithLogger(logger),
			mcp.WithMetrics(metrics),
		),
		sessions:       session.NewMemory(),
		metrics:        metrics,
		gatherer:       reg,
		tracer:         tracer,
		shutdownTracer: shutdown,
	}

	provider, err := newProvider(ctx, cfg, logger)
	switch {
	case err == nil:
		a.agent = newAgent(cfg, provider, registry, a.sessions, logger, metrics, tracer)
	case isMissingKey(err):
		logger.Warn("model provider not configured; chat endpoints unavailable",
			"provider", cfg.Provider)
	default:
		return nil, err
	}
	return a, nil
}

func newRegistry(cfg *Config, logger *slog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(
		tool.WithDefaultTimeout(cfg.ToolTimeout),
		tool.WithLogger(logger),
	)
	if err := native.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func newProvider(ctx context.Context, cfg *Config, logger *slog.Logger) (*client.Client, error) {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.MaxRetries
	temperature := cfg.Temperature

	return client.New(ctx, client.Config{
		Provider:    ai.Provider(cfg.Provider),
		APIKey:      cfg.APIKey(),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: &temperature,
		MaxTokens:   cfg.MaxTokens,
		AppName:     cfg.AppName,
		Retry:       &rc,
		Logger:      logger,
	})
}

func newAgent(cfg *Config, provider ai.ChatProvider, registry *tool.Registry, sessions session.Store,
	logger *slog.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *agent.Agent {
	return agent.New(provider, registry, sessions,
		agent.WithMaxSteps(cfg.MaxIterations),
		agent.WithToolConcurrency(cfg.ToolConcurrency),
		agent.WithStreaming(cfg.Streaming),
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
		agent.WithTracer(tracer),
	)
}

func isMissingKey(err error) bool {
	var missing *client.ErrMissingAPIKey
	return errors.As(err, &missing)
}

// startRemote fetches remote tools once and keeps them fresh until ctx is
// done. A failed first fetch is logged; the periodic refresh retries it.
func (a *app) startRemote(ctx context.Context) {
	if len(a.remote.Servers()) == 0 && a.cfg.MCPConfigPath == "" {
		return
	}
	if err := a.remote.Refresh(ctx); err != nil {
		a.logger.Warn("initial remote tool refresh incomplete", "error", err)
	}
	a.logger.Info("tool catalog ready", "tools", a.registry.Len(), "remote", a.registry.RemoteCount())

	go a.remote.Run(ctx)
	if a.cfg.MCPConfigPath != "" {
		go func() {
			if err := a.remote.Watch(ctx, a.cfg.MCPConfigPath, a.cfg.loadMCP); err != nil {
				a.logger.Warn("mcp config watch stopped", "error", err)
			}
		}()
	}
}

func (a *app) close(ctx context.Context) {
	if err := a.remote.Close(); err != nil {
		a.logger.Warn("closing remote tool sessions", "error", err)
	}
	if err := a.shutdownTracer(ctx); err != nil {
		a.logger.Warn("tracer shutdown", "error", err)
	}
}
