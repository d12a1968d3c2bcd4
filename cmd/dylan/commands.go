package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/dylan/mcp"
	"github.com/spetersoncode/dylan/tool"
)

const shutdownTimeout = 30 * time.Second

func buildRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "dylan",
		Short: "Dylan - tool-augmented conversational agent",
		Long: `Dylan answers chat messages with a language model that can call tools
(calculator, clock, weather, web search, and any tools published by
configured MCP servers), streaming tokens and tool activity over SSE.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of ./.env")

	rootCmd.AddCommand(
		buildServeCmd(&envFile),
		buildMCPCmd(&envFile),
		buildToolsCmd(&envFile),
	)
	return rootCmd
}

func buildServeCmd(envFile *string) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides API_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides API_PORT)")
	return cmd
}

func runServe(parent context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.startRemote(ctx)

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     newServer(a).Handler(),
		ReadTimeout: 10 * time.Second,
		// Streams stay open for the whole turn.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", srv.Addr,
			"provider", cfg.Provider,
			"model", cfg.Model,
			"prefix", cfg.Prefix,
			"tools", a.registry.Len(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	a.close(shutdownCtx)
	logger.Info("server stopped")
	return nil
}

func buildMCPCmd(envFile *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the built-in tools as an MCP server",
		Long: `Serve the built-in tools to MCP clients. Without --http the server
speaks MCP over stdin/stdout; with --http it serves streamable HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*envFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			registry, err := newRegistry(cfg, logger)
			if err != nil {
				return err
			}
			opts := []mcp.ServerOption{mcp.WithName("dylan-tools"), mcp.WithVersion(cfg.AppVersion)}

			if addr == "" {
				return mcp.ServeStdio(registry, opts...)
			}
			return serveMCPHTTP(cmd.Context(), addr, registry, opts, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	return cmd
}

func serveMCPHTTP(parent context.Context, addr string, registry *tool.Registry, opts []mcp.ServerOption, cfg *Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := newLogger(cfg)

	srv := &http.Server{
		Addr:        addr,
		Handler:     mcp.NewHTTPHandler(registry, opts...),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server starting", "addr", addr, "tools", registry.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildToolsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*envFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			registry, err := newRegistry(cfg, logger)
			if err != nil {
				return err
			}
			mcpCfg, err := cfg.MCP()
			if err != nil {
				return err
			}

			manager := mcp.NewManager(registry, mcpCfg,
				mcp.WithFetchTimeout(cfg.MCPFetchTimeout),
				mcp.WithLogger(logger),
			)
			defer manager.Close()
			if err := manager.Refresh(cmd.Context()); err != nil {
				logger.Warn("some remote tool servers were unavailable", "error", err)
			}

			return printTools(cmd, registry.ListAll())
		},
	}
}

func printTools(cmd *cobra.Command, tools []tool.Descriptor) error {
	sort.SliceStable(tools, func(i, j int) bool {
		if tools[i].Origin != tools[j].Origin {
			return tools[i].Origin == tool.OriginNative
		}
		return tools[i].Tool.Name < tools[j].Tool.Name
	})

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tORIGIN\tSOURCE\tDESCRIPTION")
	for _, d := range tools {
		source := d.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Tool.Name, d.Origin, source, d.Tool.Description)
	}
	return tw.Flush()
}
