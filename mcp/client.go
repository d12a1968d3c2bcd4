package mcp

import (
	"context"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Session is an initialized connection to a remote tool server.
// *client.Client satisfies it.
type Session interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Connector opens a Session for a server.
type Connector func(ctx context.Context, cfg ServerConfig) (Session, error)

// Connect opens and initializes an mcp-go client for cfg.
func Connect(ctx context.Context, cfg ServerConfig) (Session, error) {
	var (
		c   *client.Client
		err error
	)
	switch cfg.Transport {
	case TransportSSE:
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		c, err = client.NewSSEMCPClient(cfg.URL, opts...)
	case TransportStdio:
		// Stdio clients start their subprocess on construction.
		c, err = client.NewStdioMCPClient(cfg.Command, envList(cfg.Env), cfg.Args...)
	default:
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if cfg.Transport != TransportStdio {
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("start client: %w", err)
		}
	}
	if err := initialize(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func initialize(ctx context.Context, c *client.Client) error {
	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "dylan",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	return nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
