package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/tool"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// NewServer creates an MCP server exposing the registry's native tools.
// Calls go through the registry, so arguments are validated and bounded by
// the tool timeout like any other dispatch.
func NewServer(registry *tool.Registry, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{name: "dylan-tools", version: "1.0.0"}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(cfg.name, cfg.version, server.WithToolCapabilities(true))
	for _, d := range registry.ListAll() {
		if d.Origin != tool.OriginNative || d.Handler == nil {
			continue
		}
		s.AddTool(ToMCPTool(d.Tool), dispatchHandler(registry, d.Tool.Name))
	}
	return s
}

func dispatchHandler(registry *tool.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := "{}"
		if req.Params.Arguments != nil {
			data, err := json.Marshal(req.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to marshal arguments: %v", err)), nil
			}
			args = string(data)
		}
		call := ai.ToolCall{ID: "mcp-" + name, Name: name, Arguments: args}
		return ToMCPCallToolResult(registry.Dispatch(ctx, call)), nil
	}
}

// ServeStdio serves the native tools over stdin/stdout.
func ServeStdio(registry *tool.Registry, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(registry, opts...))
}

// NewHTTPHandler serves the native tools over streamable HTTP.
func NewHTTPHandler(registry *tool.Registry, opts ...ServerOption) http.Handler {
	return server.NewStreamableHTTPServer(NewServer(registry, opts...))
}
