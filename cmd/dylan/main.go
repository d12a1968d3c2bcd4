// Package main is the dylan command: a tool-augmented conversational agent
// served over HTTP with streaming responses.
//
// Start the API server:
//
//	dylan serve --port 8000
//
// Serve the built-in tools to other MCP clients:
//
//	dylan mcp            # stdio
//	dylan mcp --http :9000
//
// List the tool catalog, including tools fetched from MCP servers:
//
//	dylan tools
//
// Configuration comes from the environment (and a .env file when present).
// The main variables are:
//
//	LLM_PROVIDER        openrouter, openai, anthropic or google (default: openrouter)
//	OPENROUTER_API_KEY  key for the selected provider; OPENAI_API_KEY,
//	                    ANTHROPIC_API_KEY and GOOGLE_API_KEY likewise
//	LLM_MODEL           model id (default: qwen/qwen3-next-80b-a3b-instruct)
//	API_HOST, API_PORT  listen address (default: 0.0.0.0:8000)
//	API_PREFIX          route prefix (default: /api/v1)
//	MAX_ITERATIONS      model steps per turn (default: 10)
//	MCP_CONFIG          YAML file naming remote tool servers
//	AMAP_API_KEY        adds the AMAP maps tool server
//	OTEL_ENDPOINT       OTLP gRPC collector for traces
package main

import (
	"fmt"
	"os"
)

// Set by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
