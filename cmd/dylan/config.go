package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	ai "github.com/spetersoncode/dylan"
	"github.com/spetersoncode/dylan/mcp"
)

// Config holds the settings loaded from environment variables.
type Config struct {
	// Application
	AppName    string
	AppVersion string
	Debug      bool

	// HTTP API
	Host        string
	Port        int
	Prefix      string
	CORSOrigins []string

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	// Model gateway
	Provider    string
	APIKeys     map[ai.Provider]string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Streaming   bool
	MaxRetries  int

	// Agent and tools
	MaxIterations   int
	ToolTimeout     time.Duration
	ToolConcurrency int

	// Remote tools
	MCPConfigPath      string
	MCPFetchTimeout    time.Duration
	MCPRefreshInterval time.Duration
	AmapAPIKey         string

	// Tracing
	OTelEndpoint string
	OTelInsecure bool
}

// LoadConfig reads configuration from the environment. envFile, when set,
// must exist; otherwise a .env file in the working directory is loaded if
// present.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		AppName:     getEnvOrDefault("APP_NAME", "Dylan Assistant"),
		AppVersion:  getEnvOrDefault("APP_VERSION", "1.0.0"),
		Debug:       getEnvBoolOrDefault("DEBUG", false),
		Host:        getEnvOrDefault("API_HOST", "0.0.0.0"),
		Port:        getEnvIntOrDefault("API_PORT", 8000),
		Prefix:      getEnvOrDefault("API_PREFIX", "/api/v1"),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "text"),

		Provider: strings.ToLower(getEnvOrDefault("LLM_PROVIDER", string(ai.ProviderOpenRouter))),
		APIKeys: map[ai.Provider]string{
			ai.ProviderOpenRouter: os.Getenv("OPENROUTER_API_KEY"),
			ai.ProviderOpenAI:     os.Getenv("OPENAI_API_KEY"),
			ai.ProviderAnthropic:  os.Getenv("ANTHROPIC_API_KEY"),
			ai.ProviderGoogle:     os.Getenv("GOOGLE_API_KEY"),
		},
		BaseURL:     os.Getenv("LLM_BASE_URL"),
		Model:       getEnvOrDefault("LLM_MODEL", "qwen/qwen3-next-80b-a3b-instruct"),
		Temperature: getEnvFloatOrDefault("LLM_TEMPERATURE", 0.7),
		MaxTokens:   getEnvIntOrDefault("LLM_MAX_TOKENS", 0),
		Streaming:   getEnvBoolOrDefault("LLM_STREAMING", true),
		MaxRetries:  getEnvIntOrDefault("LLM_MAX_RETRIES", 3),

		MaxIterations:   getEnvIntOrDefault("MAX_ITERATIONS", 10),
		ToolTimeout:     getEnvDurationOrDefault("TOOL_TIMEOUT", 30*time.Second),
		ToolConcurrency: getEnvIntOrDefault("TOOL_CONCURRENCY", 0),

		MCPConfigPath:      os.Getenv("MCP_CONFIG"),
		MCPFetchTimeout:    getEnvDurationOrDefault("MCP_FETCH_TIMEOUT", 5*time.Second),
		MCPRefreshInterval: getEnvDurationOrDefault("MCP_REFRESH_INTERVAL", 5*time.Minute),
		AmapAPIKey:         os.Getenv("AMAP_API_KEY"),

		OTelEndpoint: os.Getenv("OTEL_ENDPOINT"),
		OTelInsecure: getEnvBoolOrDefault("OTEL_INSECURE", false),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would make the server unusable. A missing
// API key is not an error: the server starts and reports the chat
// endpoints as unavailable.
func (c *Config) Validate() error {
	switch ai.Provider(c.Provider) {
	case ai.ProviderOpenRouter, ai.ProviderOpenAI, ai.ProviderAnthropic, ai.ProviderGoogle:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (must be openrouter, openai, anthropic, or google)", c.Provider)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("API_PORT out of range: %d", c.Port)
	}
	if c.Prefix != "" && !strings.HasPrefix(c.Prefix, "/") {
		return fmt.Errorf("API_PREFIX must start with /: %q", c.Prefix)
	}
	if c.MaxIterations <= 0 {
		return errors.New("MAX_ITERATIONS must be positive")
	}
	if c.ToolConcurrency < 0 {
		return errors.New("TOOL_CONCURRENCY must not be negative")
	}
	if c.MaxRetries < 1 {
		return errors.New("LLM_MAX_RETRIES must be at least 1")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE out of range: %g", c.Temperature)
	}
	return nil
}

// APIKey returns the key for the selected provider.
func (c *Config) APIKey() string {
	return c.APIKeys[ai.Provider(c.Provider)]
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MCP builds the remote tool server configuration from MCP_CONFIG and
// AMAP_API_KEY.
func (c *Config) MCP() (mcp.Config, error) {
	var cfg mcp.Config
	if c.MCPConfigPath != "" {
		loaded, err := mcp.LoadConfig(c.MCPConfigPath)
		if err != nil {
			return mcp.Config{}, err
		}
		cfg = loaded
	}
	return cfg.WithAmap(c.AmapAPIKey), nil
}

// loadMCP is the reload hook for config file changes. It keeps the AMAP
// shortcut applied.
func (c *Config) loadMCP(path string) (mcp.Config, error) {
	cfg, err := mcp.LoadConfig(path)
	if err != nil {
		return mcp.Config{}, err
	}
	return cfg.WithAmap(c.AmapAPIKey), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
