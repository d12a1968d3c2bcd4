package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/dylan"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "LLM_MODEL", "API_PORT", "API_PREFIX", "MAX_ITERATIONS", "DEBUG", "LOG_LEVEL", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Provider)
	assert.Equal(t, "qwen/qwen3-next-80b-a3b-instruct", cfg.Model)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.Prefix)
	assert.Equal(t, 10, cfg.MaxIterations)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.True(t, cfg.Streaming)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("API_PORT", "9001")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TOOL_TIMEOUT", "5s")
	t.Setenv("DEBUG", "true")
	t.Setenv("MAX_ITERATIONS", "not-a-number")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, string(ai.ProviderAnthropic), cfg.Provider)
	assert.Equal(t, "sk-ant-test", cfg.APIKey())
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.MaxIterations, "unparseable values fall back to the default")
}

func TestLoadConfigEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=From File\n"), 0o600))
	t.Setenv("APP_NAME", "")
	os.Unsetenv("APP_NAME")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "From File", cfg.AppName)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "mystery" }},
		{name: "port out of range", mutate: func(c *Config) { c.Port = 70000 }},
		{name: "prefix without slash", mutate: func(c *Config) { c.Prefix = "api" }},
		{name: "zero iterations", mutate: func(c *Config) { c.MaxIterations = 0 }},
		{name: "negative concurrency", mutate: func(c *Config) { c.ToolConcurrency = -1 }},
		{name: "temperature too high", mutate: func(c *Config) { c.Temperature = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Port = 8000
			cfg.MaxRetries = 3
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigMCPAddsAmap(t *testing.T) {
	cfg := testConfig()
	cfg.AmapAPIKey = "k"

	mc, err := cfg.MCP()
	require.NoError(t, err)
	require.Len(t, mc.Servers, 1)
	assert.Equal(t, "amap-amap-sse", mc.Servers[0].Name)
}
