package mcp

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names how a remote tool server is reached.
type Transport string

const (
	TransportStreamableHTTP Transport = "streamable_http"
	TransportSSE            Transport = "sse"
	TransportStdio          Transport = "stdio"
)

// AmapServerName is the server added by the AMAP_API_KEY shortcut.
const AmapServerName = "amap-amap-sse"

const amapEndpoint = "https://mcp.amap.com/sse"

// ServerConfig describes one remote tool server.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url,omitempty"`
	Transport Transport         `yaml:"transport,omitempty"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// Timeout bounds a single tool call on this server. Zero uses the
	// registry default.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Config is the remote tool server list, in priority order.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// LoadConfig reads a YAML server list from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read mcp config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML server list. Missing transports
// default to streamable_http.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse mcp config: %w", err)
	}
	seen := make(map[string]bool, len(cfg.Servers))
	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		if s.Transport == "" {
			s.Transport = TransportStreamableHTTP
		}
		if err := s.validate(); err != nil {
			return Config{}, err
		}
		if seen[s.Name] {
			return Config{}, fmt.Errorf("mcp server %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
	}
	return cfg, nil
}

func (s ServerConfig) validate() error {
	if s.Name == "" {
		return errors.New("mcp server: name is required")
	}
	switch s.Transport {
	case TransportStreamableHTTP, TransportSSE:
		if s.URL == "" {
			return fmt.Errorf("mcp server %q: url is required for %s", s.Name, s.Transport)
		}
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: command is required for stdio", s.Name)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", s.Name, s.Transport)
	}
	return nil
}

// AmapServer returns the AMAP maps server configuration for apiKey.
func AmapServer(apiKey string) ServerConfig {
	return ServerConfig{
		Name:      AmapServerName,
		URL:       amapEndpoint + "?key=" + url.QueryEscape(apiKey),
		Transport: TransportSSE,
	}
}

// WithAmap appends the AMAP server when apiKey is set and the config does not
// already name it.
func (c Config) WithAmap(apiKey string) Config {
	if apiKey == "" {
		return c
	}
	for _, s := range c.Servers {
		if s.Name == AmapServerName {
			return c
		}
	}
	servers := make([]ServerConfig, 0, len(c.Servers)+1)
	servers = append(servers, c.Servers...)
	return Config{Servers: append(servers, AmapServer(apiKey))}
}
