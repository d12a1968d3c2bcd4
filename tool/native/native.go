// Package native provides the tools compiled into the assistant: weather,
// web search, current time and a calculator.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spetersoncode/dylan/tool"
)

const (
	defaultWeatherURL = "https://wttr.in"
	defaultSearchURL  = "https://api.duckduckgo.com/"
	userAgent         = "dylan-assistant/1.0"
)

// Option configures the native tools.
type Option func(*config)

type config struct {
	client          *http.Client
	weatherURL      string
	searchURL       string
	weatherTimeout  time.Duration
	searchTimeout   time.Duration
	maxResponseSize int64
	now             func() time.Time
}

// WithHTTPClient sets the HTTP client used by the network tools.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.client = c
	}
}

// WithWeatherURL overrides the wttr.in base URL.
func WithWeatherURL(u string) Option {
	return func(cfg *config) {
		cfg.weatherURL = u
	}
}

// WithSearchURL overrides the DuckDuckGo Instant Answer endpoint.
func WithSearchURL(u string) Option {
	return func(cfg *config) {
		cfg.searchURL = u
	}
}

// WithWeatherTimeout sets the weather tool's dispatch timeout.
// Default is 10 seconds.
func WithWeatherTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.weatherTimeout = d
	}
}

// WithSearchTimeout sets the search tool's dispatch timeout.
// Default is 15 seconds.
func WithSearchTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.searchTimeout = d
	}
}

// WithMaxResponseSize caps the body read from upstream services.
// Default is 1MB.
func WithMaxResponseSize(n int64) Option {
	return func(cfg *config) {
		cfg.maxResponseSize = n
	}
}

// WithClock sets the time source for current_time.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		cfg.now = now
	}
}

func applyOpts(opts []Option) *config {
	cfg := &config{
		weatherURL:      defaultWeatherURL,
		searchURL:       defaultSearchURL,
		weatherTimeout:  10 * time.Second,
		searchTimeout:   15 * time.Second,
		maxResponseSize: 1024 * 1024,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.client == nil {
		cfg.client = &http.Client{}
	}
	return cfg
}

// Tools returns registrations for all native tools.
func Tools(opts ...Option) []tool.Registration {
	cfg := applyOpts(opts)
	return []tool.Registration{
		tool.Func("weather",
			"Get current weather information for a location. Input should be a city name or coordinates.",
			cfg.weather, tool.WithTimeout(cfg.weatherTimeout)),
		tool.Func("search",
			"Search the web for information. Useful for current events, facts, and general knowledge.",
			cfg.search, tool.WithTimeout(cfg.searchTimeout)),
		tool.Func("current_time",
			"Get the current time. Optionally specify a timezone like 'Asia/Shanghai' or 'America/New_York'.",
			cfg.currentTime),
		tool.Func("calculator",
			"Calculate mathematical expressions. Input should be a valid mathematical expression like '2 + 2' or '10 * 5'.",
			calculate),
	}
}

// Register adds all native tools to r.
func Register(r *tool.Registry, opts ...Option) error {
	for _, reg := range Tools(opts...) {
		if err := r.Register(reg.Tool, reg.Handler, reg.Options...); err != nil {
			return err
		}
	}
	return nil
}

// getJSON fetches u and decodes the body into v.
func (c *config) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned %s", resp.Status)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, c.maxResponseSize)).Decode(v)
}
