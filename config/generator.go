package config

import (
	"fmt"
	"strings"
	"time"
)

// Generation backends. Exactly one is selected at startup.
const (
	BackendHTTP  = "http"
	BackendAgent = "agent"
)

const (
	DefaultHTTPEndpoint = "http://localhost:3001/generate"
	DefaultHTTPTimeout  = 60 * time.Second
	DefaultAgentURL     = "https://stitch.googleapis.com/mcp"
	DefaultAgentTool    = "generate_screen_from_text"
)

// GeneratorConfig selects and configures the page generation backend.
type GeneratorConfig struct {
	Backend string              `mapstructure:"backend"`
	HTTP    HTTPGeneratorConfig `mapstructure:"http"`
	Agent   AgentConfig         `mapstructure:"agent"`
}

// HTTPGeneratorConfig points at a local generation service.
type HTTPGeneratorConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AgentConfig describes the remote design service reached through an MCP
// tool-calling session.
type AgentConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Tool    string        `mapstructure:"tool"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 leaves the call bounded only by the caller's context
	AppName string        `mapstructure:"app_name"`
}

// Normalize lower-cases the backend name and fills unset values.
func (c GeneratorConfig) Normalize() GeneratorConfig {
	cfg := c
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendHTTP
	}
	if strings.TrimSpace(cfg.HTTP.Endpoint) == "" {
		cfg.HTTP.Endpoint = DefaultHTTPEndpoint
	}
	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = DefaultHTTPTimeout
	}
	if strings.TrimSpace(cfg.Agent.URL) == "" {
		cfg.Agent.URL = DefaultAgentURL
	}
	if strings.TrimSpace(cfg.Agent.Tool) == "" {
		cfg.Agent.Tool = DefaultAgentTool
	}
	return cfg
}

// Validate ensures the selected backend is usable.
func (c GeneratorConfig) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if strings.TrimSpace(c.HTTP.Endpoint) == "" {
			return fmt.Errorf("generator.http.endpoint required")
		}
	case BackendAgent:
		if strings.TrimSpace(c.Agent.URL) == "" {
			return fmt.Errorf("generator.agent.url required")
		}
		if strings.TrimSpace(c.Agent.APIKey) == "" {
			return fmt.Errorf("generator.agent.api_key required for the agent backend")
		}
		if c.Agent.Timeout < 0 {
			return fmt.Errorf("generator.agent.timeout cannot be negative")
		}
	default:
		return fmt.Errorf("unknown generator.backend %q (want %s or %s)", c.Backend, BackendHTTP, BackendAgent)
	}
	return nil
}
