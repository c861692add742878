package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mohammad-safakhou/webbuilder/internal/plan"
)

// NoAgentResponse is returned when the remote agent finishes without any text.
const NoAgentResponse = "No response from agent"

// AgentOptions configures the tool-calling backend.
type AgentOptions struct {
	URL     string
	APIKey  string
	Tool    string
	AppName string
	Timeout time.Duration

	// NewTransport overrides how a session reaches the remote service. Each
	// call gets a new transport since every call runs its own session.
	NewTransport func() mcp.Transport
}

// AgentGenerator drives a remote design agent over MCP. The client is
// created once, on first use, and shared; sessions are not.
type AgentGenerator struct {
	url          string
	tool         string
	appName      string
	timeout      time.Duration
	newTransport func() mcp.Transport

	mu     sync.Mutex
	client *mcp.Client
}

func NewAgentGenerator(opts AgentOptions) *AgentGenerator {
	g := &AgentGenerator{
		url:          opts.URL,
		tool:         opts.Tool,
		appName:      opts.AppName,
		timeout:      opts.Timeout,
		newTransport: opts.NewTransport,
	}
	if g.appName == "" {
		g.appName = "webbuilder"
	}
	if g.newTransport == nil {
		httpClient := &http.Client{Transport: &apiKeyTransport{key: opts.APIKey, base: http.DefaultTransport}}
		g.newTransport = func() mcp.Transport {
			return &mcp.StreamableClientTransport{Endpoint: g.url, HTTPClient: httpClient}
		}
	}
	return g
}

func (g *AgentGenerator) Backend() string { return "agent" }

// acquire returns the shared client, constructing it under the lock so
// concurrent first calls build exactly one.
func (g *AgentGenerator) acquire() *mcp.Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		g.client = mcp.NewClient(&mcp.Implementation{Name: g.appName, Version: "1.0.0"}, nil)
	}
	return g.client
}

// Close drops the shared client. A later Generate builds a new one.
func (g *AgentGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
	return nil
}

// Generate opens a fresh session, asks the agent for the page and joins the
// text parts of the final tool result.
func (g *AgentGenerator) Generate(ctx context.Context, p plan.Plan) (string, error) {
	client := g.acquire()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	session, err := client.Connect(ctx, g.newTransport(), nil)
	if err != nil {
		return "", &UpstreamError{Backend: g.Backend(), Err: fmt.Errorf("connect: %w", err)}
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      g.tool,
		Arguments: map[string]any{"prompt": Instruction(p)},
	})
	if err != nil {
		return "", &UpstreamError{Backend: g.Backend(), Err: fmt.Errorf("call %s: %w", g.tool, err)}
	}

	parts := textParts(res)
	if res.IsError {
		msg := strings.Join(parts, "; ")
		if msg == "" {
			msg = "tool reported an error"
		}
		return "", &UpstreamError{Backend: g.Backend(), Err: errors.New(msg)}
	}
	if len(parts) == 0 {
		return NoAgentResponse, nil
	}
	return strings.Join(parts, "\n"), nil
}

// Instruction renders the plan as the natural-language request sent to the agent.
func Instruction(p plan.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a complete, responsive %s web page with sections [%s] and style %q.",
		p.SiteType, strings.Join(p.Sections, ", "), p.Style)
	if len(p.Images) > 0 {
		fmt.Fprintf(&b, " Use these images: [%s].", strings.Join(p.Images, ", "))
	}
	if len(p.Docs) > 0 {
		fmt.Fprintf(&b, " Refer to these documents: [%s].", strings.Join(p.Docs, ", "))
	}
	b.WriteString(" Return only valid HTML code, no explanations.")
	return b.String()
}

func textParts(res *mcp.CallToolResult) []string {
	if res == nil {
		return nil
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return parts
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.key != "" {
		r.Header.Set("X-Goog-Api-Key", t.key)
	}
	return t.base.RoundTrip(r)
}
