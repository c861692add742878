package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/webbuilder/internal/plan"
)

// request is the wire payload accepted by the local generation service.
type request struct {
	Type     string   `json:"type"`
	Sections []string `json:"sections"`
	Style    string   `json:"style"`
	Images   []string `json:"images,omitempty"`
	Docs     []string `json:"docs,omitempty"`
}

type response struct {
	HTML *string `json:"html"`
}

// HTTPGenerator posts plans to a local generation service.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator builds a generator for endpoint. A zero timeout falls back
// to 60 seconds.
func NewHTTPGenerator(endpoint string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPGenerator{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (g *HTTPGenerator) Backend() string { return "http" }

// Generate sends one request; failures are not retried.
func (g *HTTPGenerator) Generate(ctx context.Context, p plan.Plan) (string, error) {
	body, err := json.Marshal(request{
		Type:     p.SiteType,
		Sections: p.Sections,
		Style:    p.Style,
		Images:   p.Images,
		Docs:     p.Docs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &UpstreamError{Backend: g.Backend(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// best-effort body for the error message
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Backend: g.Backend(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.HTML == nil {
		return "", fmt.Errorf("%w: missing html field", ErrMalformedResponse)
	}
	return *out.HTML, nil
}
