package generator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/webbuilder/config"
	"github.com/mohammad-safakhou/webbuilder/internal/plan"
)

// Generator turns a plan into HTML. Calls are not idempotent: each one talks
// to a remote model and may return different markup for the same plan.
type Generator interface {
	Generate(ctx context.Context, p plan.Plan) (string, error)
}

// Backend is implemented by the concrete generators so callers can label
// logs and metrics.
type Backend interface {
	Generator
	Backend() string
}

// New selects the backend named in cfg. The choice is made once; the
// returned generator never falls back to the other backend.
func New(cfg config.GeneratorConfig, logger *log.Logger) (*Instrumented, error) {
	var b Backend
	switch cfg.Backend {
	case config.BackendHTTP:
		b = NewHTTPGenerator(cfg.HTTP.Endpoint, cfg.HTTP.Timeout)
	case config.BackendAgent:
		b = NewAgentGenerator(AgentOptions{
			URL:     cfg.Agent.URL,
			APIKey:  cfg.Agent.APIKey,
			Tool:    cfg.Agent.Tool,
			AppName: cfg.Agent.AppName,
			Timeout: cfg.Agent.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown generator backend %q", cfg.Backend)
	}
	return Instrument(b, logger), nil
}

var (
	metricsOnce     sync.Once
	generationCount otelmetric.Int64Counter
	generationTime  otelmetric.Float64Histogram
)

func initMetrics() {
	meter := otel.Meter("webbuilder/generator")
	var err error
	generationCount, err = meter.Int64Counter(
		"webbuilder_generations_total",
		otelmetric.WithDescription("Page generation calls by backend and outcome"),
	)
	if err != nil {
		log.Printf("generator metrics init: webbuilder_generations_total: %v", err)
	}
	generationTime, err = meter.Float64Histogram(
		"webbuilder_generation_duration_seconds",
		otelmetric.WithDescription("Latency of page generation calls"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		log.Printf("generator metrics init: webbuilder_generation_duration_seconds: %v", err)
	}
}

// Instrumented wraps a backend with logging, tracing and metrics.
type Instrumented struct {
	backend Backend
	logger  *log.Logger
}

func Instrument(b Backend, logger *log.Logger) *Instrumented {
	if logger == nil {
		logger = log.New(log.Writer(), "[GEN] ", log.LstdFlags)
	}
	metricsOnce.Do(initMetrics)
	return &Instrumented{backend: b, logger: logger}
}

func (g *Instrumented) Backend() string { return g.backend.Backend() }

// Close releases the backend's shared resources, if it holds any.
func (g *Instrumented) Close() error {
	if c, ok := g.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (g *Instrumented) Generate(ctx context.Context, p plan.Plan) (string, error) {
	name := g.backend.Backend()
	ctx, span := otel.Tracer("webbuilder/generator").Start(ctx, "generator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("generator.backend", name),
		attribute.String("plan.site_type", p.SiteType),
	)

	start := time.Now()
	html, err := g.backend.Generate(ctx, p)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Printf("%s generation for %s failed after %s: %v", name, p.SiteType, elapsed.Round(time.Millisecond), err)
	} else {
		g.logger.Printf("%s generation for %s done in %s (%d bytes)", name, p.SiteType, elapsed.Round(time.Millisecond), len(html))
	}

	attrs := otelmetric.WithAttributes(attribute.String("backend", name), attribute.String("outcome", outcome))
	if generationCount != nil {
		generationCount.Add(ctx, 1, attrs)
	}
	if generationTime != nil {
		generationTime.Record(ctx, elapsed.Seconds(), otelmetric.WithAttributes(attribute.String("backend", name)))
	}
	return html, err
}
