// Package observability wires OpenTelemetry tracing to a local OTLP agent.
//
// Traces are exported over OTLP HTTP to a collector on localhost (default
// localhost:4318); the collector handles authentication and forwarding, so
// the application never carries backend credentials.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/paperchat/paperchat/internal/log"
)

// DefaultEndpoint is the default OTLP HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// Config for trace export.
type Config struct {
	// Endpoint is the collector's OTLP HTTP endpoint (host:port).
	Endpoint string
	// ServiceName tags exported spans (default "paperchat").
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string

	Logger log.Logger
}

// Setup installs a global tracer provider exporting to the configured
// collector. The returned shutdown function flushes pending spans; call it
// before process exit.
//
// Setup failing to reach the collector is not fatal: tracing is disabled
// and the service runs untraced.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "paperchat"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("deployment.environment", cfg.Environment),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled",
		"endpoint", endpoint, "service", serviceName, "environment", cfg.Environment)
	return provider.Shutdown, nil
}
