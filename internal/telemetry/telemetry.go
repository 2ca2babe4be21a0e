// Package telemetry installs the OpenTelemetry trace pipeline. Without an
// endpoint nothing is installed and the global no-op tracer stays active.
package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "chatdesk"

// Config holds the configuration for telemetry
type Config struct {
	// Endpoint is the OTLP/HTTP collector URL; empty disables tracing.
	Endpoint       string
	ServiceVersion string
}

// Provider owns the tracer provider installed by NewProvider.
type Provider struct {
	tp  *sdktrace.TracerProvider
	log zerolog.Logger
}

// NewProvider creates a provider and, when enabled, registers it as the
// global tracer provider.
func NewProvider(ctx context.Context, cfg Config, log zerolog.Logger) (*Provider, error) {
	p := &Provider{log: log}
	if cfg.Endpoint == "" {
		log.Debug().Msg("telemetry disabled")
		return p, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
		attribute.String("service.instance.id", uuid.NewString()),
	)

	p.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tp)
	log.Info().Str("endpoint", cfg.Endpoint).Msg("telemetry enabled")
	return p, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
