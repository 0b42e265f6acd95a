// SPDX-License-Identifier: Apache-2.0

// Package telemetry bootstraps the OpenTelemetry tracer provider the
// orchestrators in pkg/traceroute, pkg/mtu and pkg/probestream already span
// against. Grounded on the teacher's pkg/sparrow/metrics.Provider: the same
// registry-plus-tracer-provider manager, the same exporter-by-name
// selection, the same global otel.SetTracerProvider wiring.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// Exporter names the otlp transport, matching the teacher's Exporter enum.
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterStdout Exporter = "stdout"
	ExporterGrpc   Exporter = "grpc"
	ExporterHttp   Exporter = "http"
)

// IsExporting reports whether the exporter actually ships spans anywhere.
func (e Exporter) IsExporting() bool {
	return e == ExporterGrpc || e == ExporterHttp
}

// Validate rejects an unknown exporter name.
func (e Exporter) Validate() error {
	switch e {
	case ExporterNone, ExporterStdout, ExporterGrpc, ExporterHttp, "":
		return nil
	default:
		return fmt.Errorf("telemetry: unknown exporter %q", e)
	}
}

// Config mirrors the teacher's metrics.Config for the tracing half: which
// exporter to use and where to send it.
type Config struct {
	Exporter Exporter `yaml:"exporter" mapstructure:"exporter"`
	Url      string   `yaml:"url" mapstructure:"url"`
}

// Validate validates the tracing configuration, same accumulation idiom as
// pkg/config.
func (c Config) Validate() error {
	if err := c.Exporter.Validate(); err != nil {
		return err
	}
	if c.Exporter.IsExporting() && c.Url == "" {
		return fmt.Errorf("telemetry: url is required for exporter %q", c.Exporter)
	}
	return nil
}

func (c Config) newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch c.Exporter {
	case ExporterGrpc:
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(c.Url), otlptracegrpc.WithInsecure())
	case ExporterHttp:
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(c.Url), otlptracehttp.WithInsecure())
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, nil
	}
}

// Provider owns the tracer provider's lifecycle, started once at bootstrap
// and shut down on exit, mirroring the teacher's metrics.Provider.InitTracing
// /Shutdown pair.
type Provider struct {
	cfg Config
	tp  *sdktrace.TracerProvider
}

// New builds an unstarted Provider; call Init to install the global tracer.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Init creates the resource and exporter and installs a global
// TracerProvider. A "none" exporter (the default) still installs a provider
// with no span processor, so every pkg/traceroute-style otel.Tracer(...)
// call is well-defined even with tracing fully disabled.
func (p *Provider) Init(ctx context.Context, serviceVersion string) error {
	log := logger.FromContext(ctx)

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("pathcast"),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("telemetry: building resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	exporter, err := p.cfg.newExporter(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: building exporter: %w", err)
	}
	if exporter != nil {
		const (
			batchTimeout = 5 * time.Second
			maxQueueSize = 1000
			maxBatchSize = 100
		)
		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithMaxQueueSize(maxQueueSize),
			sdktrace.WithMaxExportBatchSize(maxBatchSize),
		)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	p.tp = tp

	log.InfoContext(ctx, "tracing initialized", "exporter", p.cfg.Exporter)
	return nil
}

// Shutdown flushes and stops the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutting down tracer provider: %w", err)
	}
	return nil
}
